// Package platform defines the shared shape of a monitored channel and the
// live-status capability each streaming platform implements. The monitor state
// machine only ever talks to the Checker interface, so platform-specific API
// quirks stay inside their own packages (twitchapi, kickapi).
package platform

import (
	"context"
	"fmt"
	"time"
)

// Platform identifies a supported streaming service.
type Platform string

const (
	Twitch Platform = "twitch"
	Kick   Platform = "kick"
)

// Tag returns the short platform tag used in output filenames.
func (p Platform) Tag() string {
	switch p {
	case Twitch:
		return "ttv"
	case Kick:
		return "kick"
	default:
		return string(p)
	}
}

// DisplayName returns the platform name used in logs.
func (p Platform) DisplayName() string {
	switch p {
	case Twitch:
		return "Twitch"
	case Kick:
		return "Kick"
	default:
		return string(p)
	}
}

// Channel is one monitored stream source. Immutable once configured.
type Channel struct {
	Platform Platform
	Name     string
}

// Key returns a stable "platform:name" identifier, used in logs and as the
// de-duplication key for active captures.
func (c Channel) Key() string { return fmt.Sprintf("%s:%s", c.Platform, c.Name) }

func (c Channel) String() string { return c.Key() }

// URL returns the public watch URL handed to the capture tool.
func (c Channel) URL() string {
	switch c.Platform {
	case Twitch:
		return "https://twitch.tv/" + c.Name
	case Kick:
		return "https://kick.com/" + c.Name
	default:
		return ""
	}
}

// LiveStatus is the result of a single live check. Transient: recomputed every
// poll, never persisted.
type LiveStatus struct {
	Live      bool
	Title     string
	StartedAt time.Time // best-effort; zero when the platform does not report it
}

// Checker answers "is this channel currently live" for one platform and knows
// how to invoke the capture tool for it. Implementations must honor the
// context deadline; CheckLive is the only call on the poll path allowed to
// block.
type Checker interface {
	Platform() Platform
	CheckLive(ctx context.Context, channel string) (LiveStatus, error)
	// CaptureArgs returns the argv (excluding the tool binary itself) that
	// records the given channel to outputPath.
	CaptureArgs(channel, outputPath string) []string
}
