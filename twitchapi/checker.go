package twitchapi

import (
	"context"

	"github.com/onnwee/stream-tender/platform"
)

// Checker implements platform.Checker for Twitch using the Helix streams API.
type Checker struct {
	Helix *HelixClient
	// OAuthToken is an optional user token forwarded to streamlink so it can
	// fetch ad-free segments. It is independent of the Helix app token.
	OAuthToken string
}

// NewChecker constructs a Checker backed by a cached app token source.
func NewChecker(clientID, clientSecret, oauthToken string) *Checker {
	return &Checker{
		Helix: &HelixClient{
			AppTokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret},
			ClientID:       clientID,
		},
		OAuthToken: oauthToken,
	}
}

func (c *Checker) Platform() platform.Platform { return platform.Twitch }

// CheckLive reports whether the channel currently has a live stream.
func (c *Checker) CheckLive(ctx context.Context, channel string) (platform.LiveStatus, error) {
	streams, err := c.Helix.GetStreams(ctx, channel)
	if err != nil {
		return platform.LiveStatus{}, err
	}
	if len(streams) == 0 {
		return platform.LiveStatus{}, nil
	}
	title := streams[0].Title
	if title == "" {
		title = "Live Stream"
	}
	return platform.LiveStatus{Live: true, Title: title, StartedAt: streams[0].StartedAt}, nil
}

// CaptureArgs builds the streamlink argv for recording a Twitch channel.
func (c *Checker) CaptureArgs(channel, outputPath string) []string {
	var args []string
	if c.OAuthToken != "" {
		args = append(args, "--twitch-api-header", "Authorization="+c.OAuthToken)
	}
	args = append(args,
		"--stream-segment-threads", "5",
		"--twitch-disable-ads",
		"--retry-max", "10",
		"--retry-streams", "30",
		"--output", outputPath,
		platform.Channel{Platform: platform.Twitch, Name: channel}.URL(),
		"best",
	)
	return args
}
