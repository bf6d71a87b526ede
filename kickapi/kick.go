// Package kickapi checks Kick channel live status via the public livestream
// endpoint and provides the platform.Checker adapter. Kick needs no
// credentials for status checks, so there is no token source here.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/stream-tender/platform"
)

const defaultBaseURL = "https://kick.com"

// Client queries the v2 channels livestream endpoint.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string // defaults to kick.com; tests override
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

// livestreamInfo is the subset of the livestream payload we care about. The
// stream is live iff a playback URL is present.
type livestreamInfo struct {
	SessionTitle string
	PlaybackURL  string
}

func (c *Client) getLivestream(ctx context.Context, channel string) (*livestreamInfo, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel empty")
	}
	url := fmt.Sprintf("%s/api/v2/channels/%s/livestream", c.baseURL(), channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		// Kick fronts this endpoint with bot protection; 403s here are flaky
		// rather than credential problems, so everything non-200 is transient.
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kick livestream request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data *struct {
			SessionTitle string `json:"session_title"`
			PlaybackURL  string `json:"playback_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, nil
	}
	return &livestreamInfo{SessionTitle: body.Data.SessionTitle, PlaybackURL: body.Data.PlaybackURL}, nil
}

// Checker implements platform.Checker for Kick.
type Checker struct {
	Client *Client
	// PluginDir is passed to streamlink as --plugin-dirs so its Kick plugin
	// can be picked up; empty means streamlink's own plugin path is used.
	PluginDir string
}

// NewChecker constructs a Kick checker.
func NewChecker(pluginDir string) *Checker {
	return &Checker{Client: &Client{}, PluginDir: pluginDir}
}

func (c *Checker) Platform() platform.Platform { return platform.Kick }

// CheckLive reports whether the channel currently has a live stream.
func (c *Checker) CheckLive(ctx context.Context, channel string) (platform.LiveStatus, error) {
	info, err := c.Client.getLivestream(ctx, channel)
	if err != nil {
		return platform.LiveStatus{}, err
	}
	if info == nil || info.PlaybackURL == "" {
		return platform.LiveStatus{}, nil
	}
	title := info.SessionTitle
	if title == "" {
		title = "Kick Live Stream"
	}
	return platform.LiveStatus{Live: true, Title: title}, nil
}

// CaptureArgs builds the streamlink argv for recording a Kick channel.
func (c *Checker) CaptureArgs(channel, outputPath string) []string {
	var args []string
	if c.PluginDir != "" {
		args = append(args, "--plugin-dirs", c.PluginDir)
	}
	args = append(args,
		"--retry-max", "10",
		"--retry-streams", "30",
		"--output", outputPath,
		platform.Channel{Platform: platform.Kick, Name: channel}.URL(),
		"best",
	)
	return args
}
