package twitchapi

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/onnwee/stream-tender/platform"
	"github.com/onnwee/stream-tender/testutil"
)

func newTestChecker(t *testing.T, mock *testutil.MockTwitchServer) *Checker {
	t.Helper()
	return &Checker{
		Helix: &HelixClient{
			AppTokenSource: &TokenSource{
				ClientID:     "cid",
				ClientSecret: "secret",
				TokenURL:     mock.URL + "/oauth2/token",
			},
			ClientID: "cid",
			BaseURL:  mock.URL + "/helix",
		},
	}
}

func TestCheckLiveReportsStream(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	mock.MockStreamsResponse([]map[string]interface{}{
		{"title": "Movie Night", "started_at": "2026-08-30T18:00:00Z"},
	})

	c := newTestChecker(t, mock)
	status, err := c.CheckLive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CheckLive: %v", err)
	}
	if !status.Live {
		t.Fatal("expected live")
	}
	if status.Title != "Movie Night" {
		t.Fatalf("title = %q", status.Title)
	}
	if status.StartedAt.IsZero() {
		t.Fatal("started_at not parsed")
	}
}

func TestCheckLiveOffline(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	mock.MockStreamsResponse(nil)

	c := newTestChecker(t, mock)
	status, err := c.CheckLive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CheckLive: %v", err)
	}
	if status.Live {
		t.Fatal("expected offline")
	}
}

func TestCheckLiveEmptyTitleDefaulted(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	mock.MockStreamsResponse([]map[string]interface{}{{"title": ""}})

	c := newTestChecker(t, mock)
	status, err := c.CheckLive(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if status.Title != "Live Stream" {
		t.Fatalf("title = %q, want Live Stream", status.Title)
	}
}

func TestTokenRejectionIsAuthFailure(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenError(http.StatusUnauthorized)

	c := newTestChecker(t, mock)
	_, err := c.CheckLive(context.Background(), "alice")
	if !platform.IsAuthFailed(err) {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestHelixUnauthorizedIsAuthFailure(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	mock.MockStreamsError(http.StatusUnauthorized)

	c := newTestChecker(t, mock)
	_, err := c.CheckLive(context.Background(), "alice")
	if !platform.IsAuthFailed(err) {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestHelixServerErrorIsTransient(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	mock.MockStreamsError(http.StatusInternalServerError)

	c := newTestChecker(t, mock)
	_, err := c.CheckLive(context.Background(), "alice")
	if err == nil {
		t.Fatal("expected error")
	}
	if !platform.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestCaptureArgs(t *testing.T) {
	c := NewChecker("cid", "secret", "user-oauth")
	args := c.CaptureArgs("alice", "/out/file.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--twitch-api-header Authorization=user-oauth",
		"--stream-segment-threads 5",
		"--twitch-disable-ads",
		"--retry-max 10",
		"--retry-streams 30",
		"--output /out/file.mp4",
		"https://twitch.tv/alice best",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
}

func TestCaptureArgsWithoutUserToken(t *testing.T) {
	c := NewChecker("cid", "secret", "")
	args := c.CaptureArgs("alice", "/out/file.mp4")
	if strings.Contains(strings.Join(args, " "), "--twitch-api-header") {
		t.Fatal("api header should be omitted without a user token")
	}
}
