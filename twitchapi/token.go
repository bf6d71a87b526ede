package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/endpoints"

	"github.com/onnwee/stream-tender/platform"
)

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// Caching and refresh-on-expiry are delegated to golang.org/x/oauth2; the token
// is process-wide shared read-only state owned by this source.
// NOTE: an app token cannot stand in for a user OAuth token; streamlink's
// --twitch-api-header wants the latter.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string       // defaults to the Twitch id server; tests override
	HTTPClient   *http.Client // defaults to http.DefaultClient

	once    sync.Once
	src     oauth2.TokenSource
	initErr error
}

func (ts *TokenSource) init() {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		ts.initErr = errors.New("missing client id/secret for twitch app token")
		return
	}
	cfg := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     ts.TokenURL,
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = endpoints.Twitch.TokenURL
	}
	ctx := context.Background()
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	ts.src = cfg.TokenSource(ctx)
}

// Get returns a valid (fresh or cached) app access token. A 401/403 from the
// id server is surfaced as platform.ErrAuthFailed.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.once.Do(ts.init)
	if ts.initErr != nil {
		return "", ts.initErr
	}
	tok, err := ts.src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusUnauthorized || rerr.Response.StatusCode == http.StatusForbidden) {
			return "", fmt.Errorf("twitch app token rejected: %w", platform.ErrAuthFailed)
		}
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	return tok.AccessToken, nil
}
