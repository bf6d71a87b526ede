package platform

import "errors"

// ErrAuthFailed marks a live check that failed because the platform rejected
// our credentials. The orchestrator disables checking for that platform only;
// at startup it is fatal for a platform with configured channels. Wrap with
// fmt.Errorf("...: %w", ErrAuthFailed) so callers can errors.Is it.
var ErrAuthFailed = errors.New("platform authentication failed")

// IsAuthFailed reports whether err (anywhere in its chain) is an auth failure.
func IsAuthFailed(err error) bool { return errors.Is(err, ErrAuthFailed) }

// IsTransient reports whether a check error should be treated as a network/API
// hiccup: previous state is retained and the next poll retries. Everything
// that is not an auth failure falls in this bucket.
func IsTransient(err error) bool { return err != nil && !errors.Is(err, ErrAuthFailed) }
