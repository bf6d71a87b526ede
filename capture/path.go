package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/onnwee/stream-tender/platform"
)

const maxTitleRunes = 200

// OutputPath composes the capture filename from the capture-start timestamp,
// platform tag, channel name, and sanitized stream title:
//
//	"2026-08-30 14:05 ttv alice Movie Night.mp4"
func OutputPath(dir string, ch platform.Channel, title string, startedAt time.Time) string {
	ts := startedAt.Format("2006-01-02 15:04")
	name := fmt.Sprintf("%s %s %s %s.mp4", ts, ch.Platform.Tag(), ch.Name, SanitizeTitle(title))
	return filepath.Join(dir, name)
}

// SanitizeTitle makes a stream title safe to embed in a filename: path
// separators and control characters become underscores, and the result is
// capped at 200 runes.
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Unknown Title"
	}
	out := make([]rune, 0, len(title))
	for _, r := range title {
		if r == '/' || r == '\\' || r == 0 || unicode.IsControl(r) {
			r = '_'
		}
		out = append(out, r)
		if len(out) == maxTitleRunes {
			break
		}
	}
	return string(out)
}

// EnsureUnique returns a path that does not yet exist on disk, appending a
// " (n)" suffix before the extension when the candidate is taken. It never
// overwrites: after 99 attempts it gives up with ErrPathConflict.
func EnsureUnique(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; n < 100; n++ {
		cand := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand, nil
		}
	}
	return "", fmt.Errorf("%s: %w", path, ErrPathConflict)
}
