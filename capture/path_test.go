package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/stream-tender/platform"
)

func TestOutputPathFormat(t *testing.T) {
	ts := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		ch   platform.Channel
		want string
	}{
		{
			name: "twitch",
			ch:   platform.Channel{Platform: platform.Twitch, Name: "alice"},
			want: "2026-08-30 14:05 ttv alice Movie Night.mp4",
		},
		{
			name: "kick",
			ch:   platform.Channel{Platform: platform.Kick, Name: "carol"},
			want: "2026-08-30 14:05 kick carol Movie Night.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutputPath("/data", tt.ch, "Movie Night", ts)
			if got != filepath.Join("/data", tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain title", "plain title"},
		{"", "Unknown Title"},
		{"   ", "Unknown Title"},
		{"a/b\\c", "a_b_c"},
		{"tab\there", "tab_here"},
		{"new\nline", "new_line"},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeTitleCapsLength(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := SanitizeTitle(long)
	if n := len([]rune(got)); n != 200 {
		t.Fatalf("length = %d, want 200", n)
	}
}

func TestEnsureUnique(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.mp4")

	got, err := EnsureUnique(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Fatalf("fresh path rewritten to %q", got)
	}

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = EnsureUnique(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "capture (1).mp4"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if err := os.WriteFile(got, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = EnsureUnique(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "capture (2).mp4"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnsureUniqueGivesUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.mp4")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	for n := 1; n < 100; n++ {
		p := filepath.Join(dir, fmt.Sprintf("capture (%d).mp4", n))
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, err := EnsureUnique(path)
	if !errors.Is(err, ErrPathConflict) {
		t.Fatalf("err = %v, want ErrPathConflict", err)
	}
}
