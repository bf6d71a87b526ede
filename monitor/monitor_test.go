package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/stream-tender/capture"
	"github.com/onnwee/stream-tender/platform"
	"github.com/onnwee/stream-tender/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

// scripted live-status checker; each Tick consumes one step.
type fakeChecker struct {
	mu       sync.Mutex
	plat     platform.Platform
	steps    []checkStep
	pos      int
	argCalls int
}

type checkStep struct {
	status platform.LiveStatus
	err    error
}

func live(title string) checkStep {
	return checkStep{status: platform.LiveStatus{Live: true, Title: title}}
}

func offline() checkStep { return checkStep{} }

func (f *fakeChecker) Platform() platform.Platform { return f.plat }

func (f *fakeChecker) CheckLive(ctx context.Context, channel string) (platform.LiveStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return platform.LiveStatus{}, nil
	}
	step := f.steps[f.pos]
	if f.pos < len(f.steps)-1 {
		f.pos++ // last step repeats
	}
	return step.status, step.err
}

func (f *fakeChecker) CaptureArgs(channel, outputPath string) []string {
	f.mu.Lock()
	f.argCalls++
	f.mu.Unlock()
	return []string{"--output", outputPath, "https://example.com/" + channel, "best"}
}

type fakeProc struct {
	mu         sync.Mutex
	path       string
	alive      bool
	exitErr    error
	terminated int
}

func (p *fakeProc) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProc) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alive {
		return nil
	}
	return p.exitErr
}

func (p *fakeProc) Terminate(grace time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	p.alive = false
	return nil
}

func (p *fakeProc) OutputPath() string { return p.path }

func (p *fakeProc) exit(err error) {
	p.mu.Lock()
	p.alive = false
	p.exitErr = err
	p.mu.Unlock()
}

// starter tracks every launched fakeProc and can be scripted to fail.
type starter struct {
	mu     sync.Mutex
	procs  []*fakeProc
	errs   []error // consumed first, one per call
	starts int
}

func (s *starter) start(tool string, args []string, outputPath string) (Proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	p := &fakeProc{path: outputPath, alive: true}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *starter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *starter) last() *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

type historyEvent struct {
	kind string
	path string
}

type fakeHistory struct {
	mu     sync.Mutex
	events []historyEvent
}

func (h *fakeHistory) CaptureStarted(ctx context.Context, ch platform.Channel, outputPath, title string, startedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{kind: "start", path: outputPath})
	return nil
}

func (h *fakeHistory) CaptureEnded(ctx context.Context, outputPath string, endedAt time.Time, exitStatus string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{kind: "end", path: outputPath})
	return nil
}

func newTestMonitor(t *testing.T, fc *fakeChecker, st *starter, hist History) *Monitor {
	t.Helper()
	ch := platform.Channel{Platform: fc.plat, Name: "alice"}
	return New(ch, fc, Options{
		OutputDir:     t.TempDir(),
		Tool:          "streamlink",
		CheckTimeout:  time.Second,
		GraceTimeout:  50 * time.Millisecond,
		OfflineChecks: 3,
		History:       hist,
		Start:         st.start,
	})
}

func TestLiveStartsSingleCapture(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{live("Movie Night")}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if got := st.count(); got != 1 {
		t.Fatalf("starts = %d, want exactly 1 while continuously live", got)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseCapturing {
		t.Fatalf("phase = %s, want capturing", snap.Phase)
	}
}

func TestCaptureRestartsAfterProcessExit(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{live("Part 1")}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	st.last().exit(nil)

	// The next tick reaps the dead process and, with the channel still live,
	// starts a fresh capture.
	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if got := st.count(); got != 2 {
		t.Fatalf("starts = %d, want 2 after process exit while live", got)
	}
}

func TestOfflineThresholdStopsCapture(t *testing.T) {
	fc := &fakeChecker{plat: platform.Kick, steps: []checkStep{live("Show"), offline()}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	proc := st.last()

	// Two offline polls are below the threshold of three: keep capturing.
	for i := 0; i < 2; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatal(err)
		}
		if !proc.Alive() {
			t.Fatalf("capture stopped after %d offline polls, threshold is 3", i+1)
		}
	}

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if proc.terminated == 0 {
		t.Fatal("capture not terminated after offline threshold")
	}
	if snap := m.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle", snap.Phase)
	}
}

func TestOfflineStreakResetsOnLive(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{
		live("Show"), offline(), offline(), live("Show"), offline(), offline(),
	}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// Streak went 0,1,2,reset,1,2: never reached 3, capture still running.
	if !st.last().Alive() {
		t.Fatal("capture stopped even though offline streak never reached threshold")
	}
}

func TestTransientErrorRetainsState(t *testing.T) {
	netErr := errors.New("connection reset")

	t.Run("idle stays idle", func(t *testing.T) {
		fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{{err: netErr}}}
		st := &starter{}
		m := newTestMonitor(t, fc, st, nil)
		for i := 0; i < 3; i++ {
			if err := m.Tick(context.Background()); err != nil {
				t.Fatalf("transient error surfaced from tick: %v", err)
			}
		}
		if st.count() != 0 {
			t.Fatal("capture started despite failed checks")
		}
		if snap := m.Snapshot(); snap.Phase != PhaseIdle {
			t.Fatalf("phase = %s, want idle", snap.Phase)
		}
	})

	t.Run("capturing keeps capturing", func(t *testing.T) {
		fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{live("Show"), {err: netErr}}}
		st := &starter{}
		m := newTestMonitor(t, fc, st, nil)
		if err := m.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			if err := m.Tick(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
		if !st.last().Alive() {
			t.Fatal("capture stopped during transient check errors")
		}
	})
}

func TestTransientErrorDoesNotAdvanceOfflineStreak(t *testing.T) {
	netErr := errors.New("timeout")
	fc := &fakeChecker{plat: platform.Kick, steps: []checkStep{
		live("Show"), offline(), {err: netErr}, offline(), {err: netErr}, offline(),
	}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// Only the three offline results count toward the streak of three, so the
	// stop happens exactly on the sixth tick and not before.
	if st.last().terminated == 0 {
		t.Fatal("capture should stop after third offline result")
	}
}

func TestToolUnavailableStaysIdleAndRetries(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{live("Show")}}
	st := &starter{errs: []error{fmt.Errorf("streamlink: %w", capture.ErrToolUnavailable)}}
	m := newTestMonitor(t, fc, st, nil)
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle after failed start", snap.Phase)
	}

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseCapturing {
		t.Fatal("capture not retried after tool became available")
	}
	if st.count() != 2 {
		t.Fatalf("starts = %d, want 2", st.count())
	}
}

func TestAuthFailureSurfacesFromTick(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{
		{err: fmt.Errorf("helix: %w", platform.ErrAuthFailed)},
	}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)

	err := m.Tick(context.Background())
	if !platform.IsAuthFailed(err) {
		t.Fatalf("tick error = %v, want auth failure", err)
	}
}

func TestHistoryRecordsStartAndEnd(t *testing.T) {
	fc := &fakeChecker{plat: platform.Twitch, steps: []checkStep{live("Show"), offline()}}
	st := &starter{}
	hist := &fakeHistory{}
	m := newTestMonitor(t, fc, st, hist)
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	if len(hist.events) != 2 {
		t.Fatalf("history events = %d, want start+end", len(hist.events))
	}
	if hist.events[0].kind != "start" || hist.events[1].kind != "end" {
		t.Fatalf("events = %+v, want start then end", hist.events)
	}
	if hist.events[0].path != hist.events[1].path {
		t.Fatal("start and end recorded different output paths")
	}
}

func TestShutdownTerminatesCapture(t *testing.T) {
	fc := &fakeChecker{plat: platform.Kick, steps: []checkStep{live("Show")}}
	st := &starter{}
	m := newTestMonitor(t, fc, st, nil)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Shutdown(context.Background())

	if st.last().terminated == 0 {
		t.Fatal("capture process not terminated on shutdown")
	}
	if snap := m.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle after shutdown", snap.Phase)
	}
}
