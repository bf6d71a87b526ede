// Package monitor drives the per-channel capture lifecycle. Each Monitor owns
// one channel and moves it between two phases: Idle (polling live status) and
// Capturing (an external recording process is running). The orchestrator runs
// one polling goroutine per monitor and arbitrates platform-level auth
// failures across them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/stream-tender/capture"
	"github.com/onnwee/stream-tender/platform"
	"github.com/onnwee/stream-tender/telemetry"
)

// Phase is the lifecycle state of a monitored channel.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCapturing Phase = "capturing"
)

// Proc is the running capture process as the state machine sees it.
// *capture.Handle satisfies it; tests substitute a fake.
type Proc interface {
	Alive() bool
	ExitErr() error
	Terminate(grace time.Duration) error
	OutputPath() string
}

// StartFunc launches a capture process (for tests/mocks).
type StartFunc func(tool string, args []string, outputPath string) (Proc, error)

func defaultStart(tool string, args []string, outputPath string) (Proc, error) {
	return capture.Start(tool, args, outputPath)
}

// History records capture lifecycle events in durable storage. A nil History
// disables recording; history write failures never block a capture.
type History interface {
	CaptureStarted(ctx context.Context, ch platform.Channel, outputPath, title string, startedAt time.Time) error
	CaptureEnded(ctx context.Context, outputPath string, endedAt time.Time, exitStatus string) error
}

// Options are the knobs a Monitor needs beyond its channel and checker.
type Options struct {
	OutputDir     string
	Tool          string // capture tool binary, e.g. streamlink
	CheckTimeout  time.Duration
	GraceTimeout  time.Duration
	OfflineChecks int // consecutive not-live polls before a capture is stopped
	Location      *time.Location
	History       History
	Start         StartFunc
}

// Monitor is the state machine for one channel. Tick and Shutdown are called
// from the owning polling goroutine; Snapshot may be called concurrently.
type Monitor struct {
	ch      platform.Channel
	checker platform.Checker
	opts    Options
	logger  *slog.Logger

	mu            sync.Mutex
	phase         Phase
	proc          Proc
	jobID         string
	title         string
	captureStart  time.Time
	offlineStreak int
}

// New builds a Monitor in the Idle phase.
func New(ch platform.Channel, checker platform.Checker, opts Options) *Monitor {
	if opts.Tool == "" {
		opts.Tool = "streamlink"
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 15 * time.Second
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = 10 * time.Second
	}
	if opts.OfflineChecks < 1 {
		opts.OfflineChecks = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Start == nil {
		opts.Start = defaultStart
	}
	return &Monitor{
		ch:      ch,
		checker: checker,
		opts:    opts,
		phase:   PhaseIdle,
		logger: slog.Default().With(
			slog.String("component", "monitor"),
			slog.String("channel", ch.Key()),
		),
	}
}

// Channel returns the monitored channel.
func (m *Monitor) Channel() platform.Channel { return m.ch }

// Snapshot is a point-in-time view of a monitor for the status endpoint.
type Snapshot struct {
	Channel    string    `json:"channel"`
	Platform   string    `json:"platform"`
	Phase      Phase     `json:"phase"`
	JobID      string    `json:"job_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Since      time.Time `json:"capturing_since,omitempty"`
}

// Snapshot returns the monitor's current state. Safe for concurrent use.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{Channel: m.ch.Name, Platform: string(m.ch.Platform), Phase: m.phase}
	if m.phase == PhaseCapturing && m.proc != nil {
		s.JobID = m.jobID
		s.Title = m.title
		s.OutputPath = m.proc.OutputPath()
		s.Since = m.captureStart
	}
	return s
}

// Tick evaluates one poll cycle: reap an exited capture, check live status,
// and start or stop a capture as the status dictates. A returned error is
// always an auth failure; transient check errors are absorbed here and the
// previous state is retained.
func (m *Monitor) Tick(ctx context.Context) error {
	telemetry.PollTicks.Inc()
	m.Reap(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, m.opts.CheckTimeout)
	defer cancel()
	checkCtx, span := telemetry.StartSpan(checkCtx, "monitor", "live-check",
		telemetry.ChannelAttr(m.ch.Key()), telemetry.PlatformAttr(string(m.ch.Platform)))
	start := time.Now()
	status, err := m.checker.CheckLive(checkCtx, m.ch.Name)
	telemetry.RecordError(span, err)
	span.End()
	if err != nil {
		if platform.IsAuthFailed(err) {
			telemetry.ObserveCheck(string(m.ch.Platform), time.Since(start), err, "auth")
			return err
		}
		telemetry.ObserveCheck(string(m.ch.Platform), time.Since(start), err, "transient")
		m.logger.Warn("live check failed, retaining state", slog.Any("err", err))
		return nil
	}
	telemetry.ObserveCheck(string(m.ch.Platform), time.Since(start), nil, "")

	if status.Live {
		m.tickLive(ctx, status)
	} else {
		m.tickOffline(ctx)
	}
	return nil
}

func (m *Monitor) tickLive(ctx context.Context, status platform.LiveStatus) {
	m.mu.Lock()
	capturing := m.phase == PhaseCapturing
	m.offlineStreak = 0
	m.mu.Unlock()
	if capturing {
		// Already recording this stream; nothing to do.
		return
	}
	if err := m.startCapture(ctx, status); err != nil {
		telemetry.CaptureStartErr.Inc()
		if errors.Is(err, capture.ErrToolUnavailable) {
			m.logger.Error("capture tool unavailable, will retry next poll", slog.Any("err", err))
		} else {
			m.logger.Error("capture start failed", slog.Any("err", err))
		}
	}
}

func (m *Monitor) tickOffline(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseCapturing {
		m.offlineStreak = 0
		m.mu.Unlock()
		return
	}
	m.offlineStreak++
	streak := m.offlineStreak
	m.mu.Unlock()

	if streak < m.opts.OfflineChecks {
		m.logger.Debug("channel reported offline while capturing",
			slog.Int("streak", streak), slog.Int("threshold", m.opts.OfflineChecks))
		return
	}
	m.logger.Info("channel offline past threshold, stopping capture",
		slog.Int("streak", streak))
	m.stopCapture(ctx, "offline")
}

// startCapture composes the output path, launches the tool, and transitions
// to Capturing. Any failure leaves the monitor Idle; the next poll retries.
func (m *Monitor) startCapture(ctx context.Context, status platform.LiveStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "monitor", "capture-start",
		telemetry.ChannelAttr(m.ch.Key()), telemetry.PlatformAttr(string(m.ch.Platform)))
	defer span.End()

	if err := os.MkdirAll(m.opts.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("create output dir: %w", err)
		telemetry.RecordError(span, err)
		return err
	}
	now := time.Now().In(m.opts.Location)
	path := capture.OutputPath(m.opts.OutputDir, m.ch, status.Title, now)
	path, err := capture.EnsureUnique(path)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	args := m.checker.CaptureArgs(m.ch.Name, path)
	proc, err := m.opts.Start(m.opts.Tool, args, path)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	jobID := uuid.NewString()

	m.mu.Lock()
	m.phase = PhaseCapturing
	m.proc = proc
	m.jobID = jobID
	m.title = status.Title
	m.captureStart = now
	m.offlineStreak = 0
	m.mu.Unlock()

	telemetry.CapturesStarted.Inc()
	telemetry.ActiveCaptures.Inc()
	telemetry.SetSpanSuccess(span)
	m.logger.Info("capture started", slog.String("job_id", jobID),
		slog.String("output", path), slog.String("title", status.Title))
	if m.opts.History != nil {
		if err := m.opts.History.CaptureStarted(ctx, m.ch, path, status.Title, now); err != nil {
			m.logger.Warn("record capture start", slog.Any("err", err))
		}
	}
	return nil
}

// Reap notices a capture process that exited on its own and returns the
// monitor to Idle. Called on every tick and while a platform is disabled, so
// an in-flight capture still drains even when polling is suspended.
func (m *Monitor) Reap(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseCapturing || m.proc == nil || m.proc.Alive() {
		m.mu.Unlock()
		return
	}
	proc := m.proc
	jobID := m.jobID
	started := m.captureStart
	m.phase = PhaseIdle
	m.proc = nil
	m.offlineStreak = 0
	m.mu.Unlock()

	exitErr := proc.ExitErr()
	m.finalize(ctx, proc.OutputPath(), started, exitErr)
	if exitErr != nil {
		telemetry.CapturesCrashed.Inc()
		m.logger.Warn("capture process exited abnormally",
			slog.String("job_id", jobID), slog.Any("err", exitErr))
	} else {
		m.logger.Info("capture process exited", slog.String("job_id", jobID))
	}
}

// stopCapture terminates the running process and returns to Idle.
func (m *Monitor) stopCapture(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.phase != PhaseCapturing || m.proc == nil {
		m.mu.Unlock()
		return
	}
	proc := m.proc
	jobID := m.jobID
	started := m.captureStart
	m.phase = PhaseIdle
	m.proc = nil
	m.offlineStreak = 0
	m.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "monitor", "capture-stop",
		telemetry.ChannelAttr(m.ch.Key()), telemetry.PlatformAttr(string(m.ch.Platform)))
	defer span.End()
	if err := proc.Terminate(m.opts.GraceTimeout); err != nil {
		telemetry.RecordError(span, err)
		m.logger.Error("capture terminate", slog.String("job_id", jobID), slog.Any("err", err))
	}
	m.finalize(ctx, proc.OutputPath(), started, proc.ExitErr())
	m.logger.Info("capture stopped", slog.String("job_id", jobID), slog.String("reason", reason))
}

// Shutdown stops any running capture. Called once during service shutdown.
func (m *Monitor) Shutdown(ctx context.Context) {
	m.stopCapture(ctx, "shutdown")
}

func (m *Monitor) finalize(ctx context.Context, outputPath string, started time.Time, exitErr error) {
	telemetry.CapturesEnded.Inc()
	telemetry.ActiveCaptures.Dec()
	if !started.IsZero() {
		telemetry.CaptureDuration.Observe(time.Since(started).Seconds())
	}
	if m.opts.History == nil {
		return
	}
	exitStatus := "ok"
	if exitErr != nil {
		exitStatus = exitErr.Error()
	}
	if err := m.opts.History.CaptureEnded(ctx, outputPath, time.Now(), exitStatus); err != nil {
		m.logger.Warn("record capture end", slog.Any("err", err))
	}
}
