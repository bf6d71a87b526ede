package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/stream-tender/config"
	"github.com/onnwee/stream-tender/db"
	"github.com/onnwee/stream-tender/platform"
	"github.com/onnwee/stream-tender/telemetry"
)

// ErrDrainTimeout means one or more capture processes did not stop within the
// shutdown deadline.
var ErrDrainTimeout = errors.New("shutdown drain timed out")

// Orchestrator runs one polling goroutine per configured channel and owns the
// platform-level disable switch: an auth failure on any channel suspends live
// checks for that whole platform while running captures keep draining.
type Orchestrator struct {
	cfg      *config.Config
	monitors []*Monitor
	dbc      *sql.DB // optional; heartbeat only

	mu       sync.Mutex
	disabled map[platform.Platform]bool
}

// NewOrchestrator builds one Monitor per configured channel. checkers maps a
// platform to its live-status implementation; channels whose platform has no
// checker are rejected.
func NewOrchestrator(cfg *config.Config, checkers map[platform.Platform]platform.Checker, history History, dbc *sql.DB) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg,
		dbc:      dbc,
		disabled: make(map[platform.Platform]bool),
	}
	opts := Options{
		OutputDir:     cfg.OutputDir,
		Tool:          cfg.StreamlinkPath,
		CheckTimeout:  cfg.CheckTimeout,
		GraceTimeout:  cfg.GraceTimeout,
		OfflineChecks: cfg.OfflineChecks,
		Location:      cfg.Location,
		History:       history,
	}
	for _, ch := range cfg.Channels() {
		checker, ok := checkers[ch.Platform]
		if !ok {
			return nil, fmt.Errorf("no checker for platform %s (channel %s)", ch.Platform, ch.Name)
		}
		o.monitors = append(o.monitors, New(ch, checker, opts))
	}
	return o, nil
}

// Monitors returns the per-channel monitors, for the status endpoint.
func (o *Orchestrator) Monitors() []*Monitor { return o.monitors }

// Snapshots returns the current state of every monitored channel.
func (o *Orchestrator) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(o.monitors))
	for _, m := range o.monitors {
		out = append(out, m.Snapshot())
	}
	return out
}

func (o *Orchestrator) isDisabled(p platform.Platform) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disabled[p]
}

func (o *Orchestrator) disablePlatform(p platform.Platform, err error) {
	o.mu.Lock()
	already := o.disabled[p]
	o.disabled[p] = true
	o.mu.Unlock()
	if already {
		return
	}
	telemetry.SetPlatformDisabled(string(p), true)
	slog.Error("platform checks disabled after auth failure",
		slog.String("platform", p.DisplayName()), slog.Any("err", err),
		slog.String("component", "orchestrator"))
}

// Run polls every channel until ctx is cancelled, then drains running
// captures. It returns nil on a clean drain and ErrDrainTimeout when the
// shutdown deadline expires with captures still running.
func (o *Orchestrator) Run(ctx context.Context) error {
	byPlatform := map[platform.Platform]int{}
	for _, m := range o.monitors {
		byPlatform[m.Channel().Platform]++
	}
	for p, n := range byPlatform {
		slog.Info("monitoring channels",
			slog.String("platform", p.DisplayName()), slog.Int("count", n),
			slog.Duration("interval", o.cfg.CheckInterval),
			slog.String("component", "orchestrator"))
	}

	var wg sync.WaitGroup
	for _, m := range o.monitors {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			o.pollLoop(ctx, m)
		}(m)
	}
	if o.dbc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.heartbeatLoop(ctx)
		}()
	}

	<-ctx.Done()
	slog.Info("shutdown requested, draining captures",
		slog.Duration("timeout", o.cfg.ShutdownTimeout),
		slog.String("component", "orchestrator"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all captures drained", slog.String("component", "orchestrator"))
		return nil
	case <-time.After(o.cfg.ShutdownTimeout):
		return ErrDrainTimeout
	}
}

// pollLoop runs one channel's ticker. The first check fires immediately so a
// channel that is already live gets captured without waiting a full interval.
func (o *Orchestrator) pollLoop(ctx context.Context, m *Monitor) {
	o.tickOne(ctx, m)
	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			o.tickOne(ctx, m)
		}
	}
}

func (o *Orchestrator) tickOne(ctx context.Context, m *Monitor) {
	p := m.Channel().Platform
	if o.isDisabled(p) {
		// No live checks, but a capture already running must still be reaped
		// when its process exits.
		m.Reap(ctx)
		return
	}
	if err := m.Tick(ctx); err != nil {
		o.disablePlatform(p, err)
	}
}

// heartbeatLoop records a liveness timestamp in the kv table each interval so
// operators can see the orchestrator is polling.
func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.SetKV(ctx, o.dbc, "orchestrator_heartbeat", time.Now().UTC().Format(time.RFC3339)); err != nil {
				slog.Debug("heartbeat write failed", slog.Any("err", err),
					slog.String("component", "orchestrator"))
			}
		}
	}
}
