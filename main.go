// Command stream-tender watches configured Twitch and Kick channels and
// records every live stream with streamlink. It:
//   - Loads configuration and initializes structured logging.
//   - Probes Twitch credentials up front so bad secrets fail fast.
//   - Optionally connects to Postgres for capture history and runs
//     idempotent migrations.
//   - Runs one polling monitor per channel, launching and reaping one
//     capture process per live stream.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and
//     /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: running captures get a termination
// grace period before being killed.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-tender/config"
	"github.com/onnwee/stream-tender/db"
	"github.com/onnwee/stream-tender/kickapi"
	"github.com/onnwee/stream-tender/monitor"
	"github.com/onnwee/stream-tender/platform"
	"github.com/onnwee/stream-tender/server"
	"github.com/onnwee/stream-tender/telemetry"
	"github.com/onnwee/stream-tender/twitchapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		return 1
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stream-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	// Build one checker per configured platform.
	checkers := map[platform.Platform]platform.Checker{}
	var twitchChecker *twitchapi.Checker
	if len(cfg.TwitchChannels) > 0 {
		twitchChecker = twitchapi.NewChecker(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchOAuthToken)
		checkers[platform.Twitch] = twitchChecker
	}
	if len(cfg.KickChannels) > 0 {
		checkers[platform.Kick] = kickapi.NewChecker(cfg.KickPluginDir)
	}

	// Probe Twitch credentials before starting anything: a rejected secret is
	// a configuration error, not a runtime hiccup.
	if twitchChecker != nil {
		probeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		tok, err := twitchChecker.Helix.AppTokenSource.Get(probeCtx)
		cancel()
		switch {
		case platform.IsAuthFailed(err):
			slog.Error("twitch credentials rejected", slog.Any("err", err))
			return 1
		case err != nil:
			slog.Warn("twitch app token fetch failed, continuing", slog.Any("err", err))
		case len(tok) > 6:
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
	}

	// Optional DB: capture history is recorded only when DB_DSN is set.
	var database *sql.DB
	var history monitor.History
	if cfg.DBDsn != "" {
		database, err = db.ConnectDSN(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		// Versioned migrations first, embedded SQL as fallback for
		// deployments without a schema_migrations table.
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
				slog.Any("err", err), slog.String("component", "db_migrate"))
			if err := db.Migrate(context.Background(), database); err != nil {
				slog.Error("failed to migrate db", slog.Any("err", err))
				return 1
			}
		}
		hist := &db.CaptureHistory{DB: database}
		if n, err := hist.CloseStale(context.Background()); err != nil {
			slog.Warn("close stale capture rows", slog.Any("err", err))
		} else if n > 0 {
			slog.Info("closed stale capture rows from previous run", slog.Int64("count", n))
		}
		history = hist
	}

	orch, err := monitor.NewOrchestrator(cfg, checkers, history, database)
	if err != nil {
		slog.Error("orchestrator init failed", slog.Any("err", err))
		return 1
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, orch.Snapshots, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block polling channels until shutdown signal, then drain captures.
	if err := orch.Run(ctx); err != nil {
		slog.Error("shutdown incomplete", slog.Any("err", err))
		return 1
	}
	slog.Info("shutdown complete")
	return 0
}

func setupLogging() {
	// Level + format from env. Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()),
		slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
