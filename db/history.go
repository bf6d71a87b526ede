package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/onnwee/stream-tender/platform"
)

// CaptureHistory records capture lifecycle events in the captures table. It
// satisfies the monitor.History interface. Rows are keyed by output path,
// which is unique per run by construction.
type CaptureHistory struct {
	DB *sql.DB
}

// CaptureStarted inserts a new open capture row.
func (h *CaptureHistory) CaptureStarted(ctx context.Context, ch platform.Channel, outputPath, title string, startedAt time.Time) error {
	_, err := h.DB.ExecContext(ctx,
		`INSERT INTO captures (channel, platform, title, output_path, started_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())
		 ON CONFLICT (output_path) DO NOTHING`,
		ch.Name, string(ch.Platform), title, outputPath, startedAt)
	return err
}

// CaptureEnded closes the capture row with its end time and exit status.
func (h *CaptureHistory) CaptureEnded(ctx context.Context, outputPath string, endedAt time.Time, exitStatus string) error {
	_, err := h.DB.ExecContext(ctx,
		`UPDATE captures SET ended_at=$1, exit_status=$2, updated_at=NOW() WHERE output_path=$3`,
		endedAt, exitStatus, outputPath)
	return err
}

// CloseStale marks any capture rows left open by a previous crashed run. Call
// once at startup before monitoring begins.
func (h *CaptureHistory) CloseStale(ctx context.Context) (int64, error) {
	res, err := h.DB.ExecContext(ctx,
		`UPDATE captures SET ended_at=NOW(), exit_status='interrupted', updated_at=NOW() WHERE ended_at IS NULL`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
