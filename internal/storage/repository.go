package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"personalos/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores metrics snapshots in SQLite.
type SQLiteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateSnapshots(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Snapshot schema ready", "component", "storage", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was left at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements ports.SnapshotStore.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const insertSnapshot = `
INSERT INTO metrics_snapshots (taken_at, mrr, exact_mrr, monthly_revenue, active_subscriptions, recent_charges)
VALUES (?, ?, ?, ?, ?, ?)`

// SaveSnapshot implements ports.SnapshotStore.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.MetricsSnapshot) (core.MetricsSnapshot, error) {
	exact := s.ExactMRR
	if exact == "" {
		exact = "0"
	}
	res, err := r.db.ExecContext(ctx, insertSnapshot,
		s.TakenAt.UTC(), s.MRR, exact, s.MonthlyRevenue, s.ActiveSubscriptions, s.RecentCharges)
	if err != nil {
		return core.MetricsSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.MetricsSnapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	s.ID = id
	s.ExactMRR = exact

	slog.DebugContext(ctx, "Snapshot saved to SQLite",
		"snapshot_id", id,
		"mrr", s.MRR,
		"taken_at", s.TakenAt)

	return s, nil
}

const listSnapshots = `
SELECT id, taken_at, mrr, exact_mrr, monthly_revenue, active_subscriptions, recent_charges
FROM metrics_snapshots
ORDER BY taken_at DESC, id DESC
LIMIT ?`

// ListSnapshots implements ports.SnapshotStore.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, limit int) ([]core.MetricsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, listSnapshots, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.MetricsSnapshot
	for rows.Next() {
		var s core.MetricsSnapshot
		if err := rows.Scan(&s.ID, &s.TakenAt, &s.MRR, &s.ExactMRR, &s.MonthlyRevenue,
			&s.ActiveSubscriptions, &s.RecentCharges); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// PruneSnapshots implements ports.SnapshotStore.
func (r *SQLiteRepository) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metrics_snapshots WHERE taken_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}
