// Package store loads work plans into PostgreSQL for the production
// scheduler.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// ErrNotFound is returned when a plan id is unknown.
var ErrNotFound = errors.New("work plan not found")

const schema = `
CREATE TABLE IF NOT EXISTS workplans (
    plan_id TEXT PRIMARY KEY,
    aez_id INTEGER NOT NULL,
    season_type TEXT NOT NULL,
    season_start DATE NOT NULL,
    season_end DATE NOT NULL,
    user_name TEXT NOT NULL,
    visibility TEXT NOT NULL,
    generated TEXT NOT NULL,
    document JSONB NOT NULL,
    pushed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_workplans_aez ON workplans(aez_id);

CREATE TABLE IF NOT EXISTS workplan_tiles (
    plan_id TEXT NOT NULL REFERENCES workplans(plan_id) ON DELETE CASCADE,
    tile_id TEXT NOT NULL,
    s1_orbit_dir TEXT NOT NULL DEFAULT '',
    s1_nb INTEGER NOT NULL,
    s2_nb INTEGER NOT NULL,
    l8_nb INTEGER NOT NULL,
    l8_enable_sr BOOLEAN NOT NULL DEFAULT FALSE,
    status TEXT NOT NULL DEFAULT 'scheduled',
    PRIMARY KEY (plan_id, tile_id)
);
`

const upsertPlan = `
INSERT INTO workplans (plan_id, aez_id, season_type, season_start, season_end, user_name, visibility, generated, document)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (plan_id) DO UPDATE SET
    aez_id = EXCLUDED.aez_id,
    season_type = EXCLUDED.season_type,
    season_start = EXCLUDED.season_start,
    season_end = EXCLUDED.season_end,
    user_name = EXCLUDED.user_name,
    visibility = EXCLUDED.visibility,
    generated = EXCLUDED.generated,
    document = EXCLUDED.document,
    pushed_at = NOW()`

const insertTile = `
INSERT INTO workplan_tiles (plan_id, tile_id, s1_orbit_dir, s1_nb, s2_nb, l8_nb, l8_enable_sr)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Store is a PostgreSQL backed plan store.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL and creates the plan tables when missing.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

// Push writes a plan and its tile rows. Pushing a plan id again replaces the
// previous rows.
func (s *Store) Push(ctx context.Context, wp *workplan.WorkPlan) error {
	doc, err := wp.Bytes()
	if err != nil {
		return err
	}
	start, end, err := seasonDates(wp)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertPlan,
		wp.ID, wp.AEZID, wp.SeasonType, start, end, wp.User, wp.Visibility, wp.Generated, doc,
	); err != nil {
		return fmt.Errorf("insert plan %s: %w", wp.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workplan_tiles WHERE plan_id = $1`, wp.ID); err != nil {
		return fmt.Errorf("clear tiles of plan %s: %w", wp.ID, err)
	}

	batch := &pgx.Batch{}
	for _, row := range tileRows(wp) {
		batch.Queue(insertTile, row...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert tiles of plan %s: %w", wp.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit plan %s: %w", wp.ID, err)
	}

	s.logger.InfoContext(ctx, "plan pushed to database",
		slog.String("plan_id", wp.ID),
		slog.Int("aez_id", wp.AEZID),
		slog.Int("tiles", len(wp.Tiles)),
	)
	return nil
}

// Get reads a stored plan back.
func (s *Store) Get(ctx context.Context, planID string) (*workplan.WorkPlan, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM workplans WHERE plan_id = $1`, planID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan %s: %w", planID, err)
	}
	return workplan.Decode(bytes.NewReader(doc))
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

func seasonDates(wp *workplan.WorkPlan) (time.Time, time.Time, error) {
	start, err := time.Parse(workplan.DateLayout, wp.SeasonStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("plan %s season start: %w", wp.ID, err)
	}
	end, err := time.Parse(workplan.DateLayout, wp.SeasonEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("plan %s season end: %w", wp.ID, err)
	}
	return start, end, nil
}

func tileRows(wp *workplan.WorkPlan) [][]any {
	rows := make([][]any, 0, len(wp.Tiles))
	for _, tp := range wp.Tiles {
		rows = append(rows, []any{wp.ID, tp.TileID, tp.S1OrbitDir, tp.S1Nb, tp.S2Nb, tp.L8Nb, tp.L8EnableSR})
	}
	return rows
}
