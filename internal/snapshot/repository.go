package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot represents a stored daily P&L report.
type Snapshot struct {
	ID           string          `json:"id"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots. One snapshot is kept per date.
type Repository interface {
	Save(ctx context.Context, id string, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context) (*Snapshot, error)
	GetByDate(ctx context.Context, date time.Time) (*Snapshot, error)
	GetNearestBefore(ctx context.Context, date time.Time) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectSnapshot = `SELECT id::TEXT, snapshot_date, data, created_at FROM pnl_snapshots`

func (r *PgRepository) Save(ctx context.Context, id string, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pnl_snapshots (id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (snapshot_date)
		 DO UPDATE SET id = $1, data = $3::jsonb, created_at = NOW()`,
		id, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context) (*Snapshot, error) {
	return r.queryOne(ctx, "getting latest snapshot",
		selectSnapshot+` ORDER BY snapshot_date DESC LIMIT 1`)
}

func (r *PgRepository) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	return r.queryOne(ctx, "getting snapshot by date",
		selectSnapshot+` WHERE snapshot_date = $1`, date)
}

func (r *PgRepository) GetNearestBefore(ctx context.Context, date time.Time) (*Snapshot, error) {
	return r.queryOne(ctx, "getting snapshot before date",
		selectSnapshot+` WHERE snapshot_date <= $1 ORDER BY snapshot_date DESC LIMIT 1`, date)
}

func (r *PgRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx, selectSnapshot+` ORDER BY snapshot_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	snapshots, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("scanning snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *PgRepository) queryOne(ctx context.Context, op, sql string, args ...any) (*Snapshot, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSnapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

func scanSnapshot(row pgx.CollectableRow) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	return s, err
}
