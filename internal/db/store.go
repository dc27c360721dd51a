package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aarondl/opt/opt"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"ring-simulator/internal/history"
	"ring-simulator/internal/layout"
)

var ErrBatchNotFound = errors.New("batch not found")

// Batch is a stored set of runs sharing one parameter set.
type Batch struct {
	ID            uuid.UUID
	Track         string // variant selector, e.g. "gaussian"
	Name          string // display name of the track
	NumSims       int
	NumSteps      int
	MaxSpeed      float64
	SlowDownParam opt.Val[float64]
	DwellSteps    int
	Headway       float64
	Seed          int64
	Length        float64
	Stops         []layout.Stop
	Logs          []*history.Log
	Mean          float64 // NaN when no samples
	Std           float64 // NaN when no samples
	NumSamples    int
	CreatedAt     time.Time
}

// SaveBatch writes b with its stops and every run's position arrays in one transaction.
func SaveBatch(ctx context.Context, db *sql.DB, b *Batch) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var slow sql.NullFloat64
	if v, ok := b.SlowDownParam.Get(); ok {
		slow = sql.NullFloat64{Float64: v, Valid: true}
	}
	q := `
INSERT INTO batches (id, track, name, num_sims, num_steps, max_speed, slow_down_param,
                     dwell_steps, headway, seed, track_length, mean_interarrival,
                     std_interarrival, num_samples)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING created_at`
	err = tx.QueryRowContext(ctx, q, b.ID.String(), b.Track, b.Name, b.NumSims, b.NumSteps,
		b.MaxSpeed, slow, b.DwellSteps, b.Headway, b.Seed, b.Length,
		nullIfNaN(b.Mean), nullIfNaN(b.Std), b.NumSamples).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for i, s := range b.Stops {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batch_stops (batch_id, idx, name, position) VALUES ($1::uuid, $2, $3, $4)`,
			b.ID.String(), i, s.Name, s.Position); err != nil {
			return fmt.Errorf("insert stop %q: %w", s.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_positions (batch_id, run, train_idx, train, positions) VALUES ($1::uuid, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare positions: %w", err)
	}
	defer stmt.Close()
	for run, l := range b.Logs {
		for idx, train := range l.Trains() {
			if _, err := stmt.ExecContext(ctx, b.ID.String(), run, idx, train, l.TrainPositions(train)); err != nil {
				return fmt.Errorf("insert positions run %d train %s: %w", run, train, err)
			}
		}
	}
	return tx.Commit()
}

// LoadBatch reads a batch and rebuilds its position logs.
func LoadBatch(ctx context.Context, db *sql.DB, id uuid.UUID) (*Batch, error) {
	b := &Batch{ID: id}
	var slow, mean, std sql.NullFloat64
	q := `
SELECT track, name, num_sims, num_steps, max_speed, slow_down_param, dwell_steps,
       headway, seed, track_length, mean_interarrival, std_interarrival, num_samples, created_at
FROM batches WHERE id = $1::uuid`
	err := db.QueryRowContext(ctx, q, id.String()).Scan(&b.Track, &b.Name, &b.NumSims, &b.NumSteps,
		&b.MaxSpeed, &slow, &b.DwellSteps, &b.Headway, &b.Seed, &b.Length, &mean, &std,
		&b.NumSamples, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
		}
		return nil, fmt.Errorf("query batch: %w", err)
	}
	if slow.Valid {
		b.SlowDownParam = opt.From(slow.Float64)
	}
	b.Mean, b.Std = nanIfNull(mean), nanIfNull(std)

	if b.Stops, err = loadStops(ctx, db, id); err != nil {
		return nil, err
	}
	if b.Logs, err = loadLogs(ctx, db, id, b.Stops, b.NumSims); err != nil {
		return nil, err
	}
	return b, nil
}

func loadStops(ctx context.Context, db *sql.DB, id uuid.UUID) ([]layout.Stop, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, position FROM batch_stops WHERE batch_id = $1::uuid ORDER BY idx`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var stops []layout.Stop
	for rows.Next() {
		var s layout.Stop
		if err := rows.Scan(&s.Name, &s.Position); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

type trainRow struct {
	train     string
	positions []float64
}

func loadLogs(ctx context.Context, db *sql.DB, id uuid.UUID, stops []layout.Stop, numSims int) ([]*history.Log, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run, train, positions FROM run_positions WHERE batch_id = $1::uuid ORDER BY run, train_idx`,
		id.String())
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	perRun := make([][]trainRow, numSims)
	for rows.Next() {
		var run int
		var r trainRow
		if err := rows.Scan(&run, &r.train, m.SQLScanner(&r.positions)); err != nil {
			return nil, err
		}
		if run < 0 || run >= numSims {
			return nil, fmt.Errorf("run %d outside batch of %d", run, numSims)
		}
		perRun[run] = append(perRun[run], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stopLocs := make([]float64, len(stops))
	for i, s := range stops {
		stopLocs[i] = s.Position
	}
	logs := make([]*history.Log, numSims)
	for run, trains := range perRun {
		names := make([]string, len(trains))
		for i, r := range trains {
			names[i] = r.train
		}
		l := history.New(names, stopLocs)
		for _, r := range trains {
			for _, pos := range r.positions {
				if err := l.Add(r.train, pos); err != nil {
					return nil, err
				}
			}
		}
		logs[run] = l
	}
	return logs, nil
}

// LatestBatchID returns the most recently stored batch, restricted to the
// given track variant unless it is empty.
func LatestBatchID(ctx context.Context, db *sql.DB, track string) (uuid.UUID, error) {
	track = strings.TrimSpace(track)
	q := `
SELECT id::text
FROM batches
WHERE $1 = '' OR track = $1
ORDER BY created_at DESC
LIMIT 1`
	var id string
	if err := db.QueryRowContext(ctx, q, track).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w for track %q", ErrBatchNotFound, track)
		}
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

func nullIfNaN(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nanIfNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
