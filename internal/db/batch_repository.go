package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/pkg/batch"
)

// ErrBatchNotFound is returned when no batch has the requested ID.
var ErrBatchNotFound = errors.New("batch not found")

// BatchRepository stores batch reports.
type BatchRepository struct {
	db *DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// BatchRecord is a stored batch. Runs is only filled by Get.
type BatchRecord struct {
	ID        uuid.UUID         `json:"id"`
	Strategy  string            `json:"strategy"`
	Runs      int               `json:"runs"`
	Workers   int               `json:"workers"`
	Serial    bool              `json:"serial"`
	Summary   batch.Summary     `json:"summary"`
	Started   time.Time         `json:"started"`
	Finished  time.Time         `json:"finished"`
	CreatedAt time.Time         `json:"created_at"`
	RunList   []batch.RunResult `json:"run_list,omitempty"`
}

// Save stores a report with one batch_runs row per run. Runs that kept their
// full result are also stored as engagements linked to the batch.
func (r *BatchRepository) Save(ctx context.Context, report *batch.Report) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (
			id, strategy, runs, workers, serial, success_rate, mean_effort,
			summary, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		report.ID, report.Strategy.String(), len(report.Runs), report.Workers, report.Serial,
		report.Summary.SuccessRate, report.Summary.MeanEffort, summary,
		report.Started.UTC(), report.Finished.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for _, run := range report.Runs {
		var (
			outcome      sql.NullString
			effort, miss sql.NullFloat64
			runErr       sql.NullString
		)
		if run.Failed() {
			runErr = sql.NullString{String: run.Err, Valid: true}
		} else {
			outcome = sql.NullString{String: run.Metrics.Outcome.String(), Valid: true}
			effort = sql.NullFloat64{Float64: run.Metrics.TotalEffort, Valid: true}
			miss = sql.NullFloat64{Float64: run.Metrics.MissDistance, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_runs (
				batch_id, run_index, maneuver_case, onset, outcome,
				total_effort, miss_distance, error
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			report.ID, run.Index, run.Case.String(), run.Onset, outcome, effort, miss, runErr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run %d: %w", run.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	engagements := NewEngagementRepository(r.db)
	for _, run := range report.Runs {
		if run.Result == nil {
			continue
		}
		id := report.ID
		if err := engagements.Save(ctx, run.Result, &id); err != nil {
			return fmt.Errorf("failed to store run %d: %w", run.Index, err)
		}
	}
	return nil
}

// Get returns a batch with its per-run rows.
func (r *BatchRepository) Get(ctx context.Context, id uuid.UUID) (*BatchRecord, error) {
	var (
		rec     BatchRecord
		summary []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, strategy, runs, workers, serial, summary, started_at, finished_at, created_at
		FROM batches
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.Strategy, &rec.Runs, &rec.Workers, &rec.Serial,
		&summary, &rec.Started, &rec.Finished, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch: %w", err)
	}
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode batch summary: %w", err)
	}

	runs, err := r.db.QueryContext(ctx, `
		SELECT run_index, maneuver_case, onset, outcome, total_effort, miss_distance, error
		FROM batch_runs
		WHERE batch_id = $1
		ORDER BY run_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer runs.Close()

	for runs.Next() {
		var (
			run          batch.RunResult
			kase         string
			outcome      sql.NullString
			effort, miss sql.NullFloat64
			runErr       sql.NullString
		)
		if err := runs.Scan(&run.Index, &kase, &run.Onset, &outcome, &effort, &miss, &runErr); err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		if err := run.Case.UnmarshalText([]byte(kase)); err != nil {
			return nil, err
		}
		if outcome.Valid {
			if err := run.Metrics.Outcome.UnmarshalText([]byte(outcome.String)); err != nil {
				return nil, err
			}
		}
		run.Metrics.TotalEffort = effort.Float64
		run.Metrics.MissDistance = miss.Float64
		run.Err = runErr.String
		rec.RunList = append(rec.RunList, run)
	}
	if err := runs.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the newest batches first, without their runs.
func (r *BatchRepository) List(ctx context.Context, limit int) ([]BatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, strategy, runs, workers, serial, summary, started_at, finished_at, created_at
		FROM batches
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var (
			rec     BatchRecord
			summary []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Strategy, &rec.Runs, &rec.Workers, &rec.Serial,
			&summary, &rec.Started, &rec.Finished, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal(summary, &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode batch summary: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
