package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unklstewy/intercept-sim/pkg/engagement"
)

// ErrEngagementNotFound is returned when no engagement has the requested ID.
var ErrEngagementNotFound = errors.New("engagement not found")

// EngagementRepository stores engagement results.
type EngagementRepository struct {
	db *DB
}

// NewEngagementRepository creates a new engagement repository.
func NewEngagementRepository(db *DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// EngagementSummary is one row of the engagements table without the stored
// result document.
type EngagementSummary struct {
	ID              uuid.UUID  `json:"id"`
	BatchID         *uuid.UUID `json:"batch_id,omitempty"`
	Strategy        string     `json:"strategy"`
	Outcome         string     `json:"outcome"`
	InterceptTime   float64    `json:"intercept_time"`
	MissDistance    float64    `json:"miss_distance"`
	HitBy           int        `json:"hit_by"`
	Duration        float64    `json:"duration"`
	Steps           int        `json:"steps"`
	TotalEffort     float64    `json:"total_effort"`
	DecisionTime    float64    `json:"decision_time"`
	Winner          string     `json:"winner,omitempty"`
	Deactivated     []int64    `json:"deactivated"`
	PIPNonConverged int        `json:"pip_non_converged"`
	TargetFault     bool       `json:"target_fault"`
	CreatedAt       time.Time  `json:"created_at"`
}

// summarize flattens a result into its table row.
func summarize(r *engagement.Result, batchID *uuid.UUID) EngagementSummary {
	m := r.Metrics()
	s := EngagementSummary{
		ID:              r.ID,
		BatchID:         batchID,
		Strategy:        r.Strategy.String(),
		Outcome:         r.Outcome.String(),
		InterceptTime:   r.InterceptTime,
		MissDistance:    r.MissDistance,
		HitBy:           r.HitBy,
		Duration:        r.Duration,
		Steps:           r.Steps,
		TotalEffort:     m.TotalEffort,
		DecisionTime:    m.DecisionTime,
		Deactivated:     []int64{},
		PIPNonConverged: r.PIPNonConverged,
		TargetFault:     r.TargetFault,
	}
	if r.Selection != nil {
		s.Winner = r.Selection.Winner.String()
		for _, idx := range r.Selection.Deactivated {
			s.Deactivated = append(s.Deactivated, int64(idx))
		}
	}
	return s
}

// document is the JSONB copy of a result. The per-step history is dropped;
// recorded runs are replayed from files, not the database.
func document(r *engagement.Result) ([]byte, error) {
	stored := *r
	stored.History = nil
	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func nullableCase(ic engagement.InterceptorResult) sql.NullString {
	if ic.Case == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ic.Case.String(), Valid: true}
}

// Save stores a result and its per-interceptor rows in one transaction.
// batchID is nil for single runs.
func (r *EngagementRepository) Save(ctx context.Context, result *engagement.Result, batchID *uuid.UUID) error {
	doc, err := document(result)
	if err != nil {
		return err
	}
	s := summarize(result, batchID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var winner sql.NullString
	if s.Winner != "" {
		winner = sql.NullString{String: s.Winner, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO engagements (
			id, batch_id, strategy, outcome, intercept_time, miss_distance,
			hit_by, duration, steps, total_effort, decision_time, winner,
			deactivated, pip_non_converged, target_fault, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		s.ID, batchID, s.Strategy, s.Outcome, s.InterceptTime, s.MissDistance,
		s.HitBy, s.Duration, s.Steps, s.TotalEffort, s.DecisionTime, winner,
		pq.Array(s.Deactivated), s.PIPNonConverged, s.TargetFault, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to insert engagement: %w", err)
	}

	for _, ic := range result.Interceptors {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO interceptor_results (
				engagement_id, salvo_index, launch_time, launched, assigned_case,
				final_mode, effort, deactivated_at, numerical_fault, hit, closest_approach
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			s.ID, ic.Index, ic.LaunchTime, ic.Launched, nullableCase(ic),
			ic.FinalMode.String(), ic.Effort, ic.DeactivatedAt, ic.NumericalFault,
			ic.Hit, ic.ClosestApproach,
		)
		if err != nil {
			return fmt.Errorf("failed to insert interceptor %d: %w", ic.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit engagement: %w", err)
	}
	return nil
}

// Get returns the stored result for id.
func (r *EngagementRepository) Get(ctx context.Context, id uuid.UUID) (*engagement.Result, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM engagements WHERE id = $1`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}

	var result engagement.Result
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to decode engagement %s: %w", id, err)
	}
	return &result, nil
}

// ListRecent returns the newest engagements first.
func (r *EngagementRepository) ListRecent(ctx context.Context, limit int) ([]EngagementSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, strategy, outcome, intercept_time, miss_distance,
		       hit_by, duration, steps, total_effort, decision_time, winner,
		       deactivated, pip_non_converged, target_fault, created_at
		FROM engagements
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagements: %w", err)
	}
	defer rows.Close()

	var out []EngagementSummary
	for rows.Next() {
		var (
			s       EngagementSummary
			batchID uuid.NullUUID
			winner  sql.NullString
		)
		err := rows.Scan(
			&s.ID, &batchID, &s.Strategy, &s.Outcome, &s.InterceptTime, &s.MissDistance,
			&s.HitBy, &s.Duration, &s.Steps, &s.TotalEffort, &s.DecisionTime, &winner,
			pq.Array(&s.Deactivated), &s.PIPNonConverged, &s.TargetFault, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		if batchID.Valid {
			id := batchID.UUID
			s.BatchID = &id
		}
		s.Winner = winner.String
		out = append(out, s)
	}
	return out, rows.Err()
}
