package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/intercept-sim/pkg/config"
)

var (
	// ErrScenarioNotFound is returned when no scenario has the requested name
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrScenarioExists is returned when a scenario name is already taken
	ErrScenarioExists = errors.New("scenario already exists")
)

// Scenario is a named, saved engagement configuration.
type Scenario struct {
	ID          int                   `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Config      config.ScenarioConfig `json:"config"`
	CreatedBy   *int                  `json:"created_by,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ScenarioRepository stores named scenarios.
type ScenarioRepository struct {
	db *DB
}

// NewScenarioRepository creates a new scenario repository.
func NewScenarioRepository(db *DB) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// Create validates and stores a scenario, filling in its ID and timestamps.
func (r *ScenarioRepository) Create(ctx context.Context, s *Scenario) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO scenarios (name, description, config, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, s.Name, s.Description, doc, s.CreatedBy).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrScenarioExists
		}
		return fmt.Errorf("failed to insert scenario: %w", err)
	}
	return nil
}

// Update replaces the description and configuration of a named scenario.
func (r *ScenarioRepository) Update(ctx context.Context, s *Scenario) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		UPDATE scenarios
		SET description = $2, config = $3, updated_at = NOW()
		WHERE name = $1
		RETURNING id, updated_at
	`, s.Name, s.Description, doc).Scan(&s.ID, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrScenarioNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update scenario: %w", err)
	}
	return nil
}

// GetByName returns the scenario called name. Fields absent from the stored
// document take their defaults.
func (r *ScenarioRepository) GetByName(ctx context.Context, name string) (*Scenario, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, config, created_by, created_at, updated_at
		FROM scenarios
		WHERE name = $1
	`, name)
	s, err := scanScenario(row)
	if err == sql.ErrNoRows {
		return nil, ErrScenarioNotFound
	}
	return s, err
}

// List returns all scenarios ordered by name.
func (r *ScenarioRepository) List(ctx context.Context) ([]*Scenario, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, config, created_by, created_at, updated_at
		FROM scenarios
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var out []*Scenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the scenario called name.
func (r *ScenarioRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scenarios WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScenarioNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenario(row rowScanner) (*Scenario, error) {
	var (
		s         Scenario
		doc       []byte
		createdBy sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &doc, &createdBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scenario: %w", err)
	}
	cfg, err := decodeScenario(doc)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	s.Config = cfg
	if createdBy.Valid {
		id := int(createdBy.Int64)
		s.CreatedBy = &id
	}
	return &s, nil
}

// decodeScenario overlays a stored document on the default scenario.
func decodeScenario(doc []byte) (config.ScenarioConfig, error) {
	cfg := config.DefaultScenario()
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return cfg, nil
}
