// Package db persists engagement results, batch reports, named scenarios and
// user accounts in PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/unklstewy/intercept-sim/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// connectionString builds the lib/pq key/value DSN for cfg.
func connectionString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open(cfg.Driver, connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates any missing tables and indexes.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// CleanupOldData removes single-run engagements and batches older than
// maxAge. Engagements belonging to a batch go with it via ON DELETE CASCADE.
func (db *DB) CleanupOldData(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	res, err := db.ExecContext(ctx,
		`DELETE FROM engagements WHERE batch_id IS NULL AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old engagements: %w", err)
	}
	engagements, _ := res.RowsAffected()

	res, err = db.ExecContext(ctx,
		`DELETE FROM batches WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return engagements, fmt.Errorf("failed to delete old batches: %w", err)
	}
	batches, _ := res.RowsAffected()

	return engagements + batches, nil
}

// Stats is a snapshot of table sizes and headline figures.
type Stats struct {
	Engagements int64 `json:"engagements"`
	Intercepted int64 `json:"intercepted"`
	Batches     int64 `json:"batches"`
	Scenarios   int64 `json:"scenarios"`
	Users       int64 `json:"users"`
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	queries := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM engagements`, &s.Engagements},
		{`SELECT COUNT(*) FROM engagements WHERE outcome = 'Intercepted'`, &s.Intercepted},
		{`SELECT COUNT(*) FROM batches`, &s.Batches},
		{`SELECT COUNT(*) FROM scenarios`, &s.Scenarios},
		{`SELECT COUNT(*) FROM users`, &s.Users},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}
	}
	return &s, nil
}
