package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// PostgresStore implements CaseStore using PostgreSQL. The full record is
// kept as JSONB next to a few indexed columns.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "matrix",
		DBName:  "matrixdb",
		SSLMode: "disable",
	}
}

// DSN renders the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStore connects and creates the cases table.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS triage_cases (
		case_id VARCHAR(64) PRIMARY KEY,
		risk_level VARCHAR(16) NOT NULL,
		escalated BOOLEAN NOT NULL,
		mode VARCHAR(32) NOT NULL,
		record JSONB NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_triage_cases_completed_at ON triage_cases(completed_at);
	CREATE INDEX IF NOT EXISTS idx_triage_cases_risk_level ON triage_cases(risk_level);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SaveCase upserts the case record.
func (s *PostgresStore) SaveCase(ctx context.Context, c *triage.CaseState) error {
	if c == nil || c.CaseID == "" {
		return fmt.Errorf("%w: case must have an id", matrixerrors.ErrInvalidInput)
	}
	r := FromCase(c)
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}

	query := `
	INSERT INTO triage_cases (case_id, risk_level, escalated, mode, record, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (case_id) DO UPDATE SET
		risk_level = EXCLUDED.risk_level,
		escalated = EXCLUDED.escalated,
		mode = EXCLUDED.mode,
		record = EXCLUDED.record,
		completed_at = EXCLUDED.completed_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		r.CaseID, string(r.RiskLevel), r.Escalated, r.Mode, string(doc), r.CompletedAt); err != nil {
		return fmt.Errorf("failed to save case to PostgreSQL: %w", err)
	}
	return nil
}

// Get retrieves a case by id.
func (s *PostgresStore) Get(ctx context.Context, caseID string) (*Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM triage_cases WHERE case_id = $1`, caseID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", caseID, matrixerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return decodeRecord([]byte(doc))
}

// List returns the newest cases first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM triage_cases ORDER BY completed_at DESC, case_id LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		r, err := decodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}
	return records, nil
}

// Count returns the number of stored cases
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM triage_cases").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return count, nil
}

// Clear removes all cases
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM triage_cases"); err != nil {
		return fmt.Errorf("failed to clear cases: %w", err)
	}
	return nil
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func decodeRecord(doc []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case: %w", err)
	}
	return &r, nil
}
