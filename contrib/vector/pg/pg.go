package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorStore implements VectorStore using PostgreSQL with pgvector extension
type PGVectorStore struct {
	db        *sql.DB
	dimension int
	tableName string
}

// PGVectorConfig holds pgvector configuration
type PGVectorConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension (default: 384)
	TableName string // Table name (default: guideline_chunks)
}

// DefaultPGVectorConfig returns default pgvector configuration
func DefaultPGVectorConfig() *PGVectorConfig {
	return &PGVectorConfig{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "matrix",
		DBName:    "matrixdb",
		SSLMode:   "disable",
		Dimension: 384,
		TableName: "guideline_chunks",
	}
}

// DSN renders the lib/pq connection string.
func (c *PGVectorConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPGVectorStore connects, enables pgvector and creates the chunk table.
func NewPGVectorStore(ctx context.Context, config *PGVectorConfig) (*PGVectorStore, error) {
	if config == nil {
		config = DefaultPGVectorConfig()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store, err := NewWithDB(db, config.Dimension, config.TableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.setup(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing handle without running migrations.
func NewWithDB(db *sql.DB, dimension int, tableName string) (*PGVectorStore, error) {
	if tableName == "" {
		tableName = "guideline_chunks"
	}
	if !identPattern.MatchString(tableName) {
		return nil, fmt.Errorf("%w: invalid table name %q", matrixerrors.ErrInvalidInput, tableName)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", matrixerrors.ErrInvalidInput)
	}
	return &PGVectorStore{db: db, dimension: dimension, tableName: tableName}, nil
}

func (s *PGVectorStore) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// AddEmbedding upserts an embedding.
func (s *PGVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding cannot be nil", matrixerrors.ErrInvalidInput)
	}
	if embedding.ID == "" {
		return fmt.Errorf("%w: embedding ID cannot be empty", matrixerrors.ErrInvalidInput)
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("%w: embedding dimension mismatch: expected %d, got %d",
			matrixerrors.ErrInvalidInput, s.dimension, len(embedding.Vector))
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, source, text, embedding)
	VALUES ($1, $2, $3, $4::vector)
	ON CONFLICT (id) DO UPDATE SET
		source = EXCLUDED.source,
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, embedding.ID, embedding.Source, embedding.Text, FormatVector(embedding.Vector)); err != nil {
		return fmt.Errorf("failed to add embedding: %w", err)
	}
	return nil
}

// Search orders by cosine distance and reports similarity as 1 - distance.
func (s *PGVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", matrixerrors.ErrInvalidInput)
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector dimension mismatch: expected %d, got %d",
			matrixerrors.ErrInvalidInput, s.dimension, len(queryVector))
	}
	if topK <= 0 {
		topK = 10
	}

	op := vector.CosineDistanceOperator()
	query := fmt.Sprintf(`
	SELECT id, source, text, embedding::text, 1 - (embedding %s $1::vector) AS similarity
	FROM %s
	ORDER BY embedding %s $1::vector
	LIMIT $2
	`, op, s.tableName, op)

	rows, err := s.db.QueryContext(ctx, query, FormatVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	embeddings := make([]*vector.Embedding, 0, topK)
	for rows.Next() {
		var (
			id, source, text, vecStr string
			similarity               float64
		)
		if err := rows.Scan(&id, &source, &text, &vecStr, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := ParseVector(vecStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector for embedding %s: %w", id, err)
		}
		embeddings = append(embeddings, &vector.Embedding{
			ID:     id,
			Source: source,
			Text:   text,
			Vector: vec,
			Score:  float32(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return embeddings, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *PGVectorStore) DeleteEmbedding(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("embedding %s: %w", id, matrixerrors.ErrNotFound)
	}
	return nil
}

// GetEmbedding retrieves a specific embedding by ID
func (s *PGVectorStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf(`SELECT id, source, text, embedding::text FROM %s WHERE id = $1`, s.tableName)

	var embID, source, text, vecStr string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&embID, &source, &text, &vecStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", id, matrixerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	vec, err := ParseVector(vecStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector: %w", err)
	}
	return &vector.Embedding{ID: embID, Source: source, Text: text, Vector: vec}, nil
}

// Clear removes all embeddings
func (s *PGVectorStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.tableName)); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

// Count returns the number of embeddings
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// Ping checks the connection.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// FormatVector renders a pgvector literal such as [0.1,0.2].
func FormatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseVector parses a pgvector text literal.
func ParseVector(str string) ([]float32, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	if str == "" {
		return nil, nil
	}
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector component at index %d: %q", i, part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
