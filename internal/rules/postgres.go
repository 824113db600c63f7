package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DatabaseConfig contains rule database configuration
type DatabaseConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// documentRow is one stored rule document
type documentRow struct {
	Name      string    `db:"name"`
	Body      string    `db:"body"`
	UpdatedAt time.Time `db:"updated_at"`
}

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS datetime_rule_documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSource stores rule documents as YAML bodies in PostgreSQL
type PostgresSource struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresSource connects to the rule database and ensures the schema
func NewPostgresSource(config *DatabaseConfig, logger *zap.Logger) (*PostgresSource, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rule database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, createDocumentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rule documents table: %w", err)
	}

	logger.Info("Rule database initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return &PostgresSource{db: db, logger: logger}, nil
}

// Load fetches and parses the named document
func (s *PostgresSource) Load(ctx context.Context, name string) (*Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		`SELECT name, body, updated_at FROM datetime_rule_documents WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule document %s: %w", name, err)
	}

	s.logger.Debug("Rule document loaded",
		zap.String("name", row.Name),
		zap.Time("updated_at", row.UpdatedAt))

	return Parse([]byte(row.Body))
}

// Save upserts a document under name
func (s *PostgresSource) Save(ctx context.Context, name string, doc *Document) error {
	body, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode rule document %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datetime_rule_documents (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		name, string(body))
	if err != nil {
		return fmt.Errorf("failed to save rule document %s: %w", name, err)
	}

	s.logger.Info("Rule document saved", zap.String("name", name), zap.Int("bytes", len(body)))
	return nil
}

// Names lists the stored document names
func (s *PostgresSource) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names,
		`SELECT name FROM datetime_rule_documents ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list rule documents: %w", err)
	}
	return names, nil
}

// Close closes the database connection
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// maskDatabaseURL hides the password part of a connection string for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userInfo := url[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < 0 || strings.HasPrefix(userInfo[colon:], "://") {
		return url
	}
	return userInfo[:colon+1] + "***" + url[at:]
}
