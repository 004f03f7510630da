// Package dbpg implements agent.DBCapability against a real PostgreSQL
// database via database/sql and the lib/pq driver.
package dbpg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/haasonsaas/dbagent/internal/agent"
)

// Config holds connection parameters and pool tuning, following the same
// shape as a DSN-building, pool-tuning store config elsewhere in this
// codebase's history.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sane pool defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

func (c *Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, int(c.ConnectTimeout.Seconds()),
	)
}

// Store implements agent.DBCapability over a pooled *sql.DB.
type Store struct {
	db *sql.DB
}

// New opens a connection pool per config, pings it, and returns a ready Store.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("dbpg: open: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbpg: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rejectMutation is a driver-boundary defense-in-depth check: the capability
// rejects non-SELECT SQL here even though the safety validator is the
// primary gate upstream.
func rejectMutation(sql string) error {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") || strings.HasPrefix(upper, "EXPLAIN") {
		return nil
	}
	return fmt.Errorf("dbpg: only read queries may be executed via this capability, got leading keyword %q", leadingWord(upper))
}

func leadingWord(upper string) string {
	end := strings.IndexAny(upper, " \t\n(")
	if end < 0 {
		return upper
	}
	return upper[:end]
}

// ExecuteQuery runs sql (must be a read query) and returns every row.
func (s *Store) ExecuteQuery(ctx context.Context, sqlText string) (*agent.QueryResult, error) {
	if err := rejectMutation(sqlText); err != nil {
		return nil, err
	}
	return s.query(ctx, sqlText, 0)
}

// ExecuteQueryLimited runs sql and truncates the result to limit rows,
// marking Truncated if more rows existed.
func (s *Store) ExecuteQueryLimited(ctx context.Context, sqlText string, limit int) (*agent.QueryResult, error) {
	if err := rejectMutation(sqlText); err != nil {
		return nil, err
	}
	return s.query(ctx, sqlText, limit)
}

func (s *Store) query(ctx context.Context, sqlText string, limit int) (*agent.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("dbpg: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dbpg: columns: %w", err)
	}

	result := &agent.QueryResult{Columns: cols}
	for rows.Next() {
		if limit > 0 && result.RowCount >= limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dbpg: scan: %w", err)
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dbpg: rows: %w", err)
	}
	return result, nil
}

// GetSchema returns every table (optionally prefix-filtered by name) along
// with its columns.
func (s *Store) GetSchema(ctx context.Context, filter string) (*agent.SchemaInfo, error) {
	tables, err := s.ListTables(ctx, "")
	if err != nil {
		return nil, err
	}

	info := &agent.SchemaInfo{}
	for _, name := range tables {
		if filter != "" && !strings.HasPrefix(name, filter) {
			continue
		}
		table, err := s.DescribeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *table)
	}
	return info, nil
}

// ListTables returns table names in schema (default "public").
func (s *Store) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = "public"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`,
		schema,
	)
	if err != nil {
		return nil, fmt.Errorf("dbpg: list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("dbpg: scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DescribeTable returns column metadata for a single table in the public schema.
func (s *Store) DescribeTable(ctx context.Context, name string) (*agent.TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES' AS nullable
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("dbpg: describe table: %w", err)
	}
	defer rows.Close()

	table := &agent.TableInfo{Name: name, Schema: "public"}
	for rows.Next() {
		var col agent.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, fmt.Errorf("dbpg: scan column: %w", err)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// ExplainQuery returns the query plan for sql (must be a read query).
func (s *Store) ExplainQuery(ctx context.Context, sqlText string) (string, error) {
	if err := rejectMutation(sqlText); err != nil {
		return "", err
	}
	rows, err := s.db.QueryContext(ctx, "EXPLAIN "+sqlText)
	if err != nil {
		return "", fmt.Errorf("dbpg: explain: %w", err)
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", fmt.Errorf("dbpg: scan plan line: %w", err)
		}
		plan.WriteString(line)
		plan.WriteByte('\n')
	}
	return plan.String(), rows.Err()
}

// HealthCheck pings the pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
