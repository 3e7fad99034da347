package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/ports"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const historyTable = "search_history"

var historyColumns = []string{
	"id", "generation", "query", "filters", "page", "results", "failed_sources", "started_at", "duration_ms",
}

const createHistoryTable = `CREATE TABLE IF NOT EXISTS search_history (
	id             TEXT PRIMARY KEY,
	generation     TEXT NOT NULL,
	query          TEXT NOT NULL,
	filters        TEXT NOT NULL,
	page           INTEGER NOT NULL,
	results        INTEGER NOT NULL,
	failed_sources TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	duration_ms    BIGINT NOT NULL
)`

// HistoryRepository stores executed search pages in Postgres or SQLite.
type HistoryRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var (
	_ ports.SearchRecorder = (*HistoryRepository)(nil)
	_ ports.SearchHistory  = (*HistoryRepository)(nil)
)

// Open connects to dsn with the given driver and creates the history table.
func Open(ctx context.Context, driver, dsn string) (*HistoryRepository, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// every connection to ":memory:" would see its own database
		db.SetMaxOpenConns(1)
	}

	repo := NewHistoryRepository(db, driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewHistoryRepository wraps an existing connection pool.
func NewHistoryRepository(db *sql.DB, driver string) *HistoryRepository {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == DriverPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &HistoryRepository{db: db, builder: builder}
}

// Migrate creates the history table when missing.
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("create %s: %w", historyTable, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *HistoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record inserts one search page entry.
func (r *HistoryRepository) Record(ctx context.Context, record domain.SearchRecord) error {
	if r.db == nil {
		return nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	filters, err := json.Marshal(record.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	failed := record.FailedSources
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("encode failed sources: %w", err)
	}

	query, args, err := r.builder.
		Insert(historyTable).
		Columns(historyColumns...).
		Values(
			record.ID,
			record.Generation,
			record.Query,
			string(filters),
			record.Page,
			record.Results,
			string(failedJSON),
			record.StartedAt.UTC(),
			record.Duration.Milliseconds(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert search record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := r.builder.
		Select(historyColumns...).
		From(historyTable).
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []domain.SearchRecord
	for rows.Next() {
		var (
			rec        domain.SearchRecord
			filters    string
			failed     string
			durationMS int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Generation, &rec.Query, &filters,
			&rec.Page, &rec.Results, &failed, &rec.StartedAt, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(filters), &rec.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(failed), &rec.FailedSources); err != nil {
			return nil, fmt.Errorf("decode failed sources of %s: %w", rec.ID, err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}
