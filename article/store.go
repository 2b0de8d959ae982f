package article

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database backends.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Custom errors for article operations
var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrUnsupportedDriver = errors.New("database driver must be sqlite3 or postgres")
	ErrEmptyURL          = errors.New("article URL is empty")
)

// StorageError reports a failed persistence operation. Lookup misses are
// reported as ErrArticleNotFound instead.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store persists articles in a relational database.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore opens the database for the given driver and makes sure the schema
// exists.
func NewStore(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite3"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, ErrUnsupportedDriver
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, driver: driver}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the articles table if it doesn't exist.
func (s *Store) initSchema() error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			` + idColumn + `,
			url TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			plain_body TEXT NOT NULL,
			published_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles (source)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Backend returns the configured driver name.
func (s *Store) Backend() string {
	return s.driver
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping database", Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the article or, when a row with the same URL exists,
// updates its mutable fields. PlainBody is always recomputed from Body. It
// returns the stored article and whether a new row was created.
func (s *Store) Upsert(ctx context.Context, a *Article) (*Article, bool, error) {
	if a == nil || a.URL == "" {
		return nil, false, &StorageError{Op: "upsert article", Err: ErrEmptyURL}
	}

	stored := *a
	stored.PlainBody = PlainText(stored.Body)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, &StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var id int64
	created := false
	err = tx.QueryRowContext(ctx, s.rebind("SELECT id FROM articles WHERE url = ?"), stored.URL).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query := `
			INSERT INTO articles (
				url, source, title, body, plain_body, published_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`
		err = tx.QueryRowContext(ctx, s.rebind(query),
			stored.URL,
			stored.Source,
			stored.Title,
			stored.Body,
			stored.PlainBody,
			formatTime(stored.PublishedAt),
			formatTime(&now),
			formatTime(&now),
		).Scan(&id)
		if err != nil {
			return nil, false, &StorageError{Op: "insert article", Err: err}
		}
		created = true
	case err != nil:
		return nil, false, &StorageError{Op: "query article", Err: err}
	default:
		query := `
			UPDATE articles
			SET source = ?, title = ?, body = ?, plain_body = ?,
			    published_at = ?, updated_at = ?
			WHERE id = ?
		`
		_, err = tx.ExecContext(ctx, s.rebind(query),
			stored.Source,
			stored.Title,
			stored.Body,
			stored.PlainBody,
			formatTime(stored.PublishedAt),
			formatTime(&now),
			id,
		)
		if err != nil {
			return nil, false, &StorageError{Op: "update article", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, &StorageError{Op: "commit transaction", Err: err}
	}

	stored.ID = id
	if stored.PublishedAt != nil {
		t := stored.PublishedAt.UTC().Truncate(0)
		stored.PublishedAt = &t
	}
	return &stored, created, nil
}

// Get retrieves an article by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Article, error) {
	query := `
		SELECT id, url, source, title, body, plain_body, published_at
		FROM articles
		WHERE id = ?
	`

	a, err := scanArticle(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "query article", Err: err}
	}
	return a, nil
}

// List returns articles in insertion order, optionally filtered.
func (s *Store) List(ctx context.Context, filter Filter) ([]Article, error) {
	query := `
		SELECT id, url, source, title, body, plain_body, published_at
		FROM articles
	`

	var args []any
	if filter.Source != nil {
		query += " WHERE source = ?"
		args = append(args, *filter.Source)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, &StorageError{Op: "query articles", Err: err}
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan article", Err: err}
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate articles", Err: err}
	}

	return articles, nil
}

// ExistsURL reports whether an article with the given URL is stored.
func (s *Store) ExistsURL(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM articles WHERE url = ?"), url).Scan(&n)
	if err != nil {
		return false, &StorageError{Op: "query article", Err: err}
	}
	return n > 0, nil
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count articles", Err: err}
	}
	return n, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle is shared by Get and List.
func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var publishedAt sql.NullString

	err := row.Scan(
		&a.ID, &a.URL, &a.Source, &a.Title,
		&a.Body, &a.PlainBody, &publishedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		t := parseTime(publishedAt.String)
		a.PublishedAt = &t
	}
	return &a, nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.UTC().Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.UTC().Truncate(0)
}
