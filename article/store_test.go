package article

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a test article store
func createTestStore(t *testing.T) *Store {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")
	store, err := NewStore(DriverSQLite, dbPath)
	require.NoError(t, err, "should create article store")
	t.Cleanup(func() { store.Close() })
	return store
}

// Test helper: upsert an article and fail the test on error
func mustUpsert(t *testing.T, store *Store, a *Article) *Article {
	stored, _, err := store.Upsert(context.Background(), a)
	require.NoError(t, err)
	return stored
}

// TestNewStore_CreatesDatabase verifies database creation
func TestNewStore_CreatesDatabase(t *testing.T) {
	store := createTestStore(t)

	articles, err := store.List(context.Background(), Filter{})
	require.NoError(t, err, "articles table should exist")
	assert.Empty(t, articles)
	assert.NotNil(t, articles, "empty list should not be nil")
	assert.Equal(t, DriverSQLite, store.Backend())
}

// TestNewStore_UnsupportedDriver verifies driver validation
func TestNewStore_UnsupportedDriver(t *testing.T) {
	store, err := NewStore("mysql", "whatever")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	assert.Nil(t, store)
}

// TestNewStore_ExistingDatabase verifies data persists across connections
func TestNewStore_ExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := NewStore(DriverSQLite, dbPath)
	require.NoError(t, err)
	mustUpsert(t, store1, &Article{URL: "http://a/1", Source: "a", Title: "A", Body: "B"})
	store1.Close()

	store2, err := NewStore(DriverSQLite, dbPath)
	require.NoError(t, err)
	defer store2.Close()

	count, err := store2.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "data should persist across connections")
}

// TestUpsert_InsertThenUpdate verifies re-upserting a URL updates in place
func TestUpsert_InsertThenUpdate(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	first, created, err := store.Upsert(ctx, &Article{URL: "http://a/1", Title: "A"})
	require.NoError(t, err)
	assert.True(t, created, "first upsert should insert")

	second, created, err := store.Upsert(ctx, &Article{URL: "http://a/1", Title: "A2"})
	require.NoError(t, err)
	assert.False(t, created, "second upsert should update")
	assert.Equal(t, first.ID, second.ID, "ID should be stable across updates")

	articles, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, articles, 1, "should leave exactly one row")
	assert.Equal(t, "A2", articles[0].Title)
}

// TestUpsert_Idempotent verifies repeated upserts never duplicate rows
func TestUpsert_Idempotent(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	urls := []string{"http://a/1", "http://a/2", "http://b/1"}
	for i := 0; i < 3; i++ {
		for _, url := range urls {
			mustUpsert(t, store, &Article{URL: url, Source: "s", Title: "T", Body: "<p>x</p>"})
		}
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(urls), count)
}

// TestUpsert_RecomputesPlainBody verifies plain_body cannot drift from body
func TestUpsert_RecomputesPlainBody(t *testing.T) {
	store := createTestStore(t)

	stored := mustUpsert(t, store, &Article{
		URL:       "http://a/1",
		Title:     "T",
		Body:      "<p>Hello <b>world</b></p>",
		PlainBody: "something stale",
	})
	assert.Equal(t, "Hello world", stored.PlainBody)

	got, err := store.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello <b>world</b></p>", got.Body)
	assert.Equal(t, "Hello world", got.PlainBody)
}

// TestUpsert_PublishedAt verifies nullable timestamp round trips
func TestUpsert_PublishedAt(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	publishedAt := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	withDate := mustUpsert(t, store, &Article{URL: "http://a/1", Title: "T", PublishedAt: &publishedAt})
	withoutDate := mustUpsert(t, store, &Article{URL: "http://a/2", Title: "T"})

	got, err := store.Get(ctx, withDate.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, publishedAt.Equal(*got.PublishedAt), "timestamps should denote the same instant")
	assert.Equal(t, time.UTC, got.PublishedAt.Location())

	got, err = store.Get(ctx, withoutDate.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PublishedAt, "missing date should stay null")
}

// TestUpsert_ClearsPublishedAt verifies an update can null out the date
func TestUpsert_ClearsPublishedAt(t *testing.T) {
	store := createTestStore(t)

	publishedAt := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	first := mustUpsert(t, store, &Article{URL: "http://a/1", Title: "T", PublishedAt: &publishedAt})
	mustUpsert(t, store, &Article{URL: "http://a/1", Title: "T"})

	got, err := store.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PublishedAt)
}

// TestUpsert_EmptyURL verifies the natural key is required
func TestUpsert_EmptyURL(t *testing.T) {
	store := createTestStore(t)

	_, _, err := store.Upsert(context.Background(), &Article{Title: "T"})
	require.Error(t, err)

	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, ErrEmptyURL)
}

// TestGet_NotFound verifies lookup misses
func TestGet_NotFound(t *testing.T) {
	store := createTestStore(t)

	a, err := store.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrArticleNotFound)
	assert.Nil(t, a)
}

// TestList_OrderAndFilter verifies id ordering and exact source matching
func TestList_OrderAndFilter(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store, &Article{URL: "http://x/1", Source: "x.com", Title: "1"})
	mustUpsert(t, store, &Article{URL: "http://y/1", Source: "y.com", Title: "2"})
	mustUpsert(t, store, &Article{URL: "http://x/2", Source: "x.com", Title: "3"})
	mustUpsert(t, store, &Article{URL: "http://xx/1", Source: "xx.com", Title: "4"})

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID, "should be ordered by id")
	}

	source := "x.com"
	filtered, err := store.List(ctx, Filter{Source: &source})
	require.NoError(t, err)
	require.Len(t, filtered, 2, "should match source exactly, not by substring")
	for _, a := range filtered {
		assert.Equal(t, "x.com", a.Source)
	}
	assert.Equal(t, "1", filtered[0].Title)
	assert.Equal(t, "3", filtered[1].Title)

	missing := "nope"
	none, err := store.List(ctx, Filter{Source: &missing})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestExistsURL verifies URL lookups
func TestExistsURL(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	mustUpsert(t, store, &Article{URL: "http://a/1", Title: "T"})

	exists, err := store.ExistsURL(ctx, "http://a/1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsURL(ctx, "http://a/2")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestPing_ClosedStore verifies ping reports a storage error after close
func TestPing_ClosedStore(t *testing.T) {
	store := createTestStore(t)
	require.NoError(t, store.Ping(context.Background()))

	store.Close()

	var storageErr *StorageError
	assert.ErrorAs(t, store.Ping(context.Background()), &storageErr)
}

// TestRebind verifies placeholder rewriting per backend
func TestRebind(t *testing.T) {
	query := "SELECT id FROM articles WHERE url = ? AND source = ?"

	sqlite := &Store{driver: DriverSQLite}
	assert.Equal(t, query, sqlite.rebind(query))

	postgres := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT id FROM articles WHERE url = $1 AND source = $2", postgres.rebind(query))
}
