package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pevans/artscrape/article"
	"github.com/pevans/artscrape/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned pages by URL.
type fakeFetcher struct {
	pages    map[string]string
	fetched  []string
	modes    []scraper.FetchMode
	released int
	onFetch  func(url string)
}

func (f *fakeFetcher) Fetch(ctx context.Context, mode scraper.FetchMode, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	f.modes = append(f.modes, mode)
	if f.onFetch != nil {
		f.onFetch(url)
	}
	html, ok := f.pages[url]
	if !ok {
		return "", &scraper.FetchError{URL: url, Mode: mode, StatusCode: 404}
	}
	return html, nil
}

func (f *fakeFetcher) Release() error {
	f.released++
	return nil
}

// fakeFeeds returns fixed links per feed URL.
type fakeFeeds struct {
	links map[string][]string
	err   error
}

func (f *fakeFeeds) Links(ctx context.Context, feedURL string, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	links := f.links[feedURL]
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

// failingStore wraps a real store and fails writes or lookups for chosen
// URLs.
type failingStore struct {
	*article.Store
	failUpsert map[string]bool
	failLookup map[string]bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) Upsert(ctx context.Context, a *article.Article) (*article.Article, bool, error) {
	if s.failUpsert[a.URL] {
		return nil, false, &article.StorageError{Op: "upsert article", Err: errDiskFull}
	}
	return s.Store.Upsert(ctx, a)
}

func (s *failingStore) ExistsURL(ctx context.Context, url string) (bool, error) {
	if s.failLookup[url] {
		return false, &article.StorageError{Op: "look up article", Err: errDiskFull}
	}
	return s.Store.ExistsURL(ctx, url)
}

// Test helper: creates a temporary article store.
func createTestStore(t *testing.T) *article.Store {
	t.Helper()
	store, err := article.NewStore(article.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func page(title, body string) string {
	return "<html><body><h1>" + title + "</h1><div class=\"body\"><p>" + body + "</p></div></body></html>"
}

func testSite(source string, urls ...string) scraper.Site {
	return scraper.Site{
		Source:    source,
		Fetch:     scraper.FetchHTTP,
		Selectors: scraper.Selectors{Title: "h1", Body: ".body"},
		URLs:      urls,
	}
}

// TestRun_StoresArticles verifies a clean run
func TestRun_StoresArticles(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "First body"),
		"https://a.example/2": page("Two", "Second body"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1", "https://a.example/2"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Errors)
	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Equal(t, 1, fetcher.released, "fetcher should be released once")

	articles, err := store.List(context.Background(), article.Filter{})
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "One", articles[0].Title)
	assert.Equal(t, "First body", articles[0].PlainBody)
	assert.Equal(t, "a", articles[0].Source)
	assert.Equal(t, "https://a.example/1", articles[0].URL)
}

// TestRun_Idempotent verifies re-running leaves one row per URL
func TestRun_Idempotent(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)
	sites := []scraper.Site{testSite("a", "https://a.example/1")}

	first, err := svc.Run(context.Background(), sites)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), sites)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.NotEqual(t, first.RunID, second.RunID)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestRun_UpdatesChangedPage verifies a changed page overwrites the row
func TestRun_UpdatesChangedPage(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("A", "Old"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)
	sites := []scraper.Site{testSite("a", "https://a.example/1")}

	_, err := svc.Run(context.Background(), sites)
	require.NoError(t, err)

	fetcher.pages["https://a.example/1"] = page("A2", "New")
	_, err = svc.Run(context.Background(), sites)
	require.NoError(t, err)

	articles, err := store.List(context.Background(), article.Filter{})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "A2", articles[0].Title)
	assert.Equal(t, "New", articles[0].PlainBody)
}

// TestRun_PartialFailure verifies one bad entry does not stop the others
func TestRun_PartialFailure(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1":     page("One", "Body"),
		"https://a.example/no-h1": `<html><body><div class="body">No title anywhere</div></body></html>`,
		"https://a.example/3":     page("Three", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a",
			"https://a.example/1",
			"https://a.example/missing",
			"https://a.example/no-h1",
			"not a url",
			"https://a.example/3",
		),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 5, result.Total())
	require.Len(t, result.Errors, 3)

	assert.Equal(t, StageFetch, result.Errors[0].Stage)
	var fetchErr *scraper.FetchError
	assert.ErrorAs(t, result.Errors[0], &fetchErr)

	assert.Equal(t, StageExtract, result.Errors[1].Stage)
	var extractErr *scraper.ExtractError
	assert.ErrorAs(t, result.Errors[1], &extractErr)

	assert.Equal(t, StageNormalize, result.Errors[2].Stage)
	assert.ErrorIs(t, result.Errors[2], scraper.ErrInvalidURL)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestRun_StoreFailure verifies a failed write does not stop later entries
func TestRun_StoreFailure(t *testing.T) {
	store := &failingStore{
		Store:      createTestStore(t),
		failUpsert: map[string]bool{"https://a.example/2": true},
	}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
		"https://a.example/2": page("Two", "Body"),
		"https://a.example/3": page("Three", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1", "https://a.example/2", "https://a.example/3"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total())
	require.Len(t, result.Errors, 1)

	entryErr := result.Errors[0]
	assert.Equal(t, StageStore, entryErr.Stage)
	assert.Equal(t, "https://a.example/2", entryErr.URL)
	assert.Equal(t, "a", entryErr.Source)
	var storageErr *article.StorageError
	require.ErrorAs(t, entryErr, &storageErr)
	assert.ErrorIs(t, entryErr, errDiskFull)

	assert.Len(t, fetcher.fetched, 3)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestRun_LookupFailure verifies a failed existence check skips only that
// entry
func TestRun_LookupFailure(t *testing.T) {
	store := &failingStore{
		Store:      createTestStore(t),
		failLookup: map[string]bool{"https://a.example/1": true},
	}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
		"https://a.example/2": page("Two", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{SkipExisting: true}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1", "https://a.example/2"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)
	require.Len(t, result.Errors, 1)

	assert.Equal(t, StageLookup, result.Errors[0].Stage)
	assert.Equal(t, "https://a.example/1", result.Errors[0].URL)
	var storageErr *article.StorageError
	assert.ErrorAs(t, result.Errors[0], &storageErr)

	assert.Equal(t, []string{"https://a.example/2"}, fetcher.fetched,
		"entry whose lookup failed should not be fetched")
}

// TestRun_NormalizesURL verifies trailing slashes do not create duplicates
func TestRun_NormalizesURL(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1/", "https://a.example/1"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"https://a.example/1", "https://a.example/1"}, fetcher.fetched)
}

// TestRun_SkipExisting verifies stored URLs are not fetched again
func TestRun_SkipExisting(t *testing.T) {
	store := createTestStore(t)
	_, _, err := store.Upsert(context.Background(), &article.Article{
		URL: "https://a.example/1", Source: "a", Title: "Stored", Body: "Body",
	})
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
		"https://a.example/2": page("Two", "Body"),
	}}
	svc := NewService(store, fetcher, nil, Config{SkipExisting: true}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1", "https://a.example/2"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, []string{"https://a.example/2"}, fetcher.fetched)

	stored, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Stored", stored.Title, "skipped article should be untouched")
}

// TestRun_FetchMode verifies each entry is fetched with its site's mode
func TestRun_FetchMode(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
		"https://b.example/1": page("Two", "Body"),
	}}
	browserSite := testSite("b", "https://b.example/1")
	browserSite.Fetch = scraper.FetchBrowser
	svc := NewService(store, fetcher, nil, Config{}, nil)

	_, err := svc.Run(context.Background(), []scraper.Site{
		testSite("a", "https://a.example/1"),
		browserSite,
	})

	require.NoError(t, err)
	assert.Equal(t, []scraper.FetchMode{scraper.FetchHTTP, scraper.FetchBrowser}, fetcher.modes)
}

// TestRun_FeedSeeding verifies feed links are scraped after static URLs
func TestRun_FeedSeeding(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
		"https://a.example/2": page("Two", "Body"),
		"https://a.example/3": page("Three", "Body"),
	}}
	feeds := &fakeFeeds{links: map[string][]string{
		"https://a.example/feed": {
			"https://a.example/1/",
			"https://a.example/2",
			"https://a.example/3",
		},
	}}
	site := testSite("a", "https://a.example/1")
	site.Feed = "https://a.example/feed"
	site.FeedLimit = 2
	svc := NewService(store, fetcher, feeds, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{site})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded, "duplicate feed link should be dropped")
	assert.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, fetcher.fetched)
}

// TestRun_FeedFailure verifies a broken feed counts as one failed entry
func TestRun_FeedFailure(t *testing.T) {
	store := createTestStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": page("One", "Body"),
	}}
	site := testSite("a", "https://a.example/1")
	site.Feed = "https://a.example/feed"
	svc := NewService(store, fetcher, &fakeFeeds{err: errors.New("feed down")}, Config{}, nil)

	result, err := svc.Run(context.Background(), []scraper.Site{site})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StageFeed, result.Errors[0].Stage)
	assert.Equal(t, "https://a.example/feed", result.Errors[0].URL)
}

// TestRun_Canceled verifies cancellation stops between entries
func TestRun_Canceled(t *testing.T) {
	store := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://a.example/1": page("One", "Body"),
			"https://a.example/2": page("Two", "Body"),
		},
		onFetch: func(url string) { cancel() },
	}
	svc := NewService(store, fetcher, nil, Config{}, nil)

	result, err := svc.Run(ctx, []scraper.Site{
		testSite("a", "https://a.example/1", "https://a.example/2"),
		testSite("b", "https://b.example/1"),
	})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, []string{"https://a.example/1"}, fetcher.fetched)
	assert.Equal(t, 1, fetcher.released, "fetcher should be released on cancellation")
	assert.False(t, result.FinishedAt.IsZero())
}

// TestRun_Empty verifies a run with no sites
func TestRun_Empty(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := NewService(createTestStore(t), fetcher, nil, Config{}, nil)

	result, err := svc.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, result.Total())
	assert.Equal(t, 1, fetcher.released)
}
