// Package discovery runs scrape batches: it walks the configured sites,
// fetches and extracts each page and upserts the result.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/artscrape/article"
	"github.com/pevans/artscrape/metrics"
	"github.com/pevans/artscrape/scraper"
)

// Entry outcomes, used as metric labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Stages at which an entry can fail.
const (
	StageNormalize = "normalize"
	StageFeed      = "feed"
	StageLookup    = "lookup"
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageStore     = "store"
)

// ArticleStore is the persistence the service writes to.
type ArticleStore interface {
	Upsert(ctx context.Context, a *article.Article) (*article.Article, bool, error)
	ExistsURL(ctx context.Context, url string) (bool, error)
}

// PageFetcher retrieves pages and owns any browser started for them.
type PageFetcher interface {
	Fetch(ctx context.Context, mode scraper.FetchMode, url string) (string, error)
	Release() error
}

// FeedReader lists article links from a feed.
type FeedReader interface {
	Links(ctx context.Context, feedURL string, limit int) ([]string, error)
}

// Config holds configuration for the scrape service.
type Config struct {
	// Skip pages whose URL is already stored instead of refreshing them
	SkipExisting bool
}

// EntryError records why one entry of a run failed.
type EntryError struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Stage  string `json:"stage"`
	Err    error  `json:"-"`
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// RunResult summarizes one scrape run.
type RunResult struct {
	RunID      uuid.UUID    `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Errors     []EntryError `json:"errors,omitempty"`
}

// Total returns the number of entries the run looked at.
func (r *RunResult) Total() int {
	return r.Succeeded + r.Failed + r.Skipped
}

// Service runs scrape batches over a list of sites.
type Service struct {
	store   ArticleStore
	fetcher PageFetcher
	feeds   FeedReader
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a scrape service. feeds may be nil when no site uses a
// feed; logger may be nil.
func NewService(store ArticleStore, fetcher PageFetcher, feeds FeedReader, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		fetcher: fetcher,
		feeds:   feeds,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Run scrapes every entry of sites in order. One entry failing does not stop
// the others; failures are counted and listed in the result. Run returns an
// error only when ctx is done, together with the partial result.
func (s *Service) Run(ctx context.Context, sites []scraper.Site) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("run_id", result.RunID.String())

	defer func() {
		if err := s.fetcher.Release(); err != nil {
			logger.Warn("failed to release fetcher", "error", err)
		}
	}()

	logger.Info("scrape run starting", "sites", len(sites))

run:
	for _, site := range sites {
		if ctx.Err() != nil {
			break
		}
		for _, entry := range s.siteEntries(ctx, site, result, logger) {
			if ctx.Err() != nil {
				break run
			}
			s.processEntry(ctx, entry, result, logger)
		}
	}
	runErr := ctx.Err()

	result.FinishedAt = s.now()
	metrics.RecordRun(result.FinishedAt)

	logger.Info("scrape run finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"created", result.Created,
		"updated", result.Updated,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)

	return result, runErr
}

// siteEntries returns the site's static entries followed by any discovered
// through its feed. A feed failure is recorded as one failed entry.
func (s *Service) siteEntries(ctx context.Context, site scraper.Site, result *RunResult, logger *slog.Logger) []scraper.Entry {
	entries := site.Entries()
	if site.Feed == "" {
		return entries
	}

	if s.feeds == nil {
		s.recordFailure(result, logger, site.Source, site.Feed, StageFeed, errors.New("no feed reader configured"))
		return entries
	}

	links, err := s.feeds.Links(ctx, site.Feed, site.FeedLimit)
	if err != nil {
		s.recordFailure(result, logger, site.Source, site.Feed, StageFeed, err)
		return entries
	}

	logger.Debug("feed links discovered", "source", site.Source, "feed", site.Feed, "count", len(links))

	seen := make(map[string]bool, len(entries)+len(links))
	for _, e := range entries {
		seen[e.URL] = true
	}
	for _, link := range links {
		// Normalized again in processEntry; here only to drop duplicates.
		key := link
		if u, err := scraper.NormalizeURL(link); err == nil {
			key = u
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, site.EntryFor(link))
	}
	return entries
}

func (s *Service) processEntry(ctx context.Context, entry scraper.Entry, result *RunResult, logger *slog.Logger) {
	pageURL, err := scraper.NormalizeURL(entry.URL)
	if err != nil {
		s.recordFailure(result, logger, entry.Source, entry.URL, StageNormalize, err)
		return
	}

	if s.config.SkipExisting {
		exists, err := s.store.ExistsURL(ctx, pageURL)
		if err != nil {
			s.recordFailure(result, logger, entry.Source, pageURL, StageLookup, err)
			return
		}
		if exists {
			result.Skipped++
			metrics.RecordEntry(entry.Source, OutcomeSkipped)
			logger.Debug("skipping stored article", "source", entry.Source, "url", pageURL)
			return
		}
	}

	start := time.Now()
	html, err := s.fetcher.Fetch(ctx, entry.Fetch, pageURL)
	metrics.RecordFetch(string(entry.Fetch), time.Since(start))
	if err != nil {
		s.recordFailure(result, logger, entry.Source, pageURL, StageFetch, err)
		return
	}

	extracted, err := scraper.Extract(html, entry.Selectors, scraper.ExtractOptions{
		PageURL:     pageURL,
		Readability: entry.Readability,
		Now:         s.now(),
	})
	if err != nil {
		s.recordFailure(result, logger, entry.Source, pageURL, StageExtract, err)
		return
	}

	stored, created, err := s.store.Upsert(ctx, &article.Article{
		Source:      entry.Source,
		URL:         pageURL,
		Title:       extracted.Title,
		Body:        extracted.Body,
		PlainBody:   extracted.PlainBody,
		PublishedAt: extracted.PublishedAt,
	})
	if err != nil {
		s.recordFailure(result, logger, entry.Source, pageURL, StageStore, err)
		return
	}

	result.Succeeded++
	if created {
		result.Created++
	} else {
		result.Updated++
	}
	metrics.RecordEntry(entry.Source, OutcomeSucceeded)

	logger.Info("article stored",
		"source", entry.Source,
		"url", pageURL,
		"id", stored.ID,
		"created", created,
		"duration", time.Since(start),
	)
}

func (s *Service) recordFailure(result *RunResult, logger *slog.Logger, source, url, stage string, err error) {
	result.Failed++
	result.Errors = append(result.Errors, EntryError{Source: source, URL: url, Stage: stage, Err: err})
	metrics.RecordEntry(source, OutcomeFailed)

	// Extraction misses are routine as sites change markup.
	var extractErr *scraper.ExtractError
	if errors.As(err, &extractErr) {
		logger.Warn("entry failed", "source", source, "url", url, "stage", stage, "error", err)
		return
	}
	logger.Error("entry failed", "source", source, "url", url, "stage", stage, "error", err)
}
