package scraper

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// FeedReader discovers article URLs from an RSS or Atom feed. The gofeed
// library detects and handles both formats.
type FeedReader struct {
	parser *gofeed.Parser
}

// NewFeedReader creates a feed reader that shares the HTTP fetcher's client
// and User-Agent.
func NewFeedReader(f *HTTPFetcher) *FeedReader {
	fp := gofeed.NewParser()
	fp.Client = f.Client()
	fp.UserAgent = f.UserAgent()
	return &FeedReader{parser: fp}
}

// Links returns up to limit item links from the feed, in feed order. A limit
// of 0 returns every link. Items without a link are skipped.
func (r *FeedReader) Links(ctx context.Context, feedURL string, limit int) ([]string, error) {
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Mode: FetchHTTP, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		links = append(links, item.Link)
		if limit > 0 && len(links) == limit {
			break
		}
	}
	return links, nil
}
