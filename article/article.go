package article

import (
	"time"
)

// Article is a single scraped page as persisted in the store. URL is the
// natural key; ID is assigned by the store on first insert.
type Article struct {
	ID          int64      `json:"id"`
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PlainBody   string     `json:"plain_body"`
	PublishedAt *time.Time `json:"published_at"`
	URL         string     `json:"url"`
}

// Filter represents filtering options for listing articles.
type Filter struct {
	Source *string // Exact match on source
}
