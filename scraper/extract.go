package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pevans/artscrape/article"
)

// minFallbackBodyLength is the text length a <div> needs before the
// largest-div heuristic accepts it as the article body.
const minFallbackBodyLength = 100

var (
	// Always removed before looking for the body.
	noiseSelectors = []string{"script", "style", "noscript", "div.ad-container"}

	// Tried in order after the site's own body selector.
	bodyFallbacks = []string{
		"div.table-post",
		"article",
		"div.article-body",
		"div.post-content",
	}

	bodyPolicy = bluemonday.UGCPolicy()
)

// ExtractError reports a page that is missing a required field. It is
// expected as sites change their markup.
type ExtractError struct {
	Field string // "title", "body" or "document"
	Err   error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to extract %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("failed to extract %s: not found", e.Field)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extracted holds the fields extracted from one page.
type Extracted struct {
	Title       string
	Body        string // Sanitized inner HTML of the body region
	PlainBody   string
	PublishedAt *time.Time
}

// ExtractOptions tunes a single extraction.
type ExtractOptions struct {
	PageURL     string
	Readability bool      // Try go-readability before the largest-div heuristic
	Now         time.Time // Reference time for rejecting future dates; zero means time.Now()
}

// Extract pulls title, body and publication date out of html using the
// site's selectors, falling back to generic rules when they match nothing.
// A missing title or body is an *ExtractError; a missing date is not.
func Extract(html string, sel Selectors, opts ExtractOptions) (*Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractError{Field: "document", Err: err}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	removeNoise(doc, sel.Remove)

	title := findTitle(doc, sel.Title)
	if title == "" {
		return nil, &ExtractError{Field: "title"}
	}

	body := findBody(doc, sel.Body, opts)
	if body == "" {
		return nil, &ExtractError{Field: "body"}
	}

	return &Extracted{
		Title:       title,
		Body:        body,
		PlainBody:   article.PlainText(body),
		PublishedAt: findPublishedAt(doc, sel, now),
	}, nil
}

func removeNoise(doc *goquery.Document, extra []string) {
	for _, sel := range append(append([]string{}, noiseSelectors...), extra...) {
		doc.Find(sel).Remove()
	}
}

// findTitle tries the site selector, then <h1>, og:title and <title>.
func findTitle(doc *goquery.Document, selector string) string {
	candidates := []string{"h1", `meta[property="og:title"]`, "title"}
	if selector != "" {
		candidates = append([]string{selector}, candidates...)
	}

	for _, c := range candidates {
		if text := selectionText(doc.Find(c).First()); text != "" {
			return text
		}
	}
	return ""
}

// selectionText returns the normalized text of s, or the content attribute
// for <meta> elements.
func selectionText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}

	text := s.Text()
	if goquery.NodeName(s) == "meta" {
		text = s.AttrOr("content", "")
	}
	// Normalize whitespace: replace multiple spaces/newlines with single space
	return strings.Join(strings.Fields(text), " ")
}

func findBody(doc *goquery.Document, selector string, opts ExtractOptions) string {
	candidates := bodyFallbacks
	if selector != "" {
		candidates = append([]string{selector}, bodyFallbacks...)
	}

	for _, c := range candidates {
		if body := sanitizedInnerHTML(doc.Find(c).First()); body != "" {
			return body
		}
	}

	if opts.Readability {
		if body := readabilityBody(doc, opts.PageURL); body != "" {
			return body
		}
	}

	return largestDiv(doc)
}

// sanitizedInnerHTML returns the sanitized inner HTML of s, or "" when it
// has no visible text.
func sanitizedInnerHTML(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}

	inner, err := s.Html()
	if err != nil {
		return ""
	}

	body := strings.TrimSpace(bodyPolicy.Sanitize(inner))
	if article.PlainText(body) == "" {
		return ""
	}
	return body
}

func readabilityBody(doc *goquery.Document, pageURL string) string {
	html, err := doc.Html()
	if err != nil {
		return ""
	}

	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	parsed, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return ""
	}

	body := strings.TrimSpace(bodyPolicy.Sanitize(parsed.Content))
	if article.PlainText(body) == "" {
		return ""
	}
	return body
}

// largestDiv picks the <div> with the most text, if it has enough of it.
func largestDiv(doc *goquery.Document) string {
	var best *goquery.Selection
	bestLen := 0

	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		n := len(strings.TrimSpace(s.Text()))
		if n > bestLen {
			best, bestLen = s, n
		}
	})

	if best == nil || bestLen <= minFallbackBodyLength {
		return ""
	}
	return sanitizedInnerHTML(best)
}
