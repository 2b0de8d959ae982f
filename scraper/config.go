package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// FetchMode selects how a page is retrieved.
type FetchMode string

const (
	FetchHTTP    FetchMode = "http"
	FetchBrowser FetchMode = "browser" // Headless browser for script-rendered pages
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("url must be an absolute http or https URL")

// Selectors defines how to extract an article from a page of one site. Empty
// fields fall back to the extractor's built-in chains.
type Selectors struct {
	Title      string   `yaml:"title,omitempty" json:"title,omitempty"`
	Body       string   `yaml:"body,omitempty" json:"body,omitempty"`
	Date       string   `yaml:"date,omitempty" json:"date,omitempty"`
	DateFormat string   `yaml:"date_format,omitempty" json:"date_format,omitempty"` // Go time layout
	Remove     []string `yaml:"remove,omitempty" json:"remove,omitempty"`
}

// withDefaults fills unset fields from defaults. Remove lists are combined.
func (s Selectors) withDefaults(defaults Selectors) Selectors {
	if s.Title == "" {
		s.Title = defaults.Title
	}
	if s.Body == "" {
		s.Body = defaults.Body
	}
	if s.Date == "" {
		s.Date = defaults.Date
	}
	if s.DateFormat == "" {
		s.DateFormat = defaults.DateFormat
	}
	s.Remove = append(append([]string{}, defaults.Remove...), s.Remove...)
	return s
}

func (s Selectors) validate() error {
	var errs []error
	check := func(field, sel string) {
		if sel == "" {
			return
		}
		if _, err := cascadia.Compile(sel); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s selector %q: %w", field, sel, err))
		}
	}

	check("title", s.Title)
	check("body", s.Body)
	check("date", s.Date)
	for _, sel := range s.Remove {
		check("remove", sel)
	}
	return errors.Join(errs...)
}

// Site is one configured website: a source label, how to fetch its pages,
// how to extract them, and which pages to scrape.
type Site struct {
	Source      string    `yaml:"source" json:"source"`
	Fetch       FetchMode `yaml:"fetch" json:"fetch"`
	Readability bool      `yaml:"readability" json:"readability"` // Enable readability fallback for the body
	Selectors   Selectors `yaml:"selectors" json:"selectors"`
	URLs        []string  `yaml:"urls" json:"urls"`
	Feed        string    `yaml:"feed,omitempty" json:"feed,omitempty"`             // Optional RSS/Atom feed seeding more URLs
	FeedLimit   int       `yaml:"feed_limit,omitempty" json:"feed_limit,omitempty"` // 0 takes every feed item
}

// Entry is a single page to scrape.
type Entry struct {
	Source      string
	URL         string
	Fetch       FetchMode
	Readability bool
	Selectors   Selectors
}

// EntryFor builds the entry for one page of the site.
func (s Site) EntryFor(pageURL string) Entry {
	return Entry{
		Source:      s.Source,
		URL:         pageURL,
		Fetch:       s.Fetch,
		Readability: s.Readability,
		Selectors:   s.Selectors,
	}
}

// Entries flattens the site's static URL list into entries.
func (s Site) Entries() []Entry {
	entries := make([]Entry, 0, len(s.URLs))
	for _, u := range s.URLs {
		entries = append(entries, s.EntryFor(u))
	}
	return entries
}

// SiteFile represents the structure of the site configuration file.
type SiteFile struct {
	Defaults struct {
		Fetch     FetchMode `yaml:"fetch"`
		Selectors Selectors `yaml:"selectors"`
	} `yaml:"defaults"`
	Sites []Site `yaml:"sites"`
}

// LoadSites reads and validates a site configuration file.
func LoadSites(path string) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites parses a site configuration document. Besides the full schema it
// accepts a bare list of URLs, each becoming its own site labeled by host.
// Every site is validated and normalized before it is returned.
func ParseSites(data []byte) ([]Site, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse site file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("site file is empty")
	}

	var file SiteFile
	switch doc := root.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		var urls []string
		if err := doc.Decode(&urls); err != nil {
			return nil, fmt.Errorf("failed to parse site file: %w", err)
		}
		for _, u := range urls {
			file.Sites = append(file.Sites, Site{URLs: []string{u}})
		}
	case yaml.MappingNode:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse site file: %w", err)
		}
	default:
		return nil, errors.New("site file must be a mapping or a list of URLs")
	}

	if len(file.Sites) == 0 {
		return nil, errors.New("site file defines no sites")
	}

	var errs []error
	sites := make([]Site, 0, len(file.Sites))
	for i, site := range file.Sites {
		normalized, err := normalizeSite(site, file.Defaults.Fetch, file.Defaults.Selectors)
		if err != nil {
			errs = append(errs, fmt.Errorf("site %d: %w", i, err))
			continue
		}
		sites = append(sites, normalized)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return sites, nil
}

func normalizeSite(site Site, defaultFetch FetchMode, defaults Selectors) (Site, error) {
	if site.Fetch == "" {
		site.Fetch = defaultFetch
	}
	if site.Fetch == "" {
		site.Fetch = FetchHTTP
	}
	if site.Fetch != FetchHTTP && site.Fetch != FetchBrowser {
		return site, fmt.Errorf("fetch must be %q or %q, got %q", FetchHTTP, FetchBrowser, site.Fetch)
	}

	site.Selectors = site.Selectors.withDefaults(defaults)
	if err := site.Selectors.validate(); err != nil {
		return site, err
	}

	if len(site.URLs) == 0 && site.Feed == "" {
		return site, errors.New("site needs at least one url or a feed")
	}
	if site.FeedLimit < 0 {
		return site, errors.New("feed_limit must not be negative")
	}

	urls := make([]string, 0, len(site.URLs))
	for _, raw := range site.URLs {
		u, err := NormalizeURL(raw)
		if err != nil {
			return site, err
		}
		urls = append(urls, u)
	}
	site.URLs = urls

	if site.Feed != "" {
		feed, err := NormalizeURL(site.Feed)
		if err != nil {
			return site, fmt.Errorf("feed: %w", err)
		}
		site.Feed = feed
	}

	if site.Source == "" {
		first := site.Feed
		if len(site.URLs) > 0 {
			first = site.URLs[0]
		}
		site.Source = hostOf(first)
	}

	return site, nil
}

// NormalizeURL trims the URL, drops one trailing slash so that "/a/" and
// "/a" name the same article, and checks that it is an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "/")

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	return trimmed, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
