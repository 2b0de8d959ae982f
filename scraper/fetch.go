package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Defaults for fetching pages.
const (
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultRenderTimeout = 30 * time.Second
	DefaultRenderWait    = 2 * time.Second
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36 Edg/141.0.0.0"

	maxBodyBytes = 10 << 20
)

// ErrPageTooLarge is returned for pages whose body exceeds the size limit.
var ErrPageTooLarge = errors.New("page exceeds size limit")

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchError reports a failure to retrieve a page: network errors, bad HTTP
// statuses, browser launch failures and timeouts.
type FetchError struct {
	URL        string
	Mode       FetchMode
	StatusCode int // Non-zero when the server answered with a bad status
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s (%s): HTTP %d", e.URL, e.Mode, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s (%s): %v", e.URL, e.Mode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPFetcher fetches pages with a plain GET request.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher. Zero values select the defaults.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Client returns the underlying HTTP client.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns the User-Agent header sent with every request.
func (f *HTTPFetcher) UserAgent() string {
	return f.userAgent
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", &FetchError{URL: url, Mode: FetchHTTP, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if len(data) > maxBodyBytes {
		return "", &FetchError{URL: url, Mode: FetchHTTP, Err: fmt.Errorf("%w: more than %d bytes", ErrPageTooLarge, maxBodyBytes)}
	}

	html, err := decodeBody(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{URL: url, Mode: FetchHTTP, Err: fmt.Errorf("failed to decode body: %w", err)}
	}
	return html, nil
}

// decodeBody converts a page to UTF-8. The charset comes from a BOM, the
// Content-Type header or a <meta> tag. A page without a declared charset
// that is already valid UTF-8 is returned as is.
func decodeBody(data []byte, contentType string) (string, error) {
	enc, _, certain := charset.DetermineEncoding(data, contentType)
	if !certain && utf8.Valid(data) {
		return string(data), nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Check requests the page and only verifies that it answers with a 2xx
// status.
func (f *HTTPFetcher) Check(ctx context.Context, url string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Mode: FetchHTTP, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Mode: FetchHTTP, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &FetchError{URL: url, Mode: FetchHTTP, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// renderer is a started headless browser.
type renderer interface {
	Fetcher
	Close() error
}

// FetchersConfig configures a Fetchers router.
type FetchersConfig struct {
	HTTPTimeout   time.Duration
	RenderTimeout time.Duration
	RenderWait    time.Duration
	UserAgent     string
	ChromePath    string
	// Preflight checks the HTTP status before rendering so that error pages
	// are not scraped as articles.
	Preflight bool
	Logger    *slog.Logger
}

// Fetchers routes fetches by mode. The headless browser is started on the
// first browser fetch and kept until Release, so one browser process serves
// a whole batch.
type Fetchers struct {
	http      *HTTPFetcher
	preflight bool
	logger    *slog.Logger

	startBrowser func(ctx context.Context) (renderer, error)

	mu      sync.Mutex
	browser renderer
}

// NewFetchers creates a fetch router.
func NewFetchers(cfg FetchersConfig) *Fetchers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher := NewHTTPFetcher(cfg.HTTPTimeout, cfg.UserAgent)
	browserOpts := BrowserOptions{
		ExecPath:  cfg.ChromePath,
		UserAgent: httpFetcher.UserAgent(),
		Timeout:   cfg.RenderTimeout,
		Wait:      cfg.RenderWait,
	}

	return &Fetchers{
		http:      httpFetcher,
		preflight: cfg.Preflight,
		logger:    logger,
		startBrowser: func(ctx context.Context) (renderer, error) {
			b, err := StartBrowser(ctx, browserOpts)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	}
}

// HTTP returns the plain HTTP fetcher.
func (f *Fetchers) HTTP() *HTTPFetcher {
	return f.http
}

// Fetch retrieves url using the given mode.
func (f *Fetchers) Fetch(ctx context.Context, mode FetchMode, url string) (string, error) {
	if mode != FetchBrowser {
		return f.http.Fetch(ctx, url)
	}

	if f.preflight {
		if err := f.http.Check(ctx, url); err != nil {
			return "", err
		}
	}

	b, err := f.acquireBrowser(ctx)
	if err != nil {
		return "", &FetchError{URL: url, Mode: FetchBrowser, Err: err}
	}
	return b.Fetch(ctx, url)
}

func (f *Fetchers) acquireBrowser(ctx context.Context) (renderer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	f.logger.Info("starting headless browser")
	b, err := f.startBrowser(ctx)
	if err != nil {
		return nil, err
	}
	f.browser = b
	return b, nil
}

// Release stops the headless browser if one was started. Fetchers stays
// usable; the next browser fetch starts a new browser.
func (f *Fetchers) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}

	f.logger.Info("stopping headless browser")
	err := f.browser.Close()
	f.browser = nil
	return err
}
