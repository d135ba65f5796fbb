package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const maxBodyBytes = 25 << 20

// FetcherOptions configures outbound GETs
type FetcherOptions struct {
	Timeout      time.Duration
	ContentLimit int
	MaxRedirects int
	UserAgent    string
}

// fetcherOptionsFromSettings maps the fetch section of the settings
func fetcherOptionsFromSettings(s *Settings) FetcherOptions {
	return FetcherOptions{
		Timeout:      s.Fetch.Timeout,
		ContentLimit: s.Fetch.ContentLimit,
		MaxRedirects: s.Fetch.MaxRedirects,
		UserAgent:    s.Fetch.UserAgent,
	}
}

// ContentFetcher handles fetching and processing content from URLs
type ContentFetcher struct {
	handlers  []ContentHandler
	client    *http.Client
	userAgent string
	limit     int
}

// newFetcher creates a fetcher with no handlers registered
func newFetcher(opts FetcherOptions) *ContentFetcher {
	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &ContentFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		limit:     opts.ContentLimit,
	}
}

// NewContentFetcher creates a new content fetcher with default handlers
func NewContentFetcher(opts FetcherOptions, extractor *DocumentExtractor) *ContentFetcher {
	f := newFetcher(opts)

	// Register handlers (most specific first)
	f.AddHandler(&PlainTextHandler{})
	f.AddHandler(&PDFHandler{extractor: extractor})
	f.AddHandler(&HTMLHandler{}) // fallback

	return f
}

// NewWebsiteFetcher creates a fetcher that prefers the readable article of a page
func NewWebsiteFetcher(opts FetcherOptions, extractor *DocumentExtractor) *ContentFetcher {
	f := newFetcher(opts)

	f.AddHandler(&PlainTextHandler{})
	f.AddHandler(&PDFHandler{extractor: extractor})
	f.AddHandler(&ArticleHandler{converter: md.NewConverter("", true, nil)})
	f.AddHandler(&HTMLHandler{}) // fallback

	return f
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// get issues the GET and turns non-2xx statuses into *HTTPError.
// The caller closes the body.
func (f *ContentFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,application/pdf;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, newFetchError(resp.StatusCode, url)
	}

	// Private Google files redirect to a sign-in page that answers 200
	if isGoogleHost(url) && resp.Request != nil && isGoogleSignIn(resp.Request.URL) {
		resp.Body.Close()
		status := http.StatusUnauthorized
		if resp.Request.Response != nil {
			status = resp.Request.Response.StatusCode
		}
		logger.Debugf("→ %s redirected to sign-in at %s", url, resp.Request.URL.Host)
		return nil, newFetchError(status, url)
	}

	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodyBytes), resp.Body}
	return resp, nil
}

// FetchContent fetches and processes content using handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, url string) (*ContentResult, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Find handler based on URL + response headers
	for _, handler := range f.handlers {
		if handler.CanHandle(url, resp) {
			result, err := handler.Handle(url, resp)
			if err != nil {
				return nil, err
			}
			result.SourceURL = url
			result.Text = capRunes(result.Text, f.limit)
			logger.Debugf("→ Fetched %s (%s, %d chars)", url, result.ContentType, utf8.RuneCountInString(result.Text))
			return result, nil
		}
	}

	return nil, fmt.Errorf("no handler found for %s", url)
}

// FetchRaw performs the same request as FetchContent without normalizing the body
func (f *ContentFetcher) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func newFetchError(status int, url string) *HTTPError {
	e := &HTTPError{StatusCode: status, URL: url}
	if isGoogleHost(url) {
		e.Message = fmt.Sprintf("Unable to access Google document (HTTP %d). Make sure sharing is set to \"Anyone with the link can view\".", status)
	} else {
		e.Message = fmt.Sprintf("Failed to fetch %s (HTTP %d %s)", url, status, http.StatusText(status))
	}
	return e
}

// capRunes cuts s to at most limit characters; limit <= 0 disables the cap
func capRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
