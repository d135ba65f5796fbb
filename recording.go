package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// maxSearchDepth bounds the walk over page data so cyclic or very deep blobs terminate
const maxSearchDepth = 10

var (
	callIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"call_id"\s*:\s*"?(\d+)`),
		regexp.MustCompile(`"callId"\s*:\s*"?(\d+)`),
		regexp.MustCompile(`/calls/(\d+)`),
	}
	embeddedTranscriptPattern = regexp.MustCompile(`"transcript"\s*:\s*\[`)
	listItemKeys              = []string{"items", "meetings", "calls", "data"}
	listMatchKeys             = []string{"share_url", "url", "id", "share_id", "recording_id"}
)

// RecordingOptions configures the recording service client
type RecordingOptions struct {
	APIBaseURL   string
	Timeout      time.Duration
	ListLimit    int
	ContentLimit int
}

// RecordingRetriever recovers meeting transcripts from recording share links
type RecordingRetriever struct {
	baseURL   string
	listLimit int
	limit     int
	apiKey    func() string
	client    *http.Client
	pages     *ContentFetcher
}

// NewRecordingRetriever creates a retriever; apiKey is consulted on every call
func NewRecordingRetriever(opts RecordingOptions, apiKey func() string, pages *ContentFetcher) *RecordingRetriever {
	return &RecordingRetriever{
		baseURL:   strings.TrimRight(opts.APIBaseURL, "/"),
		listLimit: opts.ListLimit,
		limit:     opts.ContentLimit,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: opts.Timeout},
		pages:     pages,
	}
}

// transcriptSource is one way of recovering a transcript
type transcriptSource struct {
	name  string
	fetch func(ctx context.Context) (string, error)
}

// firstTranscript tries each source in order and returns the first non-empty result
func firstTranscript(ctx context.Context, log *logrus.Entry, sources []transcriptSource) (string, bool) {
	for _, src := range sources {
		if ctx.Err() != nil {
			return "", false
		}
		text, err := src.fetch(ctx)
		if err != nil {
			log.Debugf("→ %s: %v", src.name, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			log.Infof("→ Transcript recovered via %s", src.name)
			return text, true
		}
		log.Debugf("→ %s: no transcript in response", src.name)
	}
	return "", false
}

// Retrieve returns the formatted transcript behind shareURL
func (r *RecordingRetriever) Retrieve(ctx context.Context, shareURL string) (string, error) {
	strategy := Classify(shareURL)
	if strategy.Kind != FetchRecording {
		return "", fmt.Errorf("%s is not a recording share link; paste the meeting transcript instead", shareURL)
	}
	id := strategy.ID
	if id == "" {
		return "", fmt.Errorf("could not find a recording id in %s; paste the meeting transcript instead", shareURL)
	}

	log := logger.WithField("recording", id)
	key := r.apiKey()

	var sources []transcriptSource
	if key != "" {
		sources = append(sources, r.endpointSources(key, id)...)
		sources = append(sources, transcriptSource{
			name:  "recent calls listing",
			fetch: func(ctx context.Context) (string, error) { return r.fromListing(ctx, key, shareURL, id) },
		})
	} else {
		log.Debug("→ No recording service API key configured, skipping API lookups")
	}
	sources = append(sources, transcriptSource{
		name:  "share page",
		fetch: func(ctx context.Context) (string, error) { return r.fromSharePage(ctx, key, shareURL, id) },
	})

	if text, ok := firstTranscript(ctx, log, sources); ok {
		return capRunes(text, r.limit), nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("retrieving transcript for recording %s: %w", id, err)
	}
	return "", fmt.Errorf("could not retrieve a transcript for recording %s; paste the transcript into the form instead", id)
}

// endpointSources lists the API shapes a transcript may live behind, most specific first
func (r *RecordingRetriever) endpointSources(key, id string) []transcriptSource {
	escaped := url.PathEscape(id)
	paths := []string{
		"/share/" + escaped + "/transcript",
		"/calls/" + escaped + "/transcript",
		"/recordings/" + escaped + "/transcript",
		"/calls/" + escaped,
	}

	sources := make([]transcriptSource, 0, len(paths))
	for _, p := range paths {
		endpoint := r.baseURL + p
		sources = append(sources, transcriptSource{
			name: "GET " + endpoint,
			fetch: func(ctx context.Context) (string, error) {
				payload, err := r.apiGet(ctx, key, endpoint)
				if err != nil {
					return "", err
				}
				return transcriptFromPayload(payload), nil
			},
		})
	}
	return sources
}

// fromListing scans recent calls for one matching the share link
func (r *RecordingRetriever) fromListing(ctx context.Context, key, shareURL, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/meetings?include_transcript=true&limit=%d", r.baseURL, r.listLimit)
	payload, err := r.apiGet(ctx, key, endpoint)
	if err != nil {
		return "", err
	}

	for _, item := range listItems(payload) {
		call, ok := item.(map[string]any)
		if !ok || !matchesRecording(call, shareURL, id) {
			continue
		}
		if t, ok := findTranscript(call, 0); ok {
			return formatTranscript(t), nil
		}
		return "", errors.New("matching call has no transcript")
	}
	return "", errors.New("no matching call in listing")
}

// fromSharePage scrapes the public share page for a call id or embedded transcript data
func (r *RecordingRetriever) fromSharePage(ctx context.Context, key, shareURL, id string) (string, error) {
	body, err := r.pages.FetchRaw(ctx, shareURL)
	if err != nil {
		return "", err
	}
	page := string(body)

	if key != "" {
		if callID := embeddedCallID(page); callID != "" && callID != id {
			logger.WithField("recording", id).Debugf("→ Share page references call %s", callID)
			for _, src := range r.endpointSources(key, callID) {
				if text, err := src.fetch(ctx); err == nil && strings.TrimSpace(text) != "" {
					return text, nil
				}
			}
		}
	}

	if entries, ok := embeddedTranscriptArray(page); ok {
		return formatTranscript(entries), nil
	}

	for _, blob := range pageDataBlobs(body) {
		var v any
		if err := json.Unmarshal([]byte(blob), &v); err != nil {
			continue
		}
		if t, ok := findTranscript(v, 0); ok {
			return formatTranscript(t), nil
		}
	}
	return "", errors.New("no transcript data on share page")
}

func (r *RecordingRetriever) apiGet(ctx context.Context, key, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", key)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Some endpoints answer with the transcript as plain text
		if mediaType(resp) == "text/plain" {
			return string(body), nil
		}
		return nil, fmt.Errorf("unexpected %q response from %s", resp.Header.Get("Content-Type"), endpoint)
	}
	return payload, nil
}

// transcriptFromPayload formats whatever transcript-shaped value an API response holds
func transcriptFromPayload(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	if t, ok := findTranscript(payload, 0); ok {
		return formatTranscript(t)
	}
	return ""
}

func listItems(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range listItemKeys {
			if items, ok := v[key].([]any); ok {
				return items
			}
		}
	}
	return nil
}

func matchesRecording(call map[string]any, shareURL, id string) bool {
	for _, key := range listMatchKeys {
		v, ok := call[key]
		if !ok || v == nil {
			continue
		}
		s := scalarString(v)
		if s == "" {
			continue
		}
		if s == id || s == shareURL || strings.TrimRight(s, "/") == strings.TrimRight(shareURL, "/") {
			return true
		}
		if strings.HasSuffix(strings.TrimRight(s, "/"), "/"+id) {
			return true
		}
	}
	return false
}

func embeddedCallID(page string) string {
	for _, pattern := range callIDPatterns {
		if m := pattern.FindStringSubmatch(page); m != nil {
			return m[1]
		}
	}
	return ""
}

// embeddedTranscriptArray decodes the first `"transcript": [...]` array found in raw page text
func embeddedTranscriptArray(page string) ([]any, bool) {
	for _, loc := range embeddedTranscriptPattern.FindAllStringIndex(page, -1) {
		start := loc[1] - 1
		var entries []any
		if err := json.NewDecoder(strings.NewReader(page[start:])).Decode(&entries); err != nil {
			continue
		}
		if isEntryList(entries) {
			return entries, true
		}
	}
	return nil, false
}

// pageDataBlobs collects JSON documents that pages embed for client-side hydration
func pageDataBlobs(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var blobs []string
	doc.Find(`script#__NEXT_DATA__, script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			blobs = append(blobs, text)
		}
	})
	doc.Find("[data-page]").Each(func(_ int, s *goquery.Selection) {
		if attr, ok := s.Attr("data-page"); ok && strings.TrimSpace(attr) != "" {
			blobs = append(blobs, attr)
		}
	})
	return blobs
}

// findTranscript walks v depth-first and returns the first transcript-shaped value:
// the value of a non-empty "transcript" key, or an array of speaker/text entries.
func findTranscript(v any, depth int) (any, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}

	switch node := v.(type) {
	case map[string]any:
		if t, ok := node["transcript"]; ok && !isEmptyValue(t) {
			return t, true
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if t, ok := findTranscript(node[k], depth+1); ok {
				return t, true
			}
		}
	case []any:
		if isEntryList(node) {
			return node, true
		}
		for _, item := range node {
			if t, ok := findTranscript(item, depth+1); ok {
				return t, true
			}
		}
	}
	return nil, false
}

func isEntryList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := entry["speaker"]; !ok {
			return false
		}
		if _, ok := entry["text"]; !ok {
			return false
		}
	}
	return true
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// formatTranscript renders transcript data as text, one "[timestamp] speaker: text" line per entry
func formatTranscript(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if isEntryList(t) {
			lines := make([]string, 0, len(t))
			for _, item := range t {
				lines = append(lines, formatEntry(item.(map[string]any)))
			}
			return strings.Join(lines, "\n")
		}
	case map[string]any:
		if inner, ok := t["transcript"]; ok {
			return formatTranscript(inner)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func formatEntry(entry map[string]any) string {
	line := speakerName(entry["speaker"]) + ": " + scalarString(entry["text"])
	if ts := scalarString(entry["timestamp"]); ts != "" {
		line = "[" + ts + "] " + line
	}
	return line
}

func speakerName(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		for _, key := range []string{"display_name", "name"} {
			if name := scalarString(s[key]); name != "" {
				return name
			}
		}
	}
	return "Unknown"
}

// scalarString renders JSON scalars; float64 ids print without exponent
func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool, json.Number:
		return fmt.Sprint(s)
	}
	return ""
}
