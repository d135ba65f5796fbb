package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShareURL = "https://fathom.video/share/abc"

// routeServer answers registered paths and 404s everything else, recording hits in order
type routeServer struct {
	*httptest.Server
	mu     sync.Mutex
	hits   []string
	routes map[string]http.HandlerFunc
}

func newRouteServer(t *testing.T, routes map[string]http.HandlerFunc) *routeServer {
	t.Helper()
	rs := &routeServer{routes: routes}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.hits = append(rs.hits, r.URL.Path)
		rs.mu.Unlock()

		if h, ok := rs.routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *routeServer) Hits() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.hits...)
}

func jsonRoute(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func htmlRoute(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}
}

func newTestRetriever(t *testing.T, api, page *httptest.Server, key string) *RecordingRetriever {
	t.Helper()
	return NewRecordingRetriever(RecordingOptions{
		APIBaseURL:   api.URL,
		Timeout:      5 * time.Second,
		ListLimit:    25,
		ContentLimit: testFetcherOptions().ContentLimit,
	}, func() string { return key }, newRewritingFetcher(t, page))
}

func TestRetrieveWithoutRecordingID(t *testing.T) {
	api := newRouteServer(t, nil)
	page := newRouteServer(t, nil)
	r := newTestRetriever(t, api.Server, page.Server, "key")

	_, err := r.Retrieve(context.Background(), "https://fathom.video/home")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "paste")
	assert.Contains(t, err.Error(), "transcript")
	assert.Empty(t, api.Hits())
	assert.Empty(t, page.Hits())
}

func TestRetrieveFromShareEndpoint(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc/transcript": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))
			jsonRoute(`{"transcript":[
				{"speaker":{"display_name":"Ann Lee"},"text":"Welcome aboard","timestamp":"00:00:01"},
				{"speaker":{"name":"Bo"},"text":"Thanks","timestamp":"00:00:04"}
			]}`)(w, r)
		},
	})
	page := newRouteServer(t, nil)
	r := newTestRetriever(t, api.Server, page.Server, "secret-key")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "[00:00:01] Ann Lee: Welcome aboard\n[00:00:04] Bo: Thanks", text)
	assert.Empty(t, page.Hits())
}

func TestRetrieveTriesEndpointsInOrder(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/calls/abc/transcript": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"/recordings/abc/transcript": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("Ann: plain text transcript"))
		},
	})
	page := newRouteServer(t, nil)
	r := newTestRetriever(t, api.Server, page.Server, "key")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "Ann: plain text transcript", text)
	assert.Equal(t, []string{
		"/share/abc/transcript",
		"/calls/abc/transcript",
		"/recordings/abc/transcript",
	}, api.Hits())
}

func TestRetrieveSkipsNonTranscriptBody(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc/transcript": htmlRoute(`<html><body>Fathom - Page not found</body></html>`),
		"/calls/abc/transcript": jsonRoute(`{"transcript":"Ann: the real transcript"}`),
	})
	page := newRouteServer(t, nil)
	r := newTestRetriever(t, api.Server, page.Server, "key")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "Ann: the real transcript", text)
	assert.Equal(t, []string{"/share/abc/transcript", "/calls/abc/transcript"}, api.Hits())
}

func TestRetrieveCapsTranscript(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc/transcript": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(strings.Repeat("é", 500)))
		},
	})
	page := newRouteServer(t, nil)
	r := NewRecordingRetriever(RecordingOptions{
		APIBaseURL:   api.URL,
		Timeout:      5 * time.Second,
		ListLimit:    25,
		ContentLimit: 40,
	}, func() string { return "key" }, newRewritingFetcher(t, page.Server))

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 40), text)
}

func TestRetrieveSkipsCallWithoutTranscript(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/calls/abc": jsonRoute(`{"id":"abc","title":"Kickoff"}`),
		"/meetings": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("include_transcript"))
			assert.Equal(t, "25", r.URL.Query().Get("limit"))
			jsonRoute(`{"items":[
				{"share_url":"https://fathom.video/share/other","transcript":[{"speaker":"X","text":"wrong call"}]},
				{"share_url":"https://fathom.video/share/abc","transcript":[{"speaker":"Ann","text":"right call"}]}
			]}`)(w, r)
		},
	})
	page := newRouteServer(t, nil)
	r := newTestRetriever(t, api.Server, page.Server, "key")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "Ann: right call", text)
	assert.Equal(t, "/meetings", api.Hits()[len(api.Hits())-1])
}

func TestRetrieveListingShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"top-level array", `[{"id":"abc","transcript":"Ann: array"}]`},
		{"meetings key", `{"meetings":[{"share_id":"abc","transcript":"Ann: array"}]}`},
		{"data key with url", `{"data":[{"url":"https://fathom.video/share/abc/","transcript":"Ann: array"}]}`},
		{"calls key with wrapped transcript", `{"calls":[{"recording_id":"abc","transcript":{"transcript":"Ann: array"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newRouteServer(t, map[string]http.HandlerFunc{"/meetings": jsonRoute(tt.body)})
			page := newRouteServer(t, nil)
			r := newTestRetriever(t, api.Server, page.Server, "key")

			text, err := r.Retrieve(context.Background(), testShareURL)

			require.NoError(t, err)
			assert.Equal(t, "Ann: array", text)
		})
	}
}

func TestRetrieveWithoutAPIKeyScrapesPage(t *testing.T) {
	api := newRouteServer(t, nil)
	page := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc": htmlRoute(`<html><body><script>
			window.__state = {"call":{"title":"Kickoff","transcript": [{"speaker":"Bob","text":"Hello there","timestamp":"0:05"}]}};
		</script></body></html>`),
	})
	r := newTestRetriever(t, api.Server, page.Server, "")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "[0:05] Bob: Hello there", text)
	assert.Empty(t, api.Hits(), "API must not be called without a key")
}

func TestRetrieveUsesCallIDFromPage(t *testing.T) {
	api := newRouteServer(t, map[string]http.HandlerFunc{
		"/calls/98765/transcript": jsonRoute(`[{"speaker":"Cy","text":"Found via page","timestamp":"1:00"}]`),
	})
	page := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc": htmlRoute(`<html><body><div data-x='{"call_id": 98765}'></div></body></html>`),
	})
	r := newTestRetriever(t, api.Server, page.Server, "key")

	text, err := r.Retrieve(context.Background(), testShareURL)

	require.NoError(t, err)
	assert.Equal(t, "[1:00] Cy: Found via page", text)
	assert.Contains(t, api.Hits(), "/meetings")
	assert.Equal(t, "/calls/98765/transcript", api.Hits()[len(api.Hits())-1])
}

func TestRetrieveFromPageDataBlob(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{
			name: "next data",
			page: `<html><body><script id="__NEXT_DATA__" type="application/json">
				{"props":{"pageProps":{"call":{"entries":[{"speaker":"Dee","text":"From next data"}]}}}}
			</script></body></html>`,
		},
		{
			name: "data-page attribute",
			page: `<html><body><div id="app" data-page='{"component":"Share","props":{"recording":{"entries":[{"speaker":"Dee","text":"From next data"}]}}}'></div></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newRouteServer(t, nil)
			page := newRouteServer(t, map[string]http.HandlerFunc{"/share/abc": htmlRoute(tt.page)})
			r := newTestRetriever(t, api.Server, page.Server, "")

			text, err := r.Retrieve(context.Background(), testShareURL)

			require.NoError(t, err)
			assert.Equal(t, "Dee: From next data", text)
		})
	}
}

func TestRetrieveExhausted(t *testing.T) {
	api := newRouteServer(t, nil)
	page := newRouteServer(t, map[string]http.HandlerFunc{
		"/share/abc": htmlRoute(`<html><body><p>Sign in to view this call</p></body></html>`),
	})
	r := newTestRetriever(t, api.Server, page.Server, "key")

	_, err := r.Retrieve(context.Background(), testShareURL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
	assert.Contains(t, err.Error(), "paste the transcript")
	assert.Equal(t, []string{
		"/share/abc/transcript",
		"/calls/abc/transcript",
		"/recordings/abc/transcript",
		"/calls/abc",
		"/meetings",
	}, api.Hits())
}

func TestFormatTranscript(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{
			name:  "string passes through",
			input: "already text",
			want:  "already text",
		},
		{
			name: "entries without timestamp",
			input: []any{
				map[string]any{"speaker": "Ann", "text": "one"},
				map[string]any{"speaker": map[string]any{"name": "Bo"}, "text": "two", "timestamp": float64(12)},
			},
			want: "Ann: one\n[12] Bo: two",
		},
		{
			name:  "wrapper is unwrapped recursively",
			input: map[string]any{"transcript": map[string]any{"transcript": "nested"}},
			want:  "nested",
		},
		{
			name:  "anything else is indented JSON",
			input: map[string]any{"summary": "short"},
			want:  "{\n  \"summary\": \"short\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTranscript(tt.input))
		})
	}
}

func TestFindTranscriptDepthLimit(t *testing.T) {
	nest := func(depth int) any {
		var v any = map[string]any{"transcript": "deep"}
		for i := 0; i < depth; i++ {
			v = map[string]any{"level": v}
		}
		return v
	}

	found, ok := findTranscript(nest(3), 0)
	require.True(t, ok)
	assert.Equal(t, "deep", found)

	_, ok = findTranscript(nest(maxSearchDepth+1), 0)
	assert.False(t, ok, "search must stop at the depth bound")
}

func TestFindTranscriptIgnoresEmptyKey(t *testing.T) {
	v := map[string]any{
		"transcript": "",
		"other":      []any{map[string]any{"speaker": "Ann", "text": "kept"}},
	}

	found, ok := findTranscript(v, 0)

	require.True(t, ok)
	assert.Equal(t, "Ann: kept", formatTranscript(found))
	assert.False(t, strings.Contains(formatTranscript(found), "transcript"))
}
