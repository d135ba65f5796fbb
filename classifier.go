package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// FetchKind tags the source-specific way a URL is fetched
type FetchKind int

const (
	FetchGeneric FetchKind = iota
	FetchGoogleDocs
	FetchGoogleSlides
	FetchGoogleDrive
	FetchRecording
)

func (k FetchKind) String() string {
	switch k {
	case FetchGoogleDocs:
		return "google-docs-export"
	case FetchGoogleSlides:
		return "google-slides-export"
	case FetchGoogleDrive:
		return "google-drive-download"
	case FetchRecording:
		return "recording-service"
	default:
		return "generic"
	}
}

// FetchStrategy is the classification result for one URL. ID holds the
// resource or share identifier; it is empty for generic URLs and for
// recording links whose identifier could not be recognized.
type FetchStrategy struct {
	Kind FetchKind
	ID   string
	URL  string
}

var (
	docsPathPattern   = regexp.MustCompile(`^/document/(?:u/\d+/)?d/([A-Za-z0-9_-]+)`)
	slidesPathPattern = regexp.MustCompile(`^/presentation/(?:u/\d+/)?d/([A-Za-z0-9_-]+)`)
	drivePathPattern  = regexp.MustCompile(`^/file/(?:u/\d+/)?d/([A-Za-z0-9_-]+)`)
	driveIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// Published copies (/d/e/2PACX-.../pub) have no export endpoint
	publishedPathPattern = regexp.MustCompile(`^/(?:document|presentation)/(?:u/\d+/)?d/e/`)
)

// recordingIDMarkers are the path segments that precede a share or call id
var recordingIDMarkers = map[string]bool{
	"share":      true,
	"calls":      true,
	"recordings": true,
	"recording":  true,
}

// Classify decides how rawURL should be fetched. It never fails; anything
// it does not recognize is fetched generically.
func Classify(rawURL string) FetchStrategy {
	rawURL = strings.TrimSpace(rawURL)
	generic := FetchStrategy{Kind: FetchGeneric, URL: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return generic
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case host == "docs.google.com":
		if publishedPathPattern.MatchString(u.Path) {
			break
		}
		if m := docsPathPattern.FindStringSubmatch(u.Path); m != nil {
			return FetchStrategy{Kind: FetchGoogleDocs, ID: m[1], URL: rawURL}
		}
		if m := slidesPathPattern.FindStringSubmatch(u.Path); m != nil {
			return FetchStrategy{Kind: FetchGoogleSlides, ID: m[1], URL: rawURL}
		}
	case host == "drive.google.com":
		if m := drivePathPattern.FindStringSubmatch(u.Path); m != nil {
			return FetchStrategy{Kind: FetchGoogleDrive, ID: m[1], URL: rawURL}
		}
		if id := u.Query().Get("id"); id != "" && driveIDPattern.MatchString(id) {
			return FetchStrategy{Kind: FetchGoogleDrive, ID: id, URL: rawURL}
		}
	case isRecordingHost(host):
		return FetchStrategy{Kind: FetchRecording, ID: recordingID(u.Path), URL: rawURL}
	}

	return generic
}

// FetchURL returns the URL that should actually be requested
func (s FetchStrategy) FetchURL() string {
	switch s.Kind {
	case FetchGoogleDocs:
		return fmt.Sprintf("https://docs.google.com/document/d/%s/export?format=txt", s.ID)
	case FetchGoogleSlides:
		return fmt.Sprintf("https://docs.google.com/presentation/d/%s/export/txt", s.ID)
	case FetchGoogleDrive:
		return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(s.ID)
	default:
		return s.URL
	}
}

func isRecordingHost(host string) bool {
	for _, domain := range []string{"fathom.video", "fathom.ai"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// recordingID returns the segment following a known marker, or "" when none
func recordingID(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if recordingIDMarkers[strings.ToLower(segments[i])] && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}

// isGoogleHost reports whether rawURL points at a Google document host
func isGoogleHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "google.com" || strings.HasSuffix(host, ".google.com") ||
		strings.HasSuffix(host, ".googleusercontent.com")
}

// isGoogleSignIn reports whether u is a Google accounts login page
func isGoogleSignIn(u *url.URL) bool {
	if u == nil {
		return false
	}
	if strings.EqualFold(u.Hostname(), "accounts.google.com") {
		return true
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "servicelogin") || strings.Contains(path, "/signin")
}
