package main

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minArticleChars is the shortest readable article accepted before falling back to a full strip
const minArticleChars = 200

// ContentHandler processes URLs based on response inspection
type ContentHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Handle(url string, resp *http.Response) (*ContentResult, error)
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// PlainTextHandler returns text/plain bodies unchanged
type PlainTextHandler struct{}

func (h *PlainTextHandler) CanHandle(url string, resp *http.Response) bool {
	return mediaType(resp) == "text/plain"
}

func (h *PlainTextHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	text := strings.TrimPrefix(string(body), "\uFEFF")
	return &ContentResult{Text: text, ContentType: "text/plain"}, nil
}

// PDFHandler handles PDF content
type PDFHandler struct {
	extractor *DocumentExtractor
}

func (h *PDFHandler) CanHandle(rawURL string, resp *http.Response) bool {
	// Check URL extension first
	if u, err := url.Parse(rawURL); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return true
	}

	return mediaType(resp) == "application/pdf"
}

func (h *PDFHandler) Handle(rawURL string, resp *http.Response) (*ContentResult, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading PDF content: %w", err)
	}

	text, err := h.extractor.ExtractPDF(data)
	if err != nil {
		return nil, fmt.Errorf("extracting PDF from %s: %w", rawURL, err)
	}

	return &ContentResult{Text: text, ContentType: "application/pdf"}, nil
}

// ArticleHandler extracts the readable article of an HTML page as markdown
type ArticleHandler struct {
	converter *md.Converter
}

func (h *ArticleHandler) CanHandle(url string, resp *http.Response) bool {
	mt := mediaType(resp)
	return mt == "" || mt == "text/html" || mt == "application/xhtml+xml"
}

func (h *ArticleHandler) Handle(rawURL string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	pageURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && utf8.RuneCountInString(strings.TrimSpace(article.TextContent)) >= minArticleChars {
		markdown, convErr := h.converter.ConvertString(article.Content)
		if convErr == nil {
			if article.Title != "" && !strings.HasPrefix(markdown, "# ") {
				markdown = "# " + article.Title + "\n\n" + markdown
			}
			return &ContentResult{Text: strings.TrimSpace(markdown), ContentType: "text/markdown"}, nil
		}
		err = convErr
	}
	if err != nil {
		logger.Debugf("Readable article extraction failed for %s, using plain text: %v", rawURL, err)
	}

	text, err := stripHTML(body)
	if err != nil {
		return nil, err
	}
	return &ContentResult{Text: text, ContentType: "text/plain"}, nil
}

// HTMLHandler handles regular HTML content (fallback)
type HTMLHandler struct{}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true // Always handles as fallback
}

func (h *HTMLHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	text, err := stripHTML(body)
	if err != nil {
		return nil, err
	}
	return &ContentResult{Text: text, ContentType: "text/plain"}, nil
}

// stripHTML drops script and style blocks, then all markup, and collapses whitespace
func stripHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	// Every text node is separated so words from adjacent elements don't merge
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	text := sb.String()
	return collapseWhitespace(text), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
