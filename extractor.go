package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// DocumentExtractor turns uploaded binaries into plain text
type DocumentExtractor struct{}

// NewDocumentExtractor creates a document extractor
func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{}
}

// Extract never fails: unsupported types and extraction errors come back as
// bracketed placeholders naming the file.
func (e *DocumentExtractor) Extract(filename string, data []byte) string {
	name := filepath.Base(filename)
	if !isPDF(filename, data) {
		return fmt.Sprintf("[Uploaded file: %s (text extraction is not supported for this file type)]", name)
	}

	text, err := e.ExtractPDF(data)
	if err != nil {
		logger.Warnf("PDF extraction failed for %s: %v", name, err)
		return fmt.Sprintf("[Could not extract text from %s: %v]", name, err)
	}
	return text
}

// ExtractPDF returns the text of every page, pages separated by blank lines
func (e *DocumentExtractor) ExtractPDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}

	// The PDF reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debugf("Skipping PDF page %d: %v", i, err)
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}

	if len(pages) == 0 {
		return fmt.Sprintf("[PDF document with %d pages - no text content extracted]", numPages), nil
	}
	return strings.Join(pages, "\n\n"), nil
}

func isPDF(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || bytes.HasPrefix(data, pdfMagic)
}
