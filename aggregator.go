package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	fieldMeeting = "meetingTranscript"
	fieldDeck    = "auditDeckContent"
	fieldWebsite = "websiteContent"
	fieldSocial  = "socialContent"
)

var errNoContent = errors.New("no text content found")

// Aggregator resolves every field of a submission into a NormalizedRecord
type Aggregator struct {
	fetcher     *ContentFetcher
	website     *ContentFetcher
	recordings  *RecordingRetriever
	extractor   *DocumentExtractor
	transcriber Transcriber
}

// NewAggregator creates an aggregator over its collaborators
func NewAggregator(fetcher, website *ContentFetcher, recordings *RecordingRetriever, extractor *DocumentExtractor, transcriber Transcriber) *Aggregator {
	return &Aggregator{
		fetcher:     fetcher,
		website:     website,
		recordings:  recordings,
		extractor:   extractor,
		transcriber: transcriber,
	}
}

// Aggregate resolves all optional fields concurrently. A field whose source
// fails becomes a bracketed placeholder; the only error is a *ValidationError
// for a missing client name or industry.
func (a *Aggregator) Aggregate(ctx context.Context, in SubmissionInput) (*NormalizedRecord, error) {
	record := &NormalizedRecord{
		ClientName: strings.TrimSpace(in.ClientName),
		Industry:   strings.TrimSpace(in.Industry),
	}
	if record.ClientName == "" {
		return nil, &ValidationError{Field: "clientName", Message: "client name is required"}
	}
	if record.Industry == "" {
		return nil, &ValidationError{Field: "industry", Message: "industry is required"}
	}

	log := logger.WithField("client", record.ClientName)
	start := time.Now()

	// Each branch writes its own field and reports failures as placeholders
	var g errgroup.Group
	g.Go(func() error {
		record.MeetingTranscript = a.resolve(ctx, fieldMeeting, "Meeting transcript unavailable", func(ctx context.Context) (*string, error) {
			return a.meetingTranscript(ctx, in.MeetingRecording)
		})
		return nil
	})
	g.Go(func() error {
		record.AuditDeckContent = a.resolve(ctx, fieldDeck, "Audit deck unavailable", func(ctx context.Context) (*string, error) {
			return a.auditDeck(ctx, in.AuditLink, in.AuditFile)
		})
		return nil
	})
	g.Go(func() error {
		record.WebsiteContent = a.resolve(ctx, fieldWebsite, "Website content unavailable", func(ctx context.Context) (*string, error) {
			return a.websiteContent(ctx, in.WebsiteURL)
		})
		return nil
	})
	if social := strings.TrimSpace(in.SocialProfile); social != "" {
		record.SocialContent = stringPtr(fmt.Sprintf("[Social profile: %s (content not extracted)]", social))
	}
	_ = g.Wait()

	log.Infof("→ Aggregated submission in %s", time.Since(start).Round(time.Millisecond))
	return record, nil
}

// resolve runs one field branch and converts its failure into a placeholder
func (a *Aggregator) resolve(ctx context.Context, field, label string, fn func(context.Context) (*string, error)) *string {
	value, err := fn(ctx)
	if err == nil {
		return value
	}
	srcErr := &SourceError{Field: field, Err: err}
	logger.WithField("field", field).Warnf("Source unavailable: %v", srcErr.Err)
	return stringPtr(fmt.Sprintf("[%s: %s]", label, srcErr.Err.Error()))
}

func (a *Aggregator) meetingTranscript(ctx context.Context, rec *RecordingInput) (*string, error) {
	if rec == nil {
		return nil, nil
	}

	switch rec.Kind {
	case RecordingTranscript:
		if strings.TrimSpace(rec.Text) == "" {
			return nil, nil
		}
		return stringPtr(rec.Text), nil
	case RecordingLink:
		link := normalizeURL(rec.URL)
		if link == "" {
			return nil, nil
		}
		strategy := Classify(link)
		if strategy.Kind == FetchRecording {
			text, err := a.recordings.Retrieve(ctx, link)
			if err != nil {
				return nil, err
			}
			return stringPtr(text), nil
		}
		return a.fetchText(ctx, a.fetcher, strategy.FetchURL())
	case RecordingFile:
		if rec.File == nil || len(rec.File.Data) == 0 {
			return nil, nil
		}
		if a.transcriber == nil {
			return nil, errors.New("speech-to-text is not configured")
		}
		text, err := a.transcriber.Transcribe(ctx, rec.File.Filename, rec.File.Data)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("transcription returned no text")
		}
		return stringPtr(capRunes(text, a.fetcher.limit)), nil
	default:
		return nil, fmt.Errorf("unknown meeting recording type %q", rec.Kind)
	}
}

// auditDeck prefers the link; a failing link does not fall back to the file
func (a *Aggregator) auditDeck(ctx context.Context, link string, file *UploadedFile) (*string, error) {
	if link = normalizeURL(link); link != "" {
		return a.fetchText(ctx, a.fetcher, Classify(link).FetchURL())
	}
	if file != nil && len(file.Data) > 0 {
		return stringPtr(a.extractor.Extract(file.Filename, file.Data)), nil
	}
	return nil, nil
}

func (a *Aggregator) websiteContent(ctx context.Context, link string) (*string, error) {
	if link = normalizeURL(link); link == "" {
		return nil, nil
	}
	return a.fetchText(ctx, a.website, Classify(link).FetchURL())
}

func (a *Aggregator) fetchText(ctx context.Context, f *ContentFetcher, url string) (*string, error) {
	result, err := f.FetchContent(ctx, url)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, errNoContent
	}
	return stringPtr(result.Text), nil
}

// normalizeURL trims input and assumes https when the scheme was left out
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}
