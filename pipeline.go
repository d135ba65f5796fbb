package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Pipeline runs aggregation and strategy generation for submissions
type Pipeline struct {
	aggregator *Aggregator
	generator  *StrategyGenerator
}

// NewPipeline creates a pipeline
func NewPipeline(aggregator *Aggregator, generator *StrategyGenerator) *Pipeline {
	return &Pipeline{aggregator: aggregator, generator: generator}
}

// Run normalizes one submission and generates its strategy
func (p *Pipeline) Run(ctx context.Context, in SubmissionInput) (*Strategy, error) {
	record, err := p.aggregator.Aggregate(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.generator.Generate(ctx, record)
}

// BatchResult is the outcome of one submission in a batch
type BatchResult struct {
	ClientName string    `json:"clientName"`
	Strategy   *Strategy `json:"strategy,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunBatch processes submissions one after another; a failure does not stop the batch
func (p *Pipeline) RunBatch(ctx context.Context, inputs []SubmissionInput) []BatchResult {
	results := make([]BatchResult, 0, len(inputs))

	logger.Infof("Processing %d submissions...", len(inputs))
	for i, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		logger.Infof("[%d/%d] Processing: %s", i+1, len(inputs), in.ClientName)

		result := BatchResult{ClientName: in.ClientName}
		strategy, err := p.Run(ctx, in)
		if err != nil {
			result.Error = err.Error()
			logger.Errorf("✗ Failed %s: %v", in.ClientName, err)
		} else {
			result.Strategy = strategy
			logger.Infof("✓ Generated: %s", in.ClientName)
		}
		results = append(results, result)
	}
	return results
}

// submissionFile is the YAML layout accepted by the generate command
type submissionFile struct {
	Submissions []submissionEntry `yaml:"submissions"`
}

type submissionEntry struct {
	ClientName    string `yaml:"client_name"`
	Industry      string `yaml:"industry"`
	WebsiteURL    string `yaml:"website_url"`
	SocialProfile string `yaml:"social_profile"`
	Meeting       struct {
		Transcript string `yaml:"transcript"`
		Link       string `yaml:"link"`
		File       string `yaml:"file"`
	} `yaml:"meeting"`
	Audit struct {
		Link string `yaml:"link"`
		File string `yaml:"file"`
	} `yaml:"audit"`
}

// loadSubmissions reads a submissions file; file paths resolve relative to it
func loadSubmissions(path string) ([]SubmissionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file submissionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Submissions) == 0 {
		return nil, fmt.Errorf("%s contains no submissions", path)
	}

	base := filepath.Dir(path)
	inputs := make([]SubmissionInput, 0, len(file.Submissions))
	for i, entry := range file.Submissions {
		in, err := entry.toInput(base)
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", i+1, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (e submissionEntry) toInput(base string) (SubmissionInput, error) {
	in := SubmissionInput{
		ClientName:    e.ClientName,
		Industry:      e.Industry,
		WebsiteURL:    e.WebsiteURL,
		SocialProfile: e.SocialProfile,
		AuditLink:     e.Audit.Link,
	}

	switch {
	case e.Meeting.Transcript != "":
		in.MeetingRecording = &RecordingInput{Kind: RecordingTranscript, Text: e.Meeting.Transcript}
	case e.Meeting.Link != "":
		in.MeetingRecording = &RecordingInput{Kind: RecordingLink, URL: e.Meeting.Link}
	case e.Meeting.File != "":
		file, err := readUpload(base, e.Meeting.File)
		if err != nil {
			return in, err
		}
		in.MeetingRecording = &RecordingInput{Kind: RecordingFile, File: file}
	}

	if e.Audit.File != "" {
		file, err := readUpload(base, e.Audit.File)
		if err != nil {
			return in, err
		}
		in.AuditFile = file
	}
	return in, nil
}

func readUpload(base, name string) (*UploadedFile, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return &UploadedFile{Filename: filepath.Base(path), Data: data}, nil
}
