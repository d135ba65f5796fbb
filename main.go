package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	configFile       string
	apiKey           string
	systemPromptPath string
	userPromptPath   string
	debugMode        bool
	listenAddr       string
	websiteMode      bool
)

// app holds the wired pipeline components
type app struct {
	config     *Config
	keys       *CredentialStore
	fetcher    *ContentFetcher
	website    *ContentFetcher
	recordings *RecordingRetriever
	pipeline   *Pipeline
}

func newApp() (*app, error) {
	overrides := &ConfigOverrides{}
	if configFile != "" {
		overrides.SettingsPath = &configFile
	}
	if systemPromptPath != "" {
		overrides.SystemPromptPath = &systemPromptPath
	}
	if userPromptPath != "" {
		overrides.UserPromptPath = &userPromptPath
	}

	config, err := NewConfig(overrides)
	if err != nil {
		return nil, err
	}
	settings := config.Settings

	if err := InitLogger(settings.Log.Level, settings.Log.File); err != nil {
		return nil, err
	}
	// Set debug mode globally
	if debugMode {
		SetDebugMode(true)
	}

	keys := NewCredentialStore(nil)
	keys.Set(anthropicKeyNames[0], apiKey)

	extractor := NewDocumentExtractor()
	fetchOpts := fetcherOptionsFromSettings(settings)
	fetcher := NewContentFetcher(fetchOpts, extractor)
	website := NewWebsiteFetcher(fetchOpts, extractor)
	recordings := NewRecordingRetriever(RecordingOptions{
		APIBaseURL:   settings.Recording.APIBaseURL,
		Timeout:      settings.Recording.Timeout,
		ListLimit:    settings.Recording.ListLimit,
		ContentLimit: settings.Fetch.ContentLimit,
	}, keys.FathomKey, fetcher)
	transcriber := NewLazyTranscriber(keys, settings.Transcription.Model, settings.Transcription.Timeout)

	generator, err := NewStrategyGenerator(NewLazyCompleter(keys, settings), config)
	if err != nil {
		return nil, err
	}

	return &app{
		config:     config,
		keys:       keys,
		fetcher:    fetcher,
		website:    website,
		recordings: recordings,
		pipeline:   NewPipeline(NewAggregator(fetcher, website, recordings, extractor, transcriber), generator),
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "strategy-writer",
	Short: "Marketing strategy generation from client onboarding material",
	Long: `Collects a client's discovery call, audit deck, website and social profile,
normalizes them into plain text and asks Claude for a structured marketing strategy.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the strategy generation API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			a.config.Settings.Server.Address = listenAddr
		}
		if !debugMode {
			gin.SetMode(gin.ReleaseMode)
		}
		if _, err := a.keys.AnthropicKey(); err != nil {
			logger.Warnf("%v; requests will fail until a key is configured", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return NewServer(a.config.Settings, a.pipeline).Run(ctx)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <submissions.yaml>",
	Short: "Generate strategies for the submissions in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		inputs, err := loadSubmissions(args[0])
		if err != nil {
			return fmt.Errorf("loading submissions: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		results := a.pipeline.RunBatch(ctx, inputs)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}

		if failed := countFailed(results); failed > 0 {
			return fmt.Errorf("%d of %d submissions failed", failed, len(results))
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Classify and normalize a single URL",
	Long: `Shows how a link would be read during aggregation. Useful for checking
Google sharing settings or recording links before submitting them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		link := normalizeURL(args[0])
		strategy := Classify(link)
		logger.Infof("→ %s classified as %s (fetching %s)", link, strategy.Kind, strategy.FetchURL())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var text string
		switch {
		case strategy.Kind == FetchRecording:
			text, err = a.recordings.Retrieve(ctx, link)
		case websiteMode:
			var result *ContentResult
			if result, err = a.website.FetchContent(ctx, strategy.FetchURL()); err == nil {
				text = result.Text
			}
		default:
			var result *ContentResult
			if result, err = a.fetcher.FetchContent(ctx, strategy.FetchURL()); err == nil {
				text = result.Text
			}
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write the default settings and prompts for editing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		written, err := ensureConfigExists(dir)
		for _, path := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
		}
		return err
	},
}

func countFailed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultSettingsPath, "Path to settings file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().StringVar(&systemPromptPath, "system-prompt", "", "Path to custom strategist system prompt file")
	rootCmd.PersistentFlags().StringVar(&userPromptPath, "user-prompt", "", "Path to custom strategist user prompt template")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides server.address)")
	fetchCmd.Flags().BoolVar(&websiteMode, "website", false, "Read the page the way the website field is read")

	rootCmd.AddCommand(serveCmd, generateCmd, fetchCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
