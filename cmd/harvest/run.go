package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cesarachcar/scraper-emails-papers/internal/batch"
	"github.com/cesarachcar/scraper-emails-papers/internal/config"
	"github.com/cesarachcar/scraper-emails-papers/internal/document"
	"github.com/cesarachcar/scraper-emails-papers/internal/fetch"
	"github.com/cesarachcar/scraper-emails-papers/internal/observe"
	"github.com/cesarachcar/scraper-emails-papers/internal/resolve"
	"github.com/cesarachcar/scraper-emails-papers/internal/sink"
)

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	applyFlags(cmd, cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ids, err := loadIdentifiers(args[0])
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no identifiers in %s", args[0])
	}

	logger.Info(
		"harvest starting",
		"identifiers", len(ids),
		"concurrency", cfg.Batch.Concurrency,
		"env", cfg.Env(),
	)

	// Sink failures before dispatch are fatal; after dispatch every
	// failure is an item outcome.
	records, err := sink.NewRecords(cfg.Output.EmailsPath)
	if err != nil {
		return fmt.Errorf("open email sink: %w", err)
	}
	defer records.Close()

	restricted, err := sink.NewRestricted(cfg.Output.RestrictedPath)
	if err != nil {
		return fmt.Errorf("open restricted sink: %w", err)
	}
	defer restricted.Close()

	recorder, err := observe.NewRecorder()
	if err != nil {
		return fmt.Errorf("build recorder: %w", err)
	}

	client := fetch.NewClient(fetch.Config{
		Timeout:      cfg.Fetch.TimeoutDuration(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Headers:      fetch.BrowserHeaders,
	}, logger)

	escalatorOpts := []fetch.EscalatorOption{
		fetch.WithHandshakeTimeout(cfg.Fetch.TimeoutDuration()),
	}
	if cfg.Fetch.ChainDir != "" {
		escalatorOpts = append(escalatorOpts, fetch.WithChainDir(cfg.Fetch.ChainDir))
	}
	escalator := fetch.NewEscalator(logger, escalatorOpts...)

	resolver := resolve.New(
		resolve.Config{
			MetadataBaseURL:     cfg.Metadata.BaseURL,
			ContactEmail:        cfg.Metadata.ContactEmail,
			RestrictedPublisher: cfg.Metadata.RestrictedPublisher,
		},
		client,
		escalator,
		document.NewDecoder(),
		records,
		restricted,
		logger,
	)

	orchestrator := batch.New(batch.Config{
		Concurrency: cfg.Batch.Concurrency,
		Seed:        *cfg.Batch.Seed,
		Sample:      cfg.Batch.Sample,
	}, resolver, recorder, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := orchestrator.Run(ctx, ids)

	logger.Info(
		"harvest complete",
		"items", summary.Total,
		"emails", summary.Emails,
		"elapsed", summary.Elapsed.String(),
		"emails_csv", cfg.Output.EmailsPath,
		"restricted_csv", cfg.Output.RestrictedPath,
	)
	return nil
}

// applyFlags overlays explicitly-set CLI flags onto the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("emails") {
		cfg.Output.EmailsPath = emailsPath
	}
	if cmd.Flags().Changed("restricted") {
		cfg.Output.RestrictedPath = restrictedPath
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Batch.Concurrency = concurrency
	}
	if cmd.Flags().Changed("sample") {
		cfg.Batch.Sample = sample
	}
	if cmd.Flags().Changed("seed") {
		cfg.Batch.Seed = &seed
	}
	if cmd.Flags().Changed("chain-dir") {
		cfg.Fetch.ChainDir = chainDir
	}
}

// loadIdentifiers reads one DOI per line, skipping blanks, comments,
// and a leading "DOI" header left over from spreadsheet exports.
func loadIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			if strings.EqualFold(line, "doi") {
				continue
			}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
