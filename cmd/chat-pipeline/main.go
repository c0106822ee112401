package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/marlondutra/chat-wrangler/wrangle"
	"github.com/marlondutra/chat-wrangler/wrangle/fileutils"
	"github.com/marlondutra/chat-wrangler/wrangle/provider"
)

// Cache filenames inside the output directory.
const (
	transcriptionStore    = "transcriptions.csv"
	transcriptionProgress = "transcriptions_progress.csv"
	sentimentStore        = "sentiments.csv"
	sentimentProgress     = "sentiments_progress.csv"
	auditLogFile          = "audit_log.json"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted; annotation progress checkpointed, re-run to resume")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("mkdir -out: %w", err)
	}

	audit := wrangle.NewAuditLog()

	// Pre-flight profile of the raw export.
	overview, patterns, err := wrangle.ProfileFile(cfg.InputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "input: %s (%s, %d lines, %d headered / %d continuation / %d empty)\n",
		overview.Path, fileutils.FormatBytes(overview.SizeBytes), overview.TotalLines,
		patterns.WithTimestamp, patterns.Continuation, patterns.Empty)

	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")

	// Cleaning.
	senderMap, err := cfg.senderMap()
	if err != nil {
		return err
	}
	if order := cfg.cleanOrder(); len(order) > 0 {
		start := time.Now()
		in := len(lines)
		var results []wrangle.CleanResult
		lines, results, err = wrangle.RunCleaning(lines, order, senderMap)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintf(os.Stdout, "clean %s: %d\n", r.ID, r.Metric)
		}
		audit.Observe("clean", in, len(lines), nil, start, nil)
	}

	// Tokenize.
	start := time.Now()
	blocks, parseWarnings, err := wrangle.TokenizeLog(strings.NewReader(strings.Join(lines, "\n")), wrangle.TokenizerOptions{HeaderPattern: cfg.HeaderPattern})
	if err != nil {
		return err
	}
	audit.Observe("tokenize", len(lines), len(blocks), nil, start, parseWarnings)
	fmt.Fprintf(os.Stdout, "tokenize: %d blocks (%d warnings)\n", len(blocks), len(parseWarnings))

	// Classify.
	start = time.Now()
	records, classifyWarnings := wrangle.BuildRecords(blocks)
	audit.Observe("classify", len(blocks), len(records), wrangle.NullCountsForRecords(records), start, classifyWarnings)
	fmt.Fprintf(os.Stdout, "classify: %d records (%d warnings)\n", len(records), len(classifyWarnings))

	// Media linking.
	start = time.Now()
	inventory, invWarnings, err := wrangle.InventoryMediaDir(cfg.MediaDir)
	if err != nil {
		return err
	}
	link := wrangle.LinkMedia(records, inventory)
	records = link.Records
	linkWarnings := append(invWarnings, link.Warnings...)
	audit.Observe("link-media", len(records), len(records), nil, start, linkWarnings)
	fmt.Fprintf(os.Stdout, "link-media: %d files, %d resolved, %d orphans\n", len(inventory), len(link.Resolved), len(link.Orphans))

	// Annotation caches.
	transcriptions, err := openTranscriptionCache(cfg)
	if err != nil {
		return err
	}
	sentiments, err := openSentimentCache(cfg)
	if err != nil {
		return err
	}

	var client openai.Client
	if cfg.Transcribe || cfg.ScoreSentiment {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return errors.New("missing OPENAI_API_KEY (or pass -api-key)")
		}
		client = openai.NewClient(option.WithAPIKey(apiKey))
	}

	if cfg.Transcribe {
		start = time.Now()
		engine := provider.Transcriber{Client: &client, Model: cfg.TranscriptionModel, Language: cfg.Language}
		computed, err := wrangle.TranscribeBatch(ctx, transcriptions, inventory, engine, func(done, total int, key, status string) {
			fmt.Fprintf(os.Stdout, "  transcribe [%d/%d] %s %s\n", done, total, status, key)
		})
		if err != nil {
			_ = transcriptions.Checkpoint()
			return fmt.Errorf("transcribe: %w", err)
		}
		if err := transcriptions.Finalize(); err != nil {
			return err
		}
		audit.Observe("transcribe", len(inventory), transcriptions.Len(), nil, start, nil)
		fmt.Fprintf(os.Stdout, "transcribe: %d new, %d cached\n", computed, transcriptions.Len()-computed)
	}

	if cfg.ScoreSentiment {
		start = time.Now()
		scorer := provider.SentimentScorer{Client: &client, Model: cfg.SentimentModel}
		computed, err := wrangle.ScoreBatch(ctx, sentiments, records, scorer, nil)
		if err != nil {
			_ = sentiments.Checkpoint()
			return fmt.Errorf("score-sentiment: %w", err)
		}
		if err := sentiments.Finalize(); err != nil {
			return err
		}
		audit.Observe("score-sentiment", len(records), sentiments.Len(), nil, start, nil)
		fmt.Fprintf(os.Stdout, "score-sentiment: %d new, %d cached\n", computed, sentiments.Len()-computed)
	}

	// Enrichment.
	start = time.Now()
	merged := wrangle.MergeEnrichment(records, link, transcriptions, sentiments)
	audit.Observe("enrich", len(records), len(merged.Records), wrangle.NullCountsForEnriched(merged.Records), start, merged.Warnings)
	fmt.Fprintf(os.Stdout, "enrich: %d records (%d synthetic)\n", len(merged.Records), merged.SyntheticCount)

	// Features.
	start = time.Now()
	features := wrangle.ComputeFeatures(merged.Records, wrangle.FeatureOptions{ConversationGap: cfg.conversationGap()})
	audit.Observe("features", len(merged.Records), len(features), nil, start, nil)

	// Exports.
	start = time.Now()
	tables, err := wrangle.ExportTables(features, cfg.OutDir)
	if err != nil {
		return err
	}
	corpus, err := wrangle.ExportCorpus(features, cfg.OutDir)
	if err != nil {
		return err
	}
	audit.Observe("export", len(features), len(features), nil, start, nil)

	auditPath := filepath.Join(cfg.OutDir, auditLogFile)
	if err := audit.WriteJSON(auditPath, cfg.Pretty); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "done: %d records, %d warnings, %d output files\n",
		len(features), audit.WarningCount(), len(tables)+len(corpus)+1)
	for _, path := range tables {
		fmt.Fprintln(os.Stdout, "  wrote", path)
	}
	fmt.Fprintln(os.Stdout, "  wrote", auditPath)
	return nil
}

func openTranscriptionCache(cfg Config) (*wrangle.Cache[wrangle.TranscriptionEntry], error) {
	cache, err := wrangle.OpenCache[wrangle.TranscriptionEntry](
		filepath.Join(cfg.OutDir, transcriptionStore),
		filepath.Join(cfg.OutDir, transcriptionProgress),
		wrangle.TranscriptionCodec{},
	)
	if err != nil {
		return nil, err
	}
	cache.CheckpointEvery = cfg.CheckpointEvery
	if cache.Resumed {
		fmt.Fprintln(os.Stdout, "transcription cache: resuming from progress checkpoint of a prior unfinished run")
	}
	return cache, nil
}

func openSentimentCache(cfg Config) (*wrangle.Cache[wrangle.SentimentEntry], error) {
	cache, err := wrangle.OpenCache[wrangle.SentimentEntry](
		filepath.Join(cfg.OutDir, sentimentStore),
		filepath.Join(cfg.OutDir, sentimentProgress),
		wrangle.SentimentCodec{},
	)
	if err != nil {
		return nil, err
	}
	cache.CheckpointEvery = cfg.CheckpointEvery
	if cache.Resumed {
		fmt.Fprintln(os.Stdout, "sentiment cache: resuming from progress checkpoint of a prior unfinished run")
	}
	return cache, nil
}
