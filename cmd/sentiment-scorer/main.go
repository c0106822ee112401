package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/marlondutra/chat-wrangler/wrangle"
	"github.com/marlondutra/chat-wrangler/wrangle/provider"
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

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, apiKey); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted; progress checkpointed, re-run to resume")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, apiKey string) error {
	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	blocks, warnings, err := wrangle.TokenizeLog(f, wrangle.TokenizerOptions{HeaderPattern: cfg.HeaderPattern})
	f.Close()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	records, classifyWarnings := wrangle.BuildRecords(blocks)
	for _, w := range classifyWarnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Fprintf(os.Stdout, "parsed %d messages\n", len(records))

	cache, err := wrangle.OpenCache[wrangle.SentimentEntry](
		filepath.Join(cfg.OutDir, "sentiments.csv"),
		filepath.Join(cfg.OutDir, "sentiments_progress.csv"),
		wrangle.SentimentCodec{},
	)
	if err != nil {
		return err
	}
	cache.CheckpointEvery = cfg.CheckpointEvery
	if cache.Resumed {
		fmt.Fprintf(os.Stdout, "resuming from progress checkpoint (%d entries)\n", cache.Len())
	} else if cache.Len() > 0 {
		fmt.Fprintf(os.Stdout, "loaded finalized cache (%d entries)\n", cache.Len())
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	scorer := provider.SentimentScorer{Client: &client, Model: cfg.Model}

	computed, err := wrangle.ScoreBatch(ctx, cache, records, scorer, func(done, total int, key string) {
		if done%50 == 0 || done == total {
			fmt.Fprintf(os.Stdout, "[%d/%d] scored\n", done, total)
		}
	})
	if err != nil {
		_ = cache.Checkpoint()
		return err
	}
	if err := cache.Finalize(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "done: %d new this run, %d total\n", computed, cache.Len())
	return nil
}
