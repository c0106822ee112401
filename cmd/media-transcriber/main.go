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
	inventory, warnings, err := wrangle.InventoryMediaDir(cfg.MediaDir)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	transcribable := 0
	for _, f := range inventory {
		if wrangle.IsTranscribable(f.Filename) {
			transcribable++
		}
	}
	if transcribable == 0 {
		fmt.Fprintln(os.Stdout, "no audio/video files found")
		return nil
	}
	fmt.Fprintf(os.Stdout, "found %d media files, %d transcribable\n", len(inventory), transcribable)

	cache, err := wrangle.OpenCache[wrangle.TranscriptionEntry](
		filepath.Join(cfg.OutDir, "transcriptions.csv"),
		filepath.Join(cfg.OutDir, "transcriptions_progress.csv"),
		wrangle.TranscriptionCodec{},
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
	engine := provider.Transcriber{Client: &client, Model: cfg.Model, Language: cfg.Language}

	computed, err := wrangle.TranscribeBatch(ctx, cache, inventory, engine, func(done, total int, key, status string) {
		fmt.Fprintf(os.Stdout, "[%d/%d] %s %s\n", done, total, status, key)
	})
	if err != nil {
		_ = cache.Checkpoint()
		return err
	}
	if err := cache.Finalize(); err != nil {
		return err
	}

	completed, failed := 0, 0
	for _, key := range cache.Keys() {
		entry, _ := cache.Get(key)
		switch entry.Status {
		case wrangle.StatusCompleted:
			completed++
		case wrangle.StatusError:
			failed++
		}
	}
	fmt.Fprintf(os.Stdout, "done: %d new this run, %d completed, %d errors, %d total\n", computed, completed, failed, cache.Len())
	return nil
}
