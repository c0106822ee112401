package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	InputPath string
	MediaDir  string
	OutDir    string

	CleanSteps string
	Anonymize  string

	Transcribe     bool
	ScoreSentiment bool

	TranscriptionModel string
	SentimentModel     string
	Language           string
	APIKey             string

	CheckpointEvery int
	GapHours        float64

	HeaderPattern string
	Pretty        bool
}

func defaultConfig() Config {
	return Config{
		OutDir:             filepath.FromSlash("data/processed"),
		CleanSteps:         "invisible,empty_timestamps,optimize_timestamps,empty_lines,whitespace,indentation",
		TranscriptionModel: "whisper-1",
		SentimentModel:     "gpt-5-mini",
		Language:           "pt",
		CheckpointEvery:    10,
		GapHours:           2,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the raw chat export text file")
	fs.StringVar(&cfg.MediaDir, "media-dir", cfg.MediaDir, "Directory with exported media files (optional)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for tables, corpus files, caches and the audit log")

	fs.StringVar(&cfg.CleanSteps, "clean", cfg.CleanSteps, "Comma-separated cleaning steps to run before tokenizing (empty disables cleaning)")
	fs.StringVar(&cfg.Anonymize, "anonymize", cfg.Anonymize, "Participant anonymization map, e.g. 'Alice=P1,Bob=P2' (adds the anonymize step)")

	fs.BoolVar(&cfg.Transcribe, "transcribe", cfg.Transcribe, "Transcribe audio/video media not yet in the transcription cache (uses OPENAI_API_KEY)")
	fs.BoolVar(&cfg.ScoreSentiment, "score-sentiment", cfg.ScoreSentiment, "Score sentiment for text messages not yet in the sentiment cache (uses OPENAI_API_KEY)")

	fs.StringVar(&cfg.TranscriptionModel, "transcription-model", cfg.TranscriptionModel, "Audio transcription model")
	fs.StringVar(&cfg.SentimentModel, "sentiment-model", cfg.SentimentModel, "Sentiment scoring model")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "Spoken language hint for transcription (ISO 639-1)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key override (defaults to OPENAI_API_KEY)")

	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Flush annotation progress every N computed keys")
	fs.Float64Var(&cfg.GapHours, "gap-hours", cfg.GapHours, "Silence in hours that opens a new conversation (strict >)")

	fs.StringVar(&cfg.HeaderPattern, "header-pattern", cfg.HeaderPattern, "Override the message header regexp (4 capture groups: date, time, sender, content)")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print the audit log JSON")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate catches fatal configuration errors before any stage runs.
func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if _, err := os.Stat(c.InputPath); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if c.MediaDir != "" {
		if _, err := os.Stat(c.MediaDir); err != nil {
			return fmt.Errorf("media directory: %w", err)
		}
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.CheckpointEvery <= 0 {
		return errors.New("checkpoint-every must be > 0")
	}
	if c.GapHours <= 0 {
		return errors.New("gap-hours must be > 0")
	}
	if c.Transcribe && c.MediaDir == "" {
		return errors.New("-transcribe requires -media-dir")
	}
	return nil
}

func (c Config) conversationGap() time.Duration {
	return time.Duration(c.GapHours * float64(time.Hour))
}

func (c Config) cleanOrder() []string {
	var order []string
	for _, id := range strings.Split(c.CleanSteps, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			order = append(order, id)
		}
	}
	if c.Anonymize != "" {
		order = append(order, "anonymize")
	}
	return order
}

func (c Config) senderMap() (map[string]string, error) {
	if c.Anonymize == "" {
		return nil, nil
	}
	m := map[string]string{}
	for _, pair := range strings.Split(c.Anonymize, ",") {
		name, anon, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || anon == "" {
			return nil, fmt.Errorf("bad -anonymize entry %q (want Name=Alias)", pair)
		}
		m[name] = anon
	}
	return m, nil
}
