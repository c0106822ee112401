package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	InputPath string
	OutDir    string

	Model  string
	APIKey string

	CheckpointEvery int
	HeaderPattern   string
}

func defaultConfig() Config {
	return Config{
		OutDir:          filepath.FromSlash("data/processed"),
		Model:           "gpt-5-mini",
		CheckpointEvery: 10,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the raw chat export text file")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for the sentiment cache")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Sentiment scoring model")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key override (defaults to OPENAI_API_KEY)")
	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Flush progress every N scored messages")
	fs.StringVar(&cfg.HeaderPattern, "header-pattern", cfg.HeaderPattern, "Override the message header regexp (4 capture groups: date, time, sender, content)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if _, err := os.Stat(c.InputPath); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.CheckpointEvery <= 0 {
		return errors.New("checkpoint-every must be > 0")
	}
	return nil
}
