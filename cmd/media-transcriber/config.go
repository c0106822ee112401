package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	MediaDir string
	OutDir   string

	Model    string
	Language string
	APIKey   string

	CheckpointEvery int
}

func defaultConfig() Config {
	return Config{
		OutDir:          filepath.FromSlash("data/processed"),
		Model:           "whisper-1",
		Language:        "pt",
		CheckpointEvery: 10,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.MediaDir, "media-dir", cfg.MediaDir, "Directory with exported media files")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for the transcription cache")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Audio transcription model")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "Spoken language hint (ISO 639-1)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key override (defaults to OPENAI_API_KEY)")
	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Flush progress every N transcribed files")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MediaDir == "" {
		return errors.New("missing -media-dir")
	}
	if _, err := os.Stat(c.MediaDir); err != nil {
		return fmt.Errorf("media directory: %w", err)
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.CheckpointEvery <= 0 {
		return errors.New("checkpoint-every must be > 0")
	}
	return nil
}
