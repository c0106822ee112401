package main

import (
	"flag"
	"testing"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("media-transcriber", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-media-dir", "data/raw/media",
		"-out", "data/out",
		"-model", "whisper-1",
		"-language", "en",
		"-checkpoint-every", "5",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.MediaDir != "data/raw/media" || cfg.OutDir != "data/out" {
		t.Fatalf("paths=%q/%q", cfg.MediaDir, cfg.OutDir)
	}
	if cfg.Language != "en" || cfg.CheckpointEvery != 5 {
		t.Fatalf("language/checkpoint=%q/%d", cfg.Language, cfg.CheckpointEvery)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("want error for missing -media-dir")
	}

	cfg.MediaDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.CheckpointEvery = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("want error for negative checkpoint-every")
	}
}
