package wrangle

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Annotation statuses shared by both cache stores.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusPending   = "pending"
)

// TranscriptionEntry is the cached transcription annotation for one media
// file, keyed by filename.
type TranscriptionEntry struct {
	MediaType    string
	Text         string
	Status       string
	Language     string
	ErrorMessage string
	IsSynthetic  bool
}

// TranscriptionCodec maps TranscriptionEntry onto the transcription CSV
// schema.
type TranscriptionCodec struct{}

func (TranscriptionCodec) Header() []string {
	return []string{"filename", "media_type", "transcription", "transcription_status", "transcription_language", "error_message", "is_synthetic"}
}

func (TranscriptionCodec) Encode(key string, v TranscriptionEntry) []string {
	return []string{key, v.MediaType, v.Text, v.Status, v.Language, v.ErrorMessage, strconv.FormatBool(v.IsSynthetic)}
}

func (TranscriptionCodec) Decode(row []string) (string, TranscriptionEntry, error) {
	if len(row) != 7 {
		return "", TranscriptionEntry{}, fmt.Errorf("transcription row has %d fields, want 7", len(row))
	}
	synthetic, err := strconv.ParseBool(row[6])
	if err != nil {
		return "", TranscriptionEntry{}, fmt.Errorf("is_synthetic %q: %w", row[6], err)
	}
	return row[0], TranscriptionEntry{
		MediaType:    row[1],
		Text:         row[2],
		Status:       row[3],
		Language:     row[4],
		ErrorMessage: row[5],
		IsSynthetic:  synthetic,
	}, nil
}

// TranscriptionResult is the narrow response contract of an external
// transcription engine.
type TranscriptionResult struct {
	Text     string
	Language string
	Err      string
}

// Transcriber is the external transcription collaborator. Implementations
// retry transient failures internally and report per-file failures through
// TranscriptionResult.Err, reserving the error return for hard failures such
// as cancellation.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (TranscriptionResult, error)
}

// transcribableExtensions are the audio/video formats the transcription
// provider accepts.
var transcribableExtensions = map[string]bool{
	".opus": true, ".mp3": true, ".wav": true, ".mp4": true,
	".m4a": true, ".webm": true, ".mpeg": true, ".mpga": true,
}

// IsTranscribable reports whether the filename has a supported audio/video
// extension.
func IsTranscribable(filename string) bool {
	return transcribableExtensions[strings.ToLower(filepath.Ext(filename))]
}

// TranscribeBatch runs the transcriber over every transcribable file in the
// inventory through the cache, sequentially to respect provider rate limits.
// Already-cached keys are skipped entirely. Returns the number of keys
// actually computed this run. The caller owns Finalize.
func TranscribeBatch(ctx context.Context, cache *Cache[TranscriptionEntry], files []MediaFile, engine Transcriber, progress func(done, total int, key, status string)) (int, error) {
	var work []MediaFile
	for _, f := range files {
		if IsTranscribable(f.Filename) {
			work = append(work, f)
		}
	}

	computed := 0
	for i, f := range work {
		f := f
		entry, fresh, err := cache.GetOrCompute(ctx, f.Filename, func(ctx context.Context, key string) (TranscriptionEntry, error) {
			res, err := engine.Transcribe(ctx, f.Path)
			if err != nil {
				return TranscriptionEntry{}, err
			}
			entry := TranscriptionEntry{
				MediaType: strings.ToLower(f.Kind),
				Text:      strings.TrimSpace(res.Text),
				Status:    StatusCompleted,
				Language:  res.Language,
			}
			if res.Err != "" {
				entry.Status = StatusError
				entry.ErrorMessage = res.Err
				entry.Text = ""
			}
			return entry, nil
		})
		if err != nil {
			return computed, fmt.Errorf("TranscribeBatch: %s: %w", f.Filename, err)
		}
		if fresh {
			computed++
		}
		if progress != nil {
			progress(i+1, len(work), f.Filename, entry.Status)
		}
	}
	return computed, nil
}
