package wrangle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SentimentEntry is the cached sentiment annotation for one message, keyed by
// the content fingerprint.
type SentimentEntry struct {
	Label string
	Score float64
}

// SentimentCodec maps SentimentEntry onto the sentiment CSV schema.
type SentimentCodec struct{}

func (SentimentCodec) Header() []string {
	return []string{"fingerprint", "sentiment_label", "sentiment_score"}
}

func (SentimentCodec) Encode(key string, v SentimentEntry) []string {
	return []string{key, v.Label, strconv.FormatFloat(v.Score, 'f', -1, 64)}
}

func (SentimentCodec) Decode(row []string) (string, SentimentEntry, error) {
	if len(row) != 3 {
		return "", SentimentEntry{}, fmt.Errorf("sentiment row has %d fields, want 3", len(row))
	}
	score, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return "", SentimentEntry{}, fmt.Errorf("sentiment_score %q: %w", row[2], err)
	}
	return row[0], SentimentEntry{Label: row[1], Score: score}, nil
}

// Fingerprint derives the deterministic sentiment cache key for a message.
// The timestamp is normalized to UTC before hashing so a change of parsing
// timezone cannot silently invalidate cached keys.
func Fingerprint(ts time.Time, sender, content string) string {
	h := sha256.New()
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	h.Write([]byte{0x1f})
	h.Write([]byte(sender))
	h.Write([]byte{0x1f})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// SentimentScorer is the external sentiment collaborator. Like Transcriber,
// implementations retry transient failures internally; the error return is
// for hard failures only.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (SentimentEntry, error)
}

// ScoreBatch runs the scorer over every text-bearing record through the
// cache, sequentially, keyed by content fingerprint. Media records without
// enrichable text and records with null timestamps are skipped: their
// fingerprints would not be stable. Returns the number of keys computed this
// run. The caller owns Finalize.
func ScoreBatch(ctx context.Context, cache *Cache[SentimentEntry], records []MessageRecord, scorer SentimentScorer, progress func(done, total int, key string)) (int, error) {
	var work []MessageRecord
	for _, rec := range records {
		if !rec.HasTimestamp || rec.RawContent == "" {
			continue
		}
		switch rec.Type {
		case TypeTextPure, TypeTextWithEmoji, TypeTextWithLink:
			work = append(work, rec)
		}
	}

	computed := 0
	for i, rec := range work {
		rec := rec
		key := Fingerprint(rec.Timestamp, rec.Sender, rec.RawContent)
		_, fresh, err := cache.GetOrCompute(ctx, key, func(ctx context.Context, _ string) (SentimentEntry, error) {
			return scorer.Score(ctx, rec.RawContent)
		})
		if err != nil {
			return computed, fmt.Errorf("ScoreBatch: line %d: %w", rec.LineNo, err)
		}
		if fresh {
			computed++
		}
		if progress != nil {
			progress(i+1, len(work), key)
		}
	}
	return computed, nil
}
