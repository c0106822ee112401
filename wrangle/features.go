package wrangle

import (
	"strings"
	"time"
)

// DefaultConversationGap is the silence that opens a new conversation.
const DefaultConversationGap = 2 * time.Hour

// FeatureOptions configures the derived-feature pass.
type FeatureOptions struct {
	// ConversationGap is the strict lower bound on the silence that starts a
	// new conversation; a gap exactly equal to it does not. Defaults to
	// DefaultConversationGap.
	ConversationGap time.Duration
}

// ComputeFeatures derives the temporal and conversational features over the
// ordered enriched corpus. It is a pure function of its input sequence: gaps
// reference only the immediately preceding record in the same slice, and no
// cross-batch state is consulted.
func ComputeFeatures(records []EnrichedRecord, opts FeatureOptions) []FeatureRecord {
	gap := opts.ConversationGap
	if gap <= 0 {
		gap = DefaultConversationGap
	}

	out := make([]FeatureRecord, 0, len(records))
	for i, rec := range records {
		fr := FeatureRecord{
			EnrichedRecord:   rec,
			SameSenderStreak: 1,
			SizeBucket:       sizeBucket(rec.EnrichedContent),
		}

		if i == 0 {
			fr.IsConversationStart = true
			out = append(out, fr)
			continue
		}

		prev := out[i-1]
		if rec.HasTimestamp && prev.HasTimestamp {
			seconds := rec.Timestamp.Sub(prev.Timestamp).Seconds()
			fr.GapSeconds = &seconds
			fr.IsConversationStart = rec.Timestamp.Sub(prev.Timestamp) > gap ||
				!sameCalendarDay(prev.Timestamp, rec.Timestamp)
		}

		if rec.Sender == prev.Sender && rec.Sender != "" {
			fr.SameSenderStreak = prev.SameSenderStreak + 1
		}

		out = append(out, fr)
	}
	return out
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// sizeBucket classifies content length by word count with fixed inclusive
// boundaries: 0, 1-10, 11-30, 31-100, >100.
func sizeBucket(content string) string {
	n := len(strings.Fields(content))
	switch {
	case n == 0:
		return BucketEmpty
	case n <= 10:
		return BucketShort
	case n <= 30:
		return BucketMedium
	case n <= 100:
		return BucketLong
	default:
		return BucketVeryLong
	}
}
