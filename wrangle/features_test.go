package wrangle

import (
	"strings"
	"testing"
	"time"
)

func enrichedAt(ts time.Time, sender, content string) EnrichedRecord {
	return EnrichedRecord{
		MessageRecord: MessageRecord{
			Timestamp:    ts,
			HasTimestamp: true,
			Sender:       sender,
			RawContent:   content,
		},
		EnrichedContent: content,
	}
}

func TestComputeFeatures_SameSenderStreak(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	records := []EnrichedRecord{
		enrichedAt(base, "P1", "a"),
		enrichedAt(base.Add(time.Minute), "P1", "b"),
		enrichedAt(base.Add(2*time.Minute), "P2", "c"),
		enrichedAt(base.Add(3*time.Minute), "P1", "d"),
	}
	out := ComputeFeatures(records, FeatureOptions{})

	want := []int{1, 2, 1, 1}
	for i, fr := range out {
		if fr.SameSenderStreak != want[i] {
			t.Fatalf("streak[%d]=%d, want %d", i, fr.SameSenderStreak, want[i])
		}
	}
}

func TestComputeFeatures_GapThresholdIsStrict(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	// Exactly two hours: not a new conversation.
	out := ComputeFeatures([]EnrichedRecord{
		enrichedAt(base, "P1", "a"),
		enrichedAt(base.Add(7200*time.Second), "P2", "b"),
	}, FeatureOptions{})
	if out[1].IsConversationStart {
		t.Fatal("gap of exactly 7200s started a conversation, want strict >")
	}
	if out[1].GapSeconds == nil || *out[1].GapSeconds != 7200 {
		t.Fatalf("GapSeconds=%v, want 7200", out[1].GapSeconds)
	}

	// One second more: new conversation.
	out = ComputeFeatures([]EnrichedRecord{
		enrichedAt(base, "P1", "a"),
		enrichedAt(base.Add(7201*time.Second), "P2", "b"),
	}, FeatureOptions{})
	if !out[1].IsConversationStart {
		t.Fatal("gap of 7201s did not start a conversation")
	}
}

func TestComputeFeatures_CalendarDayBoundaryStarts(t *testing.T) {
	t.Parallel()

	// 90 minutes apart, below the gap, but across midnight.
	out := ComputeFeatures([]EnrichedRecord{
		enrichedAt(time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC), "P1", "boa noite"),
		enrichedAt(time.Date(2025, 1, 16, 0, 30, 0, 0, time.UTC), "P2", "bom dia"),
	}, FeatureOptions{})
	if !out[1].IsConversationStart {
		t.Fatal("crossing a calendar day must start a conversation even under the gap")
	}
}

func TestComputeFeatures_FirstRecordStarts(t *testing.T) {
	t.Parallel()

	out := ComputeFeatures([]EnrichedRecord{enrichedAt(time.Now(), "P1", "oi")}, FeatureOptions{})
	if !out[0].IsConversationStart {
		t.Fatal("first record must start a conversation")
	}
	if out[0].GapSeconds != nil {
		t.Fatalf("GapSeconds=%v, want nil for the first record", out[0].GapSeconds)
	}
}

func TestComputeFeatures_NullTimestampsHaveNoGap(t *testing.T) {
	t.Parallel()

	records := []EnrichedRecord{
		enrichedAt(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), "P1", "a"),
		{MessageRecord: MessageRecord{Sender: "P2", RawContent: "b"}, EnrichedContent: "b"},
	}
	out := ComputeFeatures(records, FeatureOptions{})
	if out[1].GapSeconds != nil || out[1].IsConversationStart {
		t.Fatalf("got gap=%v start=%v, want neither for a null timestamp", out[1].GapSeconds, out[1].IsConversationStart)
	}
}

func TestComputeFeatures_CustomGap(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	out := ComputeFeatures([]EnrichedRecord{
		enrichedAt(base, "P1", "a"),
		enrichedAt(base.Add(10*time.Minute), "P2", "b"),
	}, FeatureOptions{ConversationGap: 5 * time.Minute})
	if !out[1].IsConversationStart {
		t.Fatal("10min gap with a 5min threshold must start a conversation")
	}
}

func TestSizeBucket(t *testing.T) {
	t.Parallel()

	cases := []struct {
		words int
		want  string
	}{
		{0, BucketEmpty},
		{1, BucketShort},
		{10, BucketShort},
		{11, BucketMedium},
		{30, BucketMedium},
		{31, BucketLong},
		{100, BucketLong},
		{101, BucketVeryLong},
	}
	for _, tc := range cases {
		content := strings.TrimSpace(strings.Repeat("palavra ", tc.words))
		if got := sizeBucket(content); got != tc.want {
			t.Errorf("sizeBucket(%d words)=%s, want %s", tc.words, got, tc.want)
		}
	}
}
