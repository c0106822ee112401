package wrangle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/marlondutra/chat-wrangler/wrangle/fileutils"
)

func newTestCache(t *testing.T) *Cache[SentimentEntry] {
	t.Helper()
	dir := t.TempDir()
	c, err := OpenCache[SentimentEntry](
		filepath.Join(dir, "sentiments.csv"),
		filepath.Join(dir, "sentiments_progress.csv"),
		SentimentCodec{},
	)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	return c
}

func TestCache_GetOrComputeAtMostOnce(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	calls := 0
	compute := func(ctx context.Context, key string) (SentimentEntry, error) {
		calls++
		return SentimentEntry{Label: "positive", Score: 0.9}, nil
	}

	v, fresh, err := c.GetOrCompute(context.Background(), "k1", compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if !fresh || v.Label != "positive" {
		t.Fatalf("fresh=%v v=%+v, want fresh positive", fresh, v)
	}

	v, fresh, err = c.GetOrCompute(context.Background(), "k1", compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if fresh || calls != 1 {
		t.Fatalf("fresh=%v calls=%d, want cached hit without recompute", fresh, calls)
	}
	if v.Score != 0.9 {
		t.Fatalf("Score=%v, want 0.9", v.Score)
	}
}

func TestCache_ErrorEntriesAreTerminal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := OpenCache[TranscriptionEntry](
		filepath.Join(dir, "t.csv"),
		filepath.Join(dir, "t_progress.csv"),
		TranscriptionCodec{},
	)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	calls := 0
	compute := func(ctx context.Context, key string) (TranscriptionEntry, error) {
		calls++
		return TranscriptionEntry{Status: StatusError, ErrorMessage: "too large"}, nil
	}
	if _, _, err := c.GetOrCompute(context.Background(), "big.opus", compute); err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	v, fresh, err := c.GetOrCompute(context.Background(), "big.opus", compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if fresh || calls != 1 {
		t.Fatalf("fresh=%v calls=%d, want error entry reused without recompute", fresh, calls)
	}
	if v.Status != StatusError || v.ErrorMessage != "too large" {
		t.Fatalf("v=%+v, want the stored error entry", v)
	}
}

func TestCache_HardFailureStoresNothing(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context, key string) (SentimentEntry, error) {
		return SentimentEntry{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if c.Has("k1") {
		t.Fatal("Has(k1)=true, want nothing stored after a hard failure")
	}
}

func TestCache_CanceledContextStopsBeforeCompute(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.GetOrCompute(ctx, "k1", func(ctx context.Context, key string) (SentimentEntry, error) {
		t.Fatal("compute must not run with a canceled context")
		return SentimentEntry{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestCache_CheckpointEveryFlushesProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	progress := filepath.Join(dir, "p.csv")
	c, err := OpenCache[SentimentEntry](filepath.Join(dir, "s.csv"), progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	c.CheckpointEvery = 3

	compute := func(ctx context.Context, key string) (SentimentEntry, error) {
		return SentimentEntry{Label: "neutral"}, nil
	}
	for _, key := range []string{"a", "b"} {
		if _, _, err := c.GetOrCompute(context.Background(), key, compute); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		}
	}
	if fileutils.FileExists(progress) {
		t.Fatal("progress file exists after 2 of 3 keys, want flush only at the threshold")
	}
	if _, _, err := c.GetOrCompute(context.Background(), "c", compute); err != nil {
		t.Fatalf("GetOrCompute(c): %v", err)
	}
	if !fileutils.FileExists(progress) {
		t.Fatal("progress file missing after reaching CheckpointEvery")
	}
}

func TestCache_ResumeFromProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := filepath.Join(dir, "s.csv")
	progress := filepath.Join(dir, "p.csv")

	first, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	for _, key := range keys {
		if _, _, err := first.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			return SentimentEntry{Label: "positive", Score: 0.5}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		}
	}
	// Simulate an interrupt: checkpoint but never finalize.
	if err := first.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	second, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.Resumed {
		t.Fatal("Resumed=false, want true when only a progress checkpoint exists")
	}
	if second.Len() != len(keys) {
		t.Fatalf("Len=%d, want %d", second.Len(), len(keys))
	}
	for _, key := range keys {
		if _, _, err := second.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			t.Fatalf("compute re-invoked for resumed key %s", k)
			return SentimentEntry{}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		}
	}
}

func TestCache_InterruptAfterAutoCheckpointResumesExactlyOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := filepath.Join(dir, "s.csv")
	progress := filepath.Join(dir, "p.csv")

	keys := make([]string, 12)
	for i := range keys {
		keys[i] = string(rune('a' + i))
	}

	// Run 1: default CheckpointEvery (10) flushes automatically mid-batch;
	// the run is then abandoned without Checkpoint or Finalize, as an
	// interrupt would leave it.
	first, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	for _, key := range keys {
		if _, _, err := first.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			return SentimentEntry{Label: "neutral", Score: 0.1}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		}
	}
	if !fileutils.FileExists(progress) {
		t.Fatal("progress checkpoint missing after 12 keys with CheckpointEvery=10")
	}

	// Run 2: resume. The 10 flushed keys must not recompute; the 2 lost to
	// the interrupt are computed again, once each.
	second, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.Resumed || second.Len() != 10 {
		t.Fatalf("Resumed=%v Len=%d, want resume with the 10 checkpointed keys", second.Resumed, second.Len())
	}
	recomputed := 0
	for _, key := range keys {
		if _, fresh, err := second.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			return SentimentEntry{Label: "neutral", Score: 0.1}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		} else if fresh {
			recomputed++
		}
	}
	if recomputed != 2 {
		t.Fatalf("recomputed=%d, want only the 2 unflushed keys", recomputed)
	}
	if err := second.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Final store holds every key exactly once.
	final, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("reopen final: %v", err)
	}
	if final.Resumed {
		t.Fatal("Resumed=true after Finalize, want the permanent store")
	}
	if final.Len() != len(keys) {
		t.Fatalf("Len=%d, want %d", final.Len(), len(keys))
	}
	seen := map[string]int{}
	for _, key := range final.Keys() {
		seen[key]++
	}
	for _, key := range keys {
		if seen[key] != 1 {
			t.Fatalf("key %s appears %d times in the final store, want exactly once", key, seen[key])
		}
	}
}

func TestCache_FinalizeWritesStoreAndRemovesProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := filepath.Join(dir, "s.csv")
	progress := filepath.Join(dir, "p.csv")

	c, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, _, err := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context, k string) (SentimentEntry, error) {
		return SentimentEntry{Label: "mixed", Score: -0.25}, nil
	}); err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if err := c.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !fileutils.FileExists(store) {
		t.Fatal("store missing after Finalize")
	}
	if fileutils.FileExists(progress) {
		t.Fatal("progress still present after Finalize")
	}

	reopened, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Resumed {
		t.Fatal("Resumed=true after a finalized run, want false")
	}
	v, ok := reopened.Get("k1")
	if !ok || v.Label != "mixed" || v.Score != -0.25 {
		t.Fatalf("Get(k1)=%+v/%v, want the finalized entry", v, ok)
	}
}

func TestCache_StorePreferredOverProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := filepath.Join(dir, "s.csv")
	progress := filepath.Join(dir, "p.csv")

	// Store with k1, stale progress with k2: the finalized store must win.
	seed := func(path, key string) {
		c, err := OpenCache[SentimentEntry](path, filepath.Join(dir, "unused_"+key+".csv"), SentimentCodec{})
		if err != nil {
			t.Fatalf("OpenCache: %v", err)
		}
		if _, _, err := c.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			return SentimentEntry{Label: "neutral"}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if err := c.Finalize(); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
	}
	seed(store, "k1")
	seed(progress, "k2")

	c, err := OpenCache[SentimentEntry](store, progress, SentimentCodec{})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if c.Resumed {
		t.Fatal("Resumed=true with a finalized store present, want false")
	}
	if !c.Has("k1") || c.Has("k2") {
		t.Fatalf("keys=%v, want only the store's k1", c.Keys())
	}
}

func TestCache_KeysKeepFirstWriteOrder(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	for _, key := range []string{"z", "a", "m"} {
		if _, _, err := c.GetOrCompute(context.Background(), key, func(ctx context.Context, k string) (SentimentEntry, error) {
			return SentimentEntry{}, nil
		}); err != nil {
			t.Fatalf("GetOrCompute(%s): %v", key, err)
		}
	}
	got := c.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys=%v, want %v", got, want)
		}
	}
}
