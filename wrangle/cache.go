package wrangle

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/marlondutra/chat-wrangler/wrangle/fileutils"
)

// Codec defines how one cache value type maps onto CSV rows. The first header
// column is always the key.
type Codec[V any] interface {
	Header() []string
	Encode(key string, v V) []string
	Decode(row []string) (key string, v V, err error)
}

// Cache is a persistent, keyed memoization store for one expensive external
// annotation. It guarantees at-most-once computation per key across repeated,
// interruptible runs: values are checkpointed to a progress file every
// CheckpointEvery keys and merged into the final store atomically on
// Finalize. The files are single-writer, single-process artifacts; running
// two pipelines against the same paths is unsupported.
type Cache[V any] struct {
	storePath    string
	progressPath string
	codec        Codec[V]

	// CheckpointEvery is the number of newly computed keys between progress
	// flushes. Defaults to 10.
	CheckpointEvery int

	entries map[string]V
	order   []string
	pending int

	// Resumed reports whether Open found a progress checkpoint from a prior
	// unfinished run.
	Resumed bool
}

// OpenCache loads the cache state: the finalized store if present, else the
// progress checkpoint of a prior interrupted run, else empty.
func OpenCache[V any](storePath, progressPath string, codec Codec[V]) (*Cache[V], error) {
	if storePath == "" || progressPath == "" {
		return nil, errors.New("OpenCache: store and progress paths are required")
	}
	if codec == nil {
		return nil, errors.New("OpenCache: codec is nil")
	}

	c := &Cache[V]{
		storePath:       storePath,
		progressPath:    progressPath,
		codec:           codec,
		CheckpointEvery: 10,
		entries:         make(map[string]V),
	}

	source := ""
	switch {
	case fileutils.FileExists(storePath):
		source = storePath
	case fileutils.FileExists(progressPath):
		source = progressPath
		c.Resumed = true
	default:
		return c, nil
	}

	if err := c.readFile(source); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache[V]) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(c.codec.Header())
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", path, err)
	}
	for i, row := range rows {
		if i == 0 && strings.EqualFold(row[0], c.codec.Header()[0]) {
			continue
		}
		key, v, err := c.codec.Decode(row)
		if err != nil {
			return fmt.Errorf("cache: decode %s row %d: %w", path, i+1, err)
		}
		if _, ok := c.entries[key]; !ok {
			c.order = append(c.order, key)
		}
		c.entries[key] = v
	}
	return nil
}

// Has reports whether key has any recorded value, including error entries.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of cached keys.
func (c *Cache[V]) Len() int { return len(c.entries) }

// Keys returns the cached keys in first-write order.
func (c *Cache[V]) Keys() []string {
	return append([]string(nil), c.order...)
}

// GetOrCompute returns the cached value for key, computing and storing it
// when absent. compute is never re-invoked for a key that already has any
// recorded value, even one whose status is an error: error entries are
// terminal per key until the cache row is removed by hand. A non-nil error
// from compute is a hard failure (e.g. cancellation) and nothing is stored;
// per-key annotation failures must be encoded inside V by compute itself.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context, key string) (V, error)) (V, bool, error) {
	if v, ok := c.entries[key]; ok {
		return v, false, nil
	}
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	v, err := compute(ctx, key)
	if err != nil {
		return zero, false, err
	}

	c.entries[key] = v
	c.order = append(c.order, key)
	c.pending++

	every := c.CheckpointEvery
	if every <= 0 {
		every = 10
	}
	if c.pending >= every {
		if err := c.Checkpoint(); err != nil {
			return v, true, err
		}
	}
	return v, true, nil
}

// Checkpoint flushes the full entry set to the progress file atomically.
// A crash after a checkpoint loses at most CheckpointEvery-1 computed keys.
func (c *Cache[V]) Checkpoint() error {
	if err := c.writeFile(c.progressPath); err != nil {
		return fmt.Errorf("cache: checkpoint: %w", err)
	}
	c.pending = 0
	return nil
}

// Finalize merges everything into the permanent store and removes the
// progress artifact. The store write is temp-then-rename, so a crash during
// finalize leaves either the old store or the complete new one, never a
// partial file.
func (c *Cache[V]) Finalize() error {
	if err := c.writeFile(c.storePath); err != nil {
		return fmt.Errorf("cache: finalize: %w", err)
	}
	if fileutils.FileExists(c.progressPath) {
		if err := os.Remove(c.progressPath); err != nil {
			return fmt.Errorf("cache: remove progress: %w", err)
		}
	}
	return nil
}

func (c *Cache[V]) writeFile(path string) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(c.codec.Header()); err != nil {
		return err
	}
	for _, key := range c.order {
		if err := w.Write(c.codec.Encode(key, c.entries[key])); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fileutils.WriteFileAtomicSameDir(path, []byte(sb.String()), 0o644)
}
