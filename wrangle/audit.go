package wrangle

import (
	"time"

	"github.com/google/uuid"

	"github.com/marlondutra/chat-wrangler/wrangle/fileutils"
)

// StageAudit records the observable effect of one pipeline stage. The
// recorder never touches the data it describes.
type StageAudit struct {
	Stage      string         `json:"stage"`
	RecordsIn  int            `json:"records_in"`
	RecordsOut int            `json:"records_out"`
	NullCounts map[string]int `json:"null_counts,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// AuditLog is the ordered transformation log for one pipeline run.
type AuditLog struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Stages    []StageAudit `json:"stages"`
}

// NewAuditLog starts an empty log with a fresh run ID.
func NewAuditLog() *AuditLog {
	return &AuditLog{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Observe appends one stage entry. Entries keep declaration order, so the log
// reads as the pipeline ran.
func (l *AuditLog) Observe(stage string, in, out int, nulls map[string]int, start time.Time, warnings []string) {
	l.Stages = append(l.Stages, StageAudit{
		Stage:      stage,
		RecordsIn:  in,
		RecordsOut: out,
		NullCounts: nulls,
		DurationMS: time.Since(start).Milliseconds(),
		Warnings:   append([]string(nil), warnings...),
	})
}

// WarningCount sums warnings across all observed stages.
func (l *AuditLog) WarningCount() int {
	n := 0
	for _, s := range l.Stages {
		n += len(s.Warnings)
	}
	return n
}

// WriteJSON persists the log atomically.
func (l *AuditLog) WriteJSON(path string, pretty bool) error {
	return fileutils.WriteJSONFileAtomic(path, l, pretty)
}

// NullCountsForRecords tallies missing structured fields per column for the
// audit log's null_counts.
func NullCountsForRecords(records []MessageRecord) map[string]int {
	nulls := map[string]int{}
	for _, r := range records {
		if !r.HasTimestamp {
			nulls["timestamp"]++
		}
		if r.Sender == "" {
			nulls["sender"]++
		}
		if r.RawContent == "" {
			nulls["raw_content"]++
		}
		if r.Type.IsMedia() && r.MediaRef == "" {
			nulls["media_ref"]++
		}
	}
	return trimZeroCounts(nulls)
}

// NullCountsForEnriched tallies missing annotation fields per column.
func NullCountsForEnriched(records []EnrichedRecord) map[string]int {
	nulls := map[string]int{}
	for _, r := range records {
		if !r.HasTimestamp {
			nulls["timestamp"]++
		}
		if r.EnrichedContent == "" {
			nulls["enriched_content"]++
		}
		if r.Type.IsMedia() && !r.HasTranscription {
			nulls["transcription"]++
		}
		if !r.HasSentiment {
			nulls["sentiment"]++
		}
	}
	return trimZeroCounts(nulls)
}

func trimZeroCounts(m map[string]int) map[string]int {
	for k, v := range m {
		if v == 0 {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
