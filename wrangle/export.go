package wrangle

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/marlondutra/chat-wrangler/wrangle/fileutils"
)

// Output filenames inside the export directory.
const (
	FullTableFile    = "messages_full.csv"
	CoreTableFile    = "messages.csv"
	ParquetTableFile = "messages.parquet"
	ChatCompleteFile = "chat_complete.txt"
	CorpusFullFile   = "corpus_full.txt"
)

const exportTimestampLayout = "02/01/06 15:04:05"

// ExportTables writes the full and core CSV tables plus the columnar parquet
// encoding of the core columns. Returns output paths keyed by table name.
func ExportTables(records []FeatureRecord, outDir string) (map[string]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ExportTables: mkdir: %w", err)
	}

	outputs := map[string]string{}

	fullPath := filepath.Join(outDir, FullTableFile)
	if err := writeCSVAtomic(fullPath, fullHeader(), records, fullRow); err != nil {
		return nil, err
	}
	outputs["csv_full"] = fullPath

	corePath := filepath.Join(outDir, CoreTableFile)
	if err := writeCSVAtomic(corePath, coreHeader(), records, coreRowStrings); err != nil {
		return nil, err
	}
	outputs["csv_core"] = corePath

	parquetPath := filepath.Join(outDir, ParquetTableFile)
	if err := writeParquet(parquetPath, records); err != nil {
		return nil, err
	}
	outputs["parquet"] = parquetPath

	return outputs, nil
}

func fullHeader() []string {
	return []string{
		"line_no", "date", "time", "timestamp", "sender", "raw_content",
		"message_type", "media_file", "file_exists", "extension", "file_kind",
		"file_path", "has_transcription", "transcription", "transcription_status",
		"is_synthetic", "enriched_content", "has_sentiment", "sentiment_label",
		"sentiment_score", "gap_seconds", "is_conversation_start",
		"same_sender_streak", "size_bucket",
	}
}

func fullRow(r FeatureRecord) []string {
	ts, date, clock := "", "", ""
	if r.HasTimestamp {
		ts = r.Timestamp.Format(time.RFC3339)
		date = r.Timestamp.Format("02/01/06")
		clock = r.Timestamp.Format("15:04:05")
	}
	gap := ""
	if r.GapSeconds != nil {
		gap = strconv.FormatFloat(*r.GapSeconds, 'f', -1, 64)
	}
	return []string{
		strconv.Itoa(r.LineNo), date, clock, ts, r.Sender, r.RawContent,
		string(r.Type), r.MediaRef, strconv.FormatBool(r.FileExists), r.Extension,
		r.FileKind, r.FilePath, strconv.FormatBool(r.HasTranscription),
		r.Transcription, r.TranscriptionStatus, strconv.FormatBool(r.IsSynthetic),
		r.EnrichedContent, strconv.FormatBool(r.HasSentiment), r.SentimentLabel,
		strconv.FormatFloat(r.SentimentScore, 'f', -1, 64), gap,
		strconv.FormatBool(r.IsConversationStart),
		strconv.Itoa(r.SameSenderStreak), r.SizeBucket,
	}
}

func coreHeader() []string {
	return []string{
		"timestamp", "sender", "message_type", "enriched_content", "media_file",
		"has_transcription", "has_sentiment", "is_synthetic",
	}
}

func coreRowStrings(r FeatureRecord) []string {
	ts := ""
	if r.HasTimestamp {
		ts = r.Timestamp.Format(time.RFC3339)
	}
	return []string{
		ts, r.Sender, string(r.Type), r.EnrichedContent, r.MediaRef,
		strconv.FormatBool(r.HasTranscription),
		strconv.FormatBool(r.HasSentiment),
		strconv.FormatBool(r.IsSynthetic),
	}
}

func writeCSVAtomic(path string, header []string, records []FeatureRecord, row func(FeatureRecord) []string) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return fileutils.WriteFileAtomicSameDir(path, []byte(sb.String()), 0o644)
}

// parquetRow mirrors the core table columns with parquet-friendly types.
type parquetRow struct {
	Timestamp        int64  `parquet:"timestamp,timestamp"`
	Sender           string `parquet:"sender,dict"`
	MessageType      string `parquet:"message_type,dict"`
	EnrichedContent  string `parquet:"enriched_content"`
	MediaFile        string `parquet:"media_file"`
	HasTranscription bool   `parquet:"has_transcription"`
	HasSentiment     bool   `parquet:"has_sentiment"`
	IsSynthetic      bool   `parquet:"is_synthetic"`
}

func writeParquet(path string, records []FeatureRecord) error {
	rows := make([]parquetRow, 0, len(records))
	for _, r := range records {
		var ts int64
		if r.HasTimestamp {
			ts = r.Timestamp.UnixMilli()
		}
		rows = append(rows, parquetRow{
			Timestamp:        ts,
			Sender:           r.Sender,
			MessageType:      string(r.Type),
			EnrichedContent:  r.EnrichedContent,
			MediaFile:        r.MediaRef,
			HasTranscription: r.HasTranscription,
			HasSentiment:     r.HasSentiment,
			IsSynthetic:      r.IsSynthetic,
		})
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp_"+filepath.Base(path)+"_*")
	if err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := parquet.NewGenericWriter[parquetRow](tmp, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("close parquet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close parquet tmp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ExportCorpus writes the plain-text corpus files: the whole chat with
// headers, the bare enriched content, and both per sender. Returns output
// paths keyed by file label.
func ExportCorpus(records []FeatureRecord, outDir string) (map[string]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ExportCorpus: mkdir: %w", err)
	}

	outputs := map[string]string{}

	write := func(label, name string, recs []FeatureRecord, withHeader bool) error {
		var sb strings.Builder
		for _, r := range recs {
			if withHeader {
				ts := "??/??/?? ??:??:??"
				if r.HasTimestamp {
					ts = r.Timestamp.Format(exportTimestampLayout)
				}
				fmt.Fprintf(&sb, "%s %s: %s\n", ts, r.Sender, r.EnrichedContent)
			} else {
				fmt.Fprintf(&sb, "%s\n", r.EnrichedContent)
			}
		}
		path := filepath.Join(outDir, name)
		if err := fileutils.WriteFileAtomicSameDir(path, []byte(sb.String()), 0o644); err != nil {
			return fmt.Errorf("ExportCorpus: %s: %w", name, err)
		}
		outputs[label] = path
		return nil
	}

	if err := write("chat_complete", ChatCompleteFile, records, true); err != nil {
		return nil, err
	}
	if err := write("corpus_full", CorpusFullFile, records, false); err != nil {
		return nil, err
	}

	for _, sender := range senders(records) {
		var recs []FeatureRecord
		for _, r := range records {
			if r.Sender == sender {
				recs = append(recs, r)
			}
		}
		slug := senderSlug(sender)
		if err := write("chat_"+slug, "chat_"+slug+".txt", recs, true); err != nil {
			return nil, err
		}
		if err := write("corpus_"+slug, "corpus_"+slug+".txt", recs, false); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func senders(records []FeatureRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		if r.Sender == "" || seen[r.Sender] {
			continue
		}
		seen[r.Sender] = true
		out = append(out, r.Sender)
	}
	sort.Strings(out)
	return out
}

func senderSlug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
