package wrangle

import (
	"fmt"
	"sort"
	"strings"
)

// EnrichmentResult is the merged corpus plus bookkeeping for the audit log.
type EnrichmentResult struct {
	Records []EnrichedRecord
	// SyntheticCount is the number of orphan-derived records appended.
	SyntheticCount int
	Warnings       []string
}

// MergeEnrichment folds both annotation caches into the message records and
// materializes synthetic records from orphan media with completed
// transcriptions. The output is ordered by timestamp, ties broken by source
// line number; it always contains at least one record per input record.
func MergeEnrichment(records []MessageRecord, link Linkage, transcriptions *Cache[TranscriptionEntry], sentiments *Cache[SentimentEntry]) EnrichmentResult {
	var res EnrichmentResult
	res.Records = make([]EnrichedRecord, 0, len(records)+len(link.Orphans))

	for _, rec := range records {
		er := EnrichedRecord{MessageRecord: rec, EnrichedContent: rec.RawContent}

		if f, ok := link.Resolved[rec.LineNo]; ok && rec.MediaRef != "" {
			er.FileExists = f.Exists
			er.FilePath = f.Path
			er.FileKind = f.Kind
			er.Extension = f.Extension
		}

		if rec.MediaRef != "" && transcriptions != nil {
			if entry, ok := transcriptions.Get(rec.MediaRef); ok {
				er.HasTranscription = true
				er.TranscriptionStatus = entry.Status
				if entry.Status == StatusCompleted {
					er.Transcription = entry.Text
					er.EnrichedContent = transcribedMarker(er.FileKind, entry, rec.MediaRef, false)
				}
			}
		}

		if rec.HasTimestamp && sentiments != nil {
			key := Fingerprint(rec.Timestamp, rec.Sender, rec.RawContent)
			if entry, ok := sentiments.Get(key); ok {
				er.HasSentiment = true
				er.SentimentLabel = entry.Label
				er.SentimentScore = entry.Score
			}
		}

		res.Records = append(res.Records, er)
	}

	// Orphan media with a completed transcription joins the corpus as a
	// standalone synthetic record, timestamped by file mtime since the cache
	// schema carries no completion time.
	if transcriptions != nil {
		for _, orphan := range link.Orphans {
			entry, ok := transcriptions.Get(orphan.Filename)
			if !ok || entry.Status != StatusCompleted {
				continue
			}
			er := EnrichedRecord{
				MessageRecord: MessageRecord{
					Timestamp:    orphan.ModTime,
					HasTimestamp: !orphan.ModTime.IsZero(),
					Type:         attachedTypeForKind(orphan.Kind),
					MediaRef:     orphan.Filename,
				},
				FileExists:          orphan.Exists,
				FilePath:            orphan.Path,
				FileKind:            orphan.Kind,
				Extension:           orphan.Extension,
				HasTranscription:    true,
				Transcription:       entry.Text,
				TranscriptionStatus: entry.Status,
				IsSynthetic:         true,
				EnrichedContent:     transcribedMarker(orphan.Kind, entry, orphan.Filename, true),
			}
			res.Records = append(res.Records, er)
			res.SyntheticCount++
			res.Warnings = append(res.Warnings, fmt.Sprintf("orphan %s materialized as synthetic record", orphan.Filename))
		}
	}

	sort.SliceStable(res.Records, func(i, j int) bool {
		a, b := res.Records[i], res.Records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.LineNo < b.LineNo
	})
	return res
}

// transcribedMarker wraps transcription text in the fixed enrichment marker,
// distinguishing owned media from orphan-derived synthetic content.
func transcribedMarker(kind string, entry TranscriptionEntry, filename string, synthetic bool) string {
	k := strings.ToUpper(strings.TrimSpace(kind))
	if k == "" {
		k = strings.ToUpper(strings.TrimSpace(entry.MediaType))
	}
	if k == "" {
		k = "MEDIA"
	}
	if synthetic {
		return fmt.Sprintf("[%s TRANSCRIBED - ORPHAN] %s\n[File: %s]", k, entry.Text, filename)
	}
	return fmt.Sprintf("[%s TRANSCRIBED] %s\n[File: %s]", k, entry.Text, filename)
}

func attachedTypeForKind(kind string) MessageType {
	switch strings.ToUpper(kind) {
	case "AUDIO", "PTT":
		return TypeAudioAttached
	case "VIDEO":
		return TypeVideoAttached
	case "PHOTO", "IMAGE":
		return TypeImageAttached
	case "STICKER":
		return TypeStickerAttached
	case "CONTACT":
		return TypeContactAttached
	}
	return TypeFileAttached
}
