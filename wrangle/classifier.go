package wrangle

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the strict layout for the header date+time fields.
const TimestampLayout = "02/01/06 15:04:05"

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	attachedPattern = regexp.MustCompile(`<attached:\s*(.+?)>`)
)

// omittedVocabulary maps the fixed "<kind> omitted" markers to message types.
// Order matters: "video note omitted" must win over "video omitted".
var omittedVocabulary = []struct {
	marker string
	typ    MessageType
}{
	{"video note omitted", TypeVideoNoteOmitted},
	{"audio omitted", TypeAudioOmitted},
	{"image omitted", TypeImageOmitted},
	{"video omitted", TypeVideoOmitted},
	{"sticker omitted", TypeStickerOmitted},
	{"gif omitted", TypeGIFOmitted},
	{"document omitted", TypeDocumentOmitted},
}

// ClassifyContent assigns exactly one MessageType to a block's content.
// Rules are evaluated in priority order: system markers, omitted media,
// attached media, link, emoji, then text_pure.
func ClassifyContent(content string) MessageType {
	lower := strings.ToLower(strings.TrimSpace(content))

	if strings.Contains(lower, "this message was deleted") {
		return TypeMessageDeleted
	}
	if strings.Contains(lower, "<this message was edited>") {
		return TypeMessageEdited
	}
	if strings.Contains(lower, "voice call") || strings.Contains(lower, "video call") {
		if strings.Contains(lower, "missed") {
			return TypeMissedCall
		}
		return TypeVoiceCall
	}
	if strings.Contains(lower, "this message can't be displayed") {
		return TypeSystemMessage
	}

	for _, v := range omittedVocabulary {
		if strings.Contains(lower, v.marker) {
			return v.typ
		}
	}

	if strings.Contains(lower, "<attached:") {
		switch {
		case strings.Contains(lower, "audio"), strings.Contains(lower, ".opus"), strings.Contains(lower, ".mp3"):
			return TypeAudioAttached
		case strings.Contains(lower, "photo"), strings.Contains(lower, ".jpg"), strings.Contains(lower, ".png"):
			return TypeImageAttached
		case strings.Contains(lower, "video"), strings.Contains(lower, ".mp4"):
			return TypeVideoAttached
		case strings.Contains(lower, "sticker"), strings.Contains(lower, ".webp"):
			return TypeStickerAttached
		case strings.Contains(lower, ".vcf"):
			return TypeContactAttached
		default:
			return TypeFileAttached
		}
	}

	if urlPattern.MatchString(content) {
		return TypeTextWithLink
	}
	if containsEmoji(content) {
		return TypeTextWithEmoji
	}
	return TypeTextPure
}

// containsEmoji reports whether s holds at least one rune in the emoji planes.
// Accented letters and general punctuation stay below the cutoff, so ordinary
// Portuguese text does not trip it.
func containsEmoji(s string) bool {
	for _, r := range s {
		if r >= 0x1F300 {
			return true
		}
		// Miscellaneous symbols and dingbats (hearts, stars, checkmarks).
		if r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}

// ExtractMediaRef pulls the filename token out of an <attached: …> marker.
// Returns "" when the content carries no explicit token (omitted-mode export).
func ExtractMediaRef(content string) string {
	m := attachedPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// MediaKindFromFilename infers the media kind token from the export's
// NNNNN-KIND-YYYY-MM-DD filename convention, falling back to the extension.
func MediaKindFromFilename(filename string) string {
	if filename == "" {
		return ""
	}
	parts := strings.Split(filename, "-")
	if len(parts) >= 2 && parts[1] != "" {
		return strings.ToUpper(parts[1])
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".opus", ".mp3", ".wav", ".m4a":
		return "AUDIO"
	case ".mp4", ".webm", ".mpeg":
		return "VIDEO"
	case ".jpg", ".jpeg", ".png":
		return "PHOTO"
	case ".webp":
		return "STICKER"
	case ".pdf", ".doc", ".docx", ".txt":
		return "DOCUMENT"
	}
	return ""
}

// BuildRecord turns a tokenized block into a classified MessageRecord.
// A header whose date/time fields fail the strict parse yields a degraded
// record (null timestamp, raw content preserved) plus a warning; the record
// is never dropped.
func BuildRecord(b Block) (MessageRecord, []string) {
	rec := MessageRecord{
		LineNo:     b.StartLine,
		Sender:     b.Sender,
		RawContent: b.Content,
		Type:       ClassifyContent(b.Content),
		MediaRef:   ExtractMediaRef(b.Content),
	}

	var warnings []string
	ts, err := time.Parse(TimestampLayout, b.Date+" "+b.Time)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("line %d: bad timestamp %q %q: %v", b.StartLine, b.Date, b.Time, err))
	} else {
		rec.Timestamp = ts
		rec.HasTimestamp = true
	}
	return rec, warnings
}

// BuildRecords classifies every block in order, accumulating warnings.
// The output length always equals the input length. Timestamps that step
// backwards relative to the previous parsed message are a known export quirk;
// they are warned about here, before later stages re-sort, so the evidence
// reaches the audit log.
func BuildRecords(blocks []Block) ([]MessageRecord, []string) {
	records := make([]MessageRecord, 0, len(blocks))
	var warnings []string
	var prev time.Time
	havePrev := false
	for _, b := range blocks {
		rec, w := BuildRecord(b)
		records = append(records, rec)
		warnings = append(warnings, w...)
		if !rec.HasTimestamp {
			continue
		}
		if havePrev && rec.Timestamp.Before(prev) {
			warnings = append(warnings, fmt.Sprintf("line %d: timestamp %s precedes previous message at %s (out-of-order export)",
				b.StartLine, rec.Timestamp.Format(TimestampLayout), prev.Format(TimestampLayout)))
		}
		prev = rec.Timestamp
		havePrev = true
	}
	return records, warnings
}
