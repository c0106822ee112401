package wrangle

import "time"

// MessageType is the closed classification vocabulary for parsed messages.
// Classification is total: every block maps to exactly one of these values,
// falling back to TypeSystemMessage for anything the rules don't recognize.
type MessageType string

const (
	TypeTextPure      MessageType = "text_pure"
	TypeTextWithEmoji MessageType = "text_with_emoji"
	TypeTextWithLink  MessageType = "text_with_link"

	TypeAudioOmitted     MessageType = "audio_omitted"
	TypeImageOmitted     MessageType = "image_omitted"
	TypeVideoOmitted     MessageType = "video_omitted"
	TypeVideoNoteOmitted MessageType = "video_note_omitted"
	TypeStickerOmitted   MessageType = "sticker_omitted"
	TypeGIFOmitted       MessageType = "gif_omitted"
	TypeDocumentOmitted  MessageType = "document_omitted"

	TypeAudioAttached   MessageType = "audio_attached"
	TypeImageAttached   MessageType = "image_attached"
	TypeVideoAttached   MessageType = "video_attached"
	TypeStickerAttached MessageType = "sticker_attached"
	TypeContactAttached MessageType = "contact_attached"
	TypeFileAttached    MessageType = "file_attached"

	TypeMessageDeleted MessageType = "message_deleted"
	TypeMessageEdited  MessageType = "message_edited"
	TypeVoiceCall      MessageType = "voice_call"
	TypeMissedCall     MessageType = "missed_call"
	TypeSystemMessage  MessageType = "system_message"
)

// IsMedia reports whether the type refers to an omitted or attached media message.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeAudioOmitted, TypeImageOmitted, TypeVideoOmitted, TypeVideoNoteOmitted,
		TypeStickerOmitted, TypeGIFOmitted, TypeDocumentOmitted,
		TypeAudioAttached, TypeImageAttached, TypeVideoAttached,
		TypeStickerAttached, TypeContactAttached, TypeFileAttached:
		return true
	}
	return false
}

// IsAttached reports whether the type refers to an exported media attachment.
func (t MessageType) IsAttached() bool {
	switch t {
	case TypeAudioAttached, TypeImageAttached, TypeVideoAttached,
		TypeStickerAttached, TypeContactAttached, TypeFileAttached:
		return true
	}
	return false
}

// MessageRecord is one parsed log entry. Records are immutable after
// classification and media linking; later stages produce new sequences.
type MessageRecord struct {
	LineNo    int
	Timestamp time.Time
	// HasTimestamp is false for fallback records whose header failed the strict
	// field parse; such records keep their raw content and null structured fields.
	HasTimestamp bool
	Sender       string
	RawContent   string
	Type         MessageType
	// MediaRef is the filename token extracted from an <attached: …> marker,
	// or resolved by the media linker. Empty for non-media records and for
	// omitted-mode exports.
	MediaRef string
}

// MediaFile is one on-disk artifact from the export's media directory.
type MediaFile struct {
	Filename  string
	Path      string
	Extension string
	// Kind is the inferred media kind token (AUDIO, VIDEO, PHOTO, STICKER, …),
	// taken from the export filename convention or the extension.
	Kind      string
	SizeBytes int64
	ModTime   time.Time
	Exists    bool
}

// EnrichedRecord extends MessageRecord with media linkage and annotations.
type EnrichedRecord struct {
	MessageRecord

	FileExists bool
	FilePath   string
	FileKind   string
	Extension  string

	HasTranscription    bool
	Transcription       string
	TranscriptionStatus string
	IsSynthetic         bool

	EnrichedContent string

	HasSentiment   bool
	SentimentLabel string
	SentimentScore float64
}

// FeatureRecord extends EnrichedRecord with derived conversational features.
// Features are recomputed every run and never persisted independently.
type FeatureRecord struct {
	EnrichedRecord

	// GapSeconds is the time since the previous record in the same ordered
	// corpus; nil for the first record.
	GapSeconds          *float64
	IsConversationStart bool
	SameSenderStreak    int
	SizeBucket          string
}

// Size bucket labels, by word count of the enriched content.
const (
	BucketEmpty    = "empty"
	BucketShort    = "short"     // 1-10 words
	BucketMedium   = "medium"    // 11-30 words
	BucketLong     = "long"      // 31-100 words
	BucketVeryLong = "very_long" // >100 words
)
