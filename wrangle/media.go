package wrangle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// InventoryMediaDir lists every regular file under dir (flat or nested).
// A missing directory is not fatal: the caller gets an empty inventory plus
// a warning, and linking degrades to "nothing matches".
func InventoryMediaDir(dir string) ([]MediaFile, []string, error) {
	if dir == "" {
		return nil, nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, []string{fmt.Sprintf("media directory not found: %s", dir)}, nil
		}
		return nil, nil, fmt.Errorf("InventoryMediaDir: stat: %w", err)
	}

	var files []MediaFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := d.Name()
		files = append(files, MediaFile{
			Filename:  name,
			Path:      path,
			Extension: strings.ToLower(filepath.Ext(name)),
			Kind:      MediaKindFromFilename(name),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			Exists:    true,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("InventoryMediaDir: walk: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil, nil
}

// Linkage is the result of resolving message media references against the
// on-disk inventory.
type Linkage struct {
	// Records carries the input records with MediaRef filled in where the
	// ordinal fallback resolved a file. Same length and order as the input.
	Records []MessageRecord
	// Resolved maps record line numbers to their matched media file.
	Resolved map[int]MediaFile
	// Orphans are inventory files no record claimed.
	Orphans []MediaFile
	// Warnings accumulate unresolved references and ordinal-match notes.
	Warnings []string
}

// filenameDatePattern extracts the date component of the export's
// NNNNN-KIND-YYYY-MM-DD filename convention.
var filenameDatePattern = regexp.MustCompile(`^\d+-[A-Za-z]+-(\d{4}-\d{2}-\d{2})`)

// LinkMedia resolves each media-typed record to at most one inventory file.
// Pass 1 matches explicit filename tokens exactly. Pass 2 falls back to
// ordinal matching: records of a media kind with no token are paired, in log
// order, with that day's unclaimed files of the same kind, in name order.
// The ordinal pass is a best-effort heuristic and can misattribute files when
// the export dropped some placeholders; every ordinal match is flagged with a
// warning rather than silently trusted.
func LinkMedia(records []MessageRecord, inventory []MediaFile) Linkage {
	link := Linkage{
		Records:  append([]MessageRecord(nil), records...),
		Resolved: make(map[int]MediaFile),
	}

	byName := make(map[string]int, len(inventory))
	claimed := make([]bool, len(inventory))
	for i, f := range inventory {
		byName[f.Filename] = i
	}

	// Pass 1: exact filename match.
	for i := range link.Records {
		rec := &link.Records[i]
		if rec.MediaRef == "" {
			continue
		}
		idx, ok := byName[rec.MediaRef]
		if !ok {
			link.Warnings = append(link.Warnings, fmt.Sprintf("line %d: referenced file %q not in media directory", rec.LineNo, rec.MediaRef))
			continue
		}
		claimed[idx] = true
		link.Resolved[rec.LineNo] = inventory[idx]
	}

	// Pass 2: ordinal fallback for attached-media records without a token.
	type slot struct{ day, kind string }
	pending := make(map[slot][]int) // record indices, log order
	for i := range link.Records {
		rec := &link.Records[i]
		if rec.MediaRef != "" || !rec.Type.IsAttached() || !rec.HasTimestamp {
			continue
		}
		kind := attachedKindToken(rec.Type)
		if kind == "" {
			continue
		}
		day := rec.Timestamp.Format("2006-01-02")
		pending[slot{day, kind}] = append(pending[slot{day, kind}], i)
	}

	available := make(map[slot][]int) // inventory indices, name order
	for i, f := range inventory {
		if claimed[i] {
			continue
		}
		m := filenameDatePattern.FindStringSubmatch(f.Filename)
		if m == nil || f.Kind == "" {
			continue
		}
		available[slot{m[1], f.Kind}] = append(available[slot{m[1], f.Kind}], i)
	}

	slots := make([]slot, 0, len(pending))
	for s := range pending {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].day != slots[j].day {
			return slots[i].day < slots[j].day
		}
		return slots[i].kind < slots[j].kind
	})

	for _, s := range slots {
		recIdxs := pending[s]
		fileIdxs := available[s]
		n := len(recIdxs)
		if len(fileIdxs) < n {
			n = len(fileIdxs)
		}
		for k := 0; k < n; k++ {
			rec := &link.Records[recIdxs[k]]
			f := inventory[fileIdxs[k]]
			rec.MediaRef = f.Filename
			claimed[fileIdxs[k]] = true
			link.Resolved[rec.LineNo] = f
			link.Warnings = append(link.Warnings, fmt.Sprintf("line %d: ordinal match to %q (heuristic)", rec.LineNo, f.Filename))
		}
		for k := n; k < len(recIdxs); k++ {
			rec := link.Records[recIdxs[k]]
			link.Warnings = append(link.Warnings, fmt.Sprintf("line %d: %s media has no matching file on %s", rec.LineNo, s.kind, s.day))
		}
	}

	for i, f := range inventory {
		if !claimed[i] {
			link.Orphans = append(link.Orphans, f)
		}
	}
	return link
}

func attachedKindToken(t MessageType) string {
	switch t {
	case TypeAudioAttached:
		return "AUDIO"
	case TypeImageAttached:
		return "PHOTO"
	case TypeVideoAttached:
		return "VIDEO"
	case TypeStickerAttached:
		return "STICKER"
	case TypeContactAttached:
		return "CONTACT"
	case TypeFileAttached:
		return "DOCUMENT"
	}
	return ""
}
