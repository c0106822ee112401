package wrangle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DefaultHeaderPattern matches the export's message header shape:
// DD/MM/YY, HH:MM:SS - Sender: content
// The comma and dash separators vary between export locales, so both are
// optional; TokenizerOptions.HeaderPattern can replace the pattern entirely.
const DefaultHeaderPattern = `^(\d{2}/\d{2}/\d{2}),? (\d{2}:\d{2}:\d{2})(?: -)? (.+?): (.*)$`

// Block is one raw message block: a header line plus any continuation lines
// joined with newlines. StartLine is the 1-based source line of the header.
type Block struct {
	StartLine int
	Date      string
	Time      string
	Sender    string
	Content   string
}

// TokenizerOptions controls header matching.
type TokenizerOptions struct {
	// HeaderPattern overrides DefaultHeaderPattern. It must expose exactly four
	// capture groups: date, time, sender, content.
	HeaderPattern string
}

// invisibleMarks are formatting runes the exporter sprinkles through the log
// for text-direction control. They break header matching and inflate
// length-based features, so they are stripped from both the match input and
// the stored content.
var invisibleMarks = map[rune]bool{
	'\u200e': true, // left-to-right mark
	'\u200f': true, // right-to-left mark
	'\u200d': true, // zero-width joiner
	'\u200b': true, // zero-width space
	'\ufeff': true, // zero-width no-break space / BOM
	'\u2060': true, // word joiner
}

// StripInvisibleMarks removes invisible formatting runes from s.
func StripInvisibleMarks(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return invisibleMarks[r] }) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if invisibleMarks[r] {
			return -1
		}
		return r
	}, s)
}

// TokenizeLog splits the raw export text into ordered message blocks.
// A new block begins only on a line matching the header pattern; any other
// line is folded into the previous block's content. Lines that appear before
// the first header cannot be attached to anything and are reported as parse
// warnings, never as a failure.
func TokenizeLog(r io.Reader, opts TokenizerOptions) ([]Block, []string, error) {
	pattern := opts.HeaderPattern
	if pattern == "" {
		pattern = DefaultHeaderPattern
	}
	header, err := regexp.Compile(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("TokenizeLog: compile header pattern: %w", err)
	}
	if header.NumSubexp() != 4 {
		return nil, nil, fmt.Errorf("TokenizeLog: header pattern must have 4 capture groups, has %d", header.NumSubexp())
	}

	var (
		blocks   []Block
		warnings []string
		current  *Block
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := StripInvisibleMarks(sc.Text())

		m := header.FindStringSubmatch(line)
		if m == nil {
			if current == nil {
				if strings.TrimSpace(line) != "" {
					warnings = append(warnings, fmt.Sprintf("line %d: content before first header dropped into no record: %q", lineNo, truncateForWarning(line)))
				}
				continue
			}
			current.Content += "\n" + line
			continue
		}

		if current != nil {
			blocks = append(blocks, *current)
		}
		current = &Block{
			StartLine: lineNo,
			Date:      m[1],
			Time:      m[2],
			Sender:    m[3],
			Content:   m[4],
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("TokenizeLog: scan: %w", err)
	}
	if current != nil {
		blocks = append(blocks, *current)
	}

	return blocks, warnings, nil
}

func truncateForWarning(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
