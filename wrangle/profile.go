package wrangle

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// FileOverview summarizes the raw export before any stage runs.
type FileOverview struct {
	Path          string
	SizeBytes     int64
	TotalLines    int
	NonEmptyLines int
	TotalChars    int
	MeanLineChars float64
}

// LinePatterns is a census of structural line shapes in the raw export, used
// by the pipeline pre-flight report to sanity-check the input.
type LinePatterns struct {
	WithTimestamp    int
	Continuation     int
	Empty            int
	WithOmittedMedia int
	WithAttached     int
	WithLink         int
}

var (
	profileTimestamp = regexp.MustCompile(`^\[?\d{2}/\d{2}/\d{2}`)
	profileOmitted   = regexp.MustCompile(`(audio|image|video|sticker|GIF|document) omitted`)
)

// ProfileFile reads the export once and returns both the overview and the
// pattern census.
func ProfileFile(path string) (FileOverview, LinePatterns, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileOverview{}, LinePatterns{}, fmt.Errorf("ProfileFile: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return FileOverview{}, LinePatterns{}, fmt.Errorf("ProfileFile: %w", err)
	}
	defer f.Close()

	ov := FileOverview{Path: path, SizeBytes: info.Size()}
	var pat LinePatterns

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		ov.TotalLines++
		ov.TotalChars += len(line)

		if strings.TrimSpace(line) == "" {
			pat.Empty++
			continue
		}
		ov.NonEmptyLines++

		if profileTimestamp.MatchString(line) {
			pat.WithTimestamp++
		} else {
			pat.Continuation++
		}
		if profileOmitted.MatchString(line) {
			pat.WithOmittedMedia++
		}
		if strings.Contains(line, "<attached:") {
			pat.WithAttached++
		}
		if urlPattern.MatchString(line) {
			pat.WithLink++
		}
	}
	if err := sc.Err(); err != nil {
		return FileOverview{}, LinePatterns{}, fmt.Errorf("ProfileFile: scan: %w", err)
	}

	if ov.TotalLines > 0 {
		ov.MeanLineChars = float64(ov.TotalChars) / float64(ov.TotalLines)
	}
	return ov, pat, nil
}
