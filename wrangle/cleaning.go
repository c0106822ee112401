package wrangle

import (
	"fmt"
	"regexp"
	"strings"
)

// CleaningStep is one named line-level transform. Steps consume and produce
// whole line slices so they compose into an ordered pipeline, and each
// reports a single metric for the audit log.
type CleaningStep struct {
	ID    string
	Name  string
	Apply func(lines []string) (out []string, metric int)
}

var (
	multiSpace = regexp.MustCompile(` {2,}`)
	// bracketHeader matches the export's verbose header form
	// [DD/MM/YY, HH:MM:SS] before delimiter optimization.
	bracketHeader = regexp.MustCompile(`^\[(\d{2}/\d{2}/\d{2}), (\d{2}:\d{2}:\d{2})\]`)
)

// mediaMarkers identify lines carrying media placeholders, used by the
// empty_timestamps step to recognize multi-media bursts.
var mediaMarkers = []string{
	"<attached:", "audio omitted", "image omitted", "video omitted",
	"sticker omitted", "GIF omitted", "document omitted",
}

func hasMediaMarker(line string) bool {
	for _, m := range mediaMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// CleaningSteps returns the available transforms in their recommended order.
// senderMap anonymizes participant names ("] Name:" → "] P1:" style headers
// as well as the optimized "Name:" form); pass nil to skip that step's work.
func CleaningSteps(senderMap map[string]string) []CleaningStep {
	return []CleaningStep{
		{
			ID:   "invisible",
			Name: "invisible mark removal",
			Apply: func(lines []string) ([]string, int) {
				out := make([]string, len(lines))
				removed := 0
				for i, l := range lines {
					s := StripInvisibleMarks(l)
					removed += len(l) - len(s)
					out[i] = s
				}
				return out, removed
			},
		},
		{
			ID:   "empty_timestamps",
			Name: "empty multi-media header removal",
			// A multi-media send leaves a header line with an empty body right
			// before the per-file media lines; the bare header is redundant.
			Apply: func(lines []string) ([]string, int) {
				skip := map[int]bool{}
				for i := 0; i+2 < len(lines); i++ {
					curr := strings.TrimSpace(lines[i])
					next1 := strings.TrimSpace(lines[i+1])
					next2 := strings.TrimSpace(lines[i+2])
					if !bracketHeader.MatchString(curr) || !strings.HasSuffix(curr, ":") {
						continue
					}
					if bracketHeader.MatchString(next1) && hasMediaMarker(next1) &&
						bracketHeader.MatchString(next2) && hasMediaMarker(next2) {
						skip[i] = true
					}
				}
				if len(skip) == 0 {
					return lines, 0
				}
				out := make([]string, 0, len(lines)-len(skip))
				for i, l := range lines {
					if skip[i] {
						continue
					}
					out = append(out, l)
				}
				return out, len(skip)
			},
		},
		{
			ID:   "optimize_timestamps",
			Name: "timestamp delimiter removal",
			// [28/11/24, 19:30:05] P1: msg  ->  28/11/24 19:30:05 P1: msg
			Apply: func(lines []string) ([]string, int) {
				out := make([]string, len(lines))
				normalized := 0
				for i, l := range lines {
					m := bracketHeader.FindStringSubmatch(l)
					if m == nil {
						out[i] = l
						continue
					}
					out[i] = m[1] + " " + m[2] + l[len(m[0]):]
					normalized++
				}
				return out, normalized
			},
		},
		{
			ID:   "empty_lines",
			Name: "empty line removal",
			Apply: func(lines []string) ([]string, int) {
				out := make([]string, 0, len(lines))
				for _, l := range lines {
					if l == "" {
						continue
					}
					out = append(out, l)
				}
				return out, len(lines) - len(out)
			},
		},
		{
			ID:   "whitespace",
			Name: "whitespace normalization",
			Apply: func(lines []string) ([]string, int) {
				out := make([]string, len(lines))
				saved := 0
				for i, l := range lines {
					trimmed := strings.TrimRight(l, " \t")
					indent := len(trimmed) - len(strings.TrimLeft(trimmed, " \t"))
					body := strings.ReplaceAll(trimmed[indent:], "\t", " ")
					body = multiSpace.ReplaceAllString(body, " ")
					out[i] = trimmed[:indent] + body
					saved += len(l) - len(out[i])
				}
				return out, saved
			},
		},
		{
			ID:   "indentation",
			Name: "continuation indentation removal",
			Apply: func(lines []string) ([]string, int) {
				header := regexp.MustCompile(`^\d{2}/\d{2}/\d{2}`)
				out := make([]string, len(lines))
				removed := 0
				for i, l := range lines {
					if header.MatchString(l) {
						out[i] = l
						continue
					}
					s := strings.TrimLeft(l, " \t")
					removed += len(l) - len(s)
					out[i] = s
				}
				return out, removed
			},
		},
		{
			ID:   "anonymize",
			Name: "participant anonymization",
			Apply: func(lines []string) ([]string, int) {
				if len(senderMap) == 0 {
					return lines, 0
				}
				out := make([]string, len(lines))
				replaced := 0
				for i, l := range lines {
					for name, anon := range senderMap {
						for _, pat := range []string{"] " + name + ":", " " + name + ": ", "- " + name + ":"} {
							if strings.Contains(l, pat) {
								l = strings.ReplaceAll(l, name+":", anon+":")
								replaced++
								break
							}
						}
					}
					out[i] = l
				}
				return out, replaced
			},
		},
	}
}

// CleanResult reports one executed cleaning step.
type CleanResult struct {
	ID     string
	Name   string
	Metric int
}

// RunCleaning applies the named steps in order. Unknown IDs are an error
// before any work happens.
func RunCleaning(lines []string, order []string, senderMap map[string]string) ([]string, []CleanResult, error) {
	steps := map[string]CleaningStep{}
	for _, s := range CleaningSteps(senderMap) {
		steps[s.ID] = s
	}
	for _, id := range order {
		if _, ok := steps[id]; !ok {
			return nil, nil, fmt.Errorf("RunCleaning: unknown step %q", id)
		}
	}

	var results []CleanResult
	for _, id := range order {
		step := steps[id]
		var metric int
		lines, metric = step.Apply(lines)
		results = append(results, CleanResult{ID: id, Name: step.Name, Metric: metric})
	}
	return lines, results, nil
}
