package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// joinParagraphMin is the chunk length above which two adjacent parts are
// treated as full paragraphs and joined with a blank line.
const joinParagraphMin = 100

var (
	partMarkerRe = regexp.MustCompile(`(?m)^--- PART (\d+) ---$`)
	tripleNLRe   = regexp.MustCompile(`\n{3,}`)
)

type mergeChunk struct {
	label int
	body  string
}

// MergeMarkdown assembles the stored part payloads into one document. Chunks
// are delimited by "--- PART n ---" marker lines, ordered by their marker
// number (stable for duplicates), and joined with a blank line when both
// neighbors are paragraph-sized. Runs of three or more newlines collapse to
// one blank line and a document header is prepended.
//
// Content without any marker is returned unchanged with found=false: the
// document was stored whole and needs no assembly. The function is pure, so
// re-running a merge is idempotent.
func MergeMarkdown(content string) (merged string, parts int, found bool) {
	locs := partMarkerRe.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return content, 0, false
	}

	chunks := make([]mergeChunk, 0, len(locs))
	for i, loc := range locs {
		label, _ := strconv.Atoi(content[loc[2]:loc[3]])
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(content[loc[1]:end])
		if body == "" {
			continue
		}
		chunks = append(chunks, mergeChunk{label: label, body: body})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].label < chunks[j].label })

	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			if len(chunks[i-1].body) > joinParagraphMin && len(c.body) > joinParagraphMin {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(c.body)
	}
	body := strings.TrimSpace(tripleNLRe.ReplaceAllString(b.String(), "\n\n"))

	header := fmt.Sprintf("# Merged PDF Document\n\nThis document was produced by merging %d PDF parts.\n\n", len(chunks))
	return header + body, len(chunks), true
}

// PartMarker renders the marker line a part payload is prefixed with before
// storage. Part numbers are 1-based in the document.
func PartMarker(partIndex int) string {
	return fmt.Sprintf("\n\n--- PART %d ---\n\n", partIndex+1)
}
