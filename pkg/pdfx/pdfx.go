// Package pdfx inspects raw PDF bytes without rendering them: page count and
// the document information dictionary. It is a scanner over the COS syntax,
// not a full parser; encrypted or exotic files degrade to zero values rather
// than errors wherever possible.
package pdfx

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
)

// ErrNotPDF is returned when the input does not start with a PDF header.
var ErrNotPDF = errors.New("not a pdf")

// Info is what analysis extracts from a PDF.
type Info struct {
	PageCount    int
	Title        string
	Author       string
	CreationDate string
}

var (
	pageObjRe  = regexp.MustCompile(`/Type\s*/Page[^s]`)
	countRe    = regexp.MustCompile(`/Count\s+(\d+)`)
	titleRe    = regexp.MustCompile(`/Title\s*\(((?:\\.|[^\\)])*)\)`)
	authorRe   = regexp.MustCompile(`/Author\s*\(((?:\\.|[^\\)])*)\)`)
	creationRe = regexp.MustCompile(`/CreationDate\s*\(((?:\\.|[^\\)])*)\)`)
)

// IsPDF reports whether b carries a PDF header.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

// Parse scans b and returns what it can find. The page count is the number of
// page objects, falling back to the largest /Count entry when the page tree is
// inside compressed object streams.
func Parse(b []byte) (Info, error) {
	if !IsPDF(b) {
		return Info{}, ErrNotPDF
	}
	info := Info{PageCount: pageCount(b)}
	info.Title = literalString(titleRe, b)
	info.Author = literalString(authorRe, b)
	info.CreationDate = literalString(creationRe, b)
	return info, nil
}

func pageCount(b []byte) int {
	if n := len(pageObjRe.FindAll(b, -1)); n > 0 {
		return n
	}
	max := 0
	for _, m := range countRe.FindAllSubmatch(b, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > max {
			max = n
		}
	}
	return max
}

func literalString(re *regexp.Regexp, b []byte) string {
	m := re.FindSubmatch(b)
	if m == nil {
		return ""
	}
	return unescape(string(m[1]))
}

// unescape resolves the PDF literal-string escapes that show up in real Info
// dictionaries. Octal escapes and UTF-16 strings are out of scope.
func unescape(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
