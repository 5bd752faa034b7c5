package pdfx_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pdf-ingest/pkg/pdfx"
)

// miniPDF builds a syntactically plausible PDF with n page objects and the
// given Info entries.
func miniPDF(n int, info string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	b.WriteString("2 0 obj << /Type /Pages /Kids [] /Count ")
	b.WriteString(strconv.Itoa(n))
	b.WriteString(" >> endobj\n")
	for i := 0; i < n; i++ {
		b.WriteString(strconv.Itoa(3+i) + " 0 obj << /Type /Page /Parent 2 0 R >> endobj\n")
	}
	if info != "" {
		b.WriteString("9 0 obj << " + info + " >> endobj\n")
	}
	b.WriteString("%%EOF\n")
	return []byte(b.String())
}

func TestParse_PageCountAndInfo(t *testing.T) {
	t.Parallel()
	doc := miniPDF(3, `/Title (Quarterly Report) /Author (Ops Team) /CreationDate (D:20260501120000Z)`)
	info, err := pdfx.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Equal(t, "Quarterly Report", info.Title)
	assert.Equal(t, "Ops Team", info.Author)
	assert.Equal(t, "D:20260501120000Z", info.CreationDate)
}

func TestParse_CountFallback(t *testing.T) {
	t.Parallel()
	// No visible page objects (as with compressed object streams); the Pages
	// node /Count is the only signal.
	doc := []byte("%PDF-1.7\n2 0 obj << /Type /Pages /Count 120 >> endobj\n%%EOF")
	info, err := pdfx.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 120, info.PageCount)
}

func TestParse_EscapedTitle(t *testing.T) {
	t.Parallel()
	doc := miniPDF(1, `/Title (Plans \(draft\))`)
	info, err := pdfx.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "Plans (draft)", info.Title)
}

func TestParse_NotPDF(t *testing.T) {
	t.Parallel()
	_, err := pdfx.Parse([]byte("PK\x03\x04 this is a zip"))
	require.ErrorIs(t, err, pdfx.ErrNotPDF)
	assert.False(t, pdfx.IsPDF([]byte("hello")))
	assert.True(t, pdfx.IsPDF([]byte("%PDF-1.5\n")))
}

func TestParse_NoInfoDict(t *testing.T) {
	t.Parallel()
	info, err := pdfx.Parse(miniPDF(2, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
	assert.Empty(t, info.Title)
	assert.Empty(t, info.Author)
}
