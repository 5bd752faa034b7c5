// Package qpdf implements page-range extraction by shelling out to the qpdf
// binary. A scratch directory per splitting job holds the source and the part
// outputs; callers own the directory's lifetime.
package qpdf

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Splitter implements domain.PageSplitter.
type Splitter struct {
	// Bin is the qpdf binary name or path.
	Bin string
}

// New constructs a Splitter invoking the given binary.
func New(bin string) *Splitter {
	if bin == "" {
		bin = "qpdf"
	}
	return &Splitter{Bin: bin}
}

// ExtractPages writes pages [firstPage, lastPage] (1-based, inclusive) of
// srcPath to a new PDF at dstPath.
func (s *Splitter) ExtractPages(ctx domain.Context, srcPath, dstPath string, firstPage, lastPage int) error {
	if firstPage < 1 || lastPage < firstPage {
		return fmt.Errorf("op=qpdf.ExtractPages: range %d-%d: %w", firstPage, lastPage, domain.ErrInvalidArgument)
	}
	// qpdf --empty --pages <src> <first>-<last> -- <dst>
	cmd := exec.CommandContext(ctx, s.Bin,
		"--empty", "--pages", srcPath, fmt.Sprintf("%d-%d", firstPage, lastPage), "--", dstPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("op=qpdf.ExtractPages: %s %d-%d: %w: %s", srcPath, firstPage, lastPage, err, stderr.String())
	}
	return nil
}
