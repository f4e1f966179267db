package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Merger concatenates PDF byte streams into a single output document.
type Merger struct {
	conf *model.Configuration
}

// NewMerger constructs a merger with relaxed validation, matching the
// tolerance expected for externally produced attachments.
func NewMerger() *Merger {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Merger{conf: conf}
}

// PageCount returns the number of pages in the given PDF bytes.
func (m *Merger) PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), m.conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return count, nil
}

// Validate reports whether the bytes parse as a well-formed PDF.
func (m *Merger) Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), m.conf); err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}
	return nil
}

// Merge concatenates the parts in order and returns the merged document
// bytes together with its total page count. At least one part is required.
func (m *Merger) Merge(parts [][]byte) ([]byte, int, error) {
	if len(parts) == 0 {
		return nil, 0, fmt.Errorf("merge requires at least one document")
	}
	readers := make([]io.ReadSeeker, 0, len(parts))
	for _, part := range parts {
		readers = append(readers, bytes.NewReader(part))
	}
	out := &bytes.Buffer{}
	if err := api.MergeRaw(readers, out, false, m.conf); err != nil {
		return nil, 0, fmt.Errorf("merge pdf streams: %w", err)
	}
	merged := out.Bytes()
	pages, err := m.PageCount(merged)
	if err != nil {
		return nil, 0, err
	}
	return merged, pages, nil
}
