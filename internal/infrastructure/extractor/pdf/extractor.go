package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

// Extractor recognizes page text from stored PDF files. Output is one string
// per page, in page order; cleanup of watermarks and whitespace is the
// caller's concern.
type Extractor struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) RecognizePages(ctx context.Context, storagePath string) ([]string, error) {
	file, err := e.storage.Open(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, 0, total)
	for number := 1; number <= total; number++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(number)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page (scanned image, broken fonts) must not
			// sink the whole document.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
