// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfDocument adapts a ledongthuc/pdf reader to Document.
type pdfDocument struct {
	file   *os.File
	reader *pdf.Reader
}

// OpenPDF opens path with the ledongthuc/pdf reader.
func OpenPDF(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &pdfDocument{file: f, reader: r}, nil
}

func (d *pdfDocument) NumPages() int {
	return d.reader.NumPage()
}

// PageText reconstructs page n line by line from its text rows. The reader
// panics on some malformed content streams; that is reported as an error for
// the page.
func (d *pdfDocument) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: malformed content: %v", n, r)
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return "", fmt.Errorf("page %d: %w", n, err)
	}

	var b strings.Builder
	for _, row := range rows {
		words := make([]string, 0, len(row.Content))
		for _, word := range row.Content {
			words = append(words, word.S)
		}
		b.WriteString(strings.Join(words, " "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (d *pdfDocument) Close() error {
	return d.file.Close()
}
