package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrInvalidPDF = errors.New("invalid pdf")
	ErrNoText     = errors.New("pdf contains no extractable text")
)

// Page is the plain text of one page; Number is 1-based.
type Page struct {
	Number int
	Text   string
}

type Result struct {
	PageCount int
	Pages     []Page
}

// Parse validates data as a PDF, counts its pages and extracts text page by
// page. Pages without text are skipped; a document without any text at all
// yields ErrNoText.
func Parse(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidPDF)
	}

	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages, err := ExtractPages(data)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return &Result{PageCount: count, Pages: pages}, nil
}

// ExtractPages reads plain text from every page. The underlying reader
// panics on some malformed files, so panics are turned into ErrInvalidPDF.
func ExtractPages(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
