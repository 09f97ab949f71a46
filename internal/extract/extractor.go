// Package extract turns uploaded documents into page-tagged plain text,
// falling back to OCR for PDF pages with little native text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/ocr"
	"github.com/mike-a-ellis/docqa/internal/rag"
)

const (
	DefaultOCRThreshold = 50
	DefaultOCRDPI       = 300
)

var pdfMagic = []byte("%PDF-")

// Format is a supported document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// DetectFormat sniffs the PDF magic and otherwise goes by file extension.
func DetectFormat(data []byte, filename string) (Format, bool) {
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF, true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".txt":
		return FormatText, true
	}
	return "", false
}

// Config tunes the extractor. Zero values select the defaults.
type Config struct {
	OCRThreshold    int    // pages with fewer cleaned characters are OCRed
	OCRDPI          int    // render resolution for OCR
	DefaultLanguage string // retried when the requested OCR language is unsupported
}

// Result is the extracted text of one document.
type Result struct {
	Text     string // "[Page n] text" blocks joined by blank lines
	Pages    int    // total pages in the document, including empty ones
	OCRPages int    // pages whose text came from OCR
}

// Extractor converts documents to page-tagged text.
type Extractor struct {
	pdf      PDFOpener
	ocr      ocr.Engine
	markdown *markdownSplitter
	cfg      Config
	logger   *slog.Logger
}

// NewExtractor creates an extractor. engine may be nil, in which case
// low-text pages keep whatever native text they have.
func NewExtractor(pdf PDFOpener, engine ocr.Engine, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if pdf == nil {
		pdf = UniPDF{}
	}
	if cfg.OCRThreshold <= 0 {
		cfg.OCRThreshold = DefaultOCRThreshold
	}
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = DefaultOCRDPI
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = ocr.DefaultLanguage
	}
	return &Extractor{
		pdf:      pdf,
		ocr:      engine,
		markdown: newMarkdownSplitter(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Extract returns the page-tagged text of data. lang is the OCR language
// (the default language if empty).
func (e *Extractor) Extract(ctx context.Context, data []byte, filename, lang string) (*Result, error) {
	if lang == "" {
		lang = e.cfg.DefaultLanguage
	}

	format, ok := DetectFormat(data, filename)
	if !ok {
		return nil, rag.Errorf(rag.ErrDocumentFormat, "extract", "unsupported document %q", filename)
	}

	switch format {
	case FormatPDF:
		return e.extractPDF(ctx, data, lang)
	case FormatMarkdown:
		sections, err := e.markdown.Sections(data)
		if err != nil {
			return nil, rag.NewError(rag.ErrDocumentFormat, "extract", err)
		}
		return assemble(sections, 0), nil
	default:
		return assemble(strings.Split(string(data), "\f"), 0), nil
	}
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, lang string) (*Result, error) {
	doc, err := e.pdf.Open(data)
	if err != nil {
		return nil, rag.NewError(rag.ErrDocumentFormat, "extract", err)
	}

	pages := make([]string, doc.NumPages())
	ocrPages := 0
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := i + 1

		text, err := doc.PageText(n)
		if errors.Is(err, ErrPDFUnlicensed) {
			return nil, rag.NewError(rag.ErrExtraction, "extract", err)
		}
		if err != nil {
			// unreadable text layer; OCR may still recover the page
			e.logger.Warn("page text extraction failed", "page", n, "error", err)
			text = ""
		}
		text = Clean(text)

		if len(text) < e.cfg.OCRThreshold && e.ocr != nil {
			ocrText, err := e.ocrPage(ctx, doc, n, lang)
			if err != nil {
				return nil, rag.NewError(rag.ErrExtraction, "extract", fmt.Errorf("page %d: %w", n, err))
			}
			text = Clean(ocrText)
			ocrPages++
		}
		pages[i] = text
	}

	e.logger.Debug("extracted pdf", "pages", len(pages), "ocr_pages", ocrPages)
	res := assemble(pages, ocrPages)
	return res, nil
}

// ocrPage renders one page and recognizes it, retrying with the default
// language when lang is not installed.
func (e *Extractor) ocrPage(ctx context.Context, doc PDFDocument, n int, lang string) (string, error) {
	img, err := doc.RenderPage(n, e.cfg.OCRDPI)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	text, err := e.ocr.Recognize(ctx, img, lang)
	if errors.Is(err, ocr.ErrUnsupportedLanguage) && lang != e.cfg.DefaultLanguage {
		e.logger.Warn("ocr language unsupported, using default", "lang", lang, "default", e.cfg.DefaultLanguage)
		text, err = e.ocr.Recognize(ctx, img, e.cfg.DefaultLanguage)
	}
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return text, nil
}

// assemble tags each non-empty page with its 1-based number.
func assemble(pages []string, ocrPages int) *Result {
	var b strings.Builder
	for i, p := range pages {
		p = Clean(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunker.PageMarker(i + 1))
		b.WriteString(" ")
		b.WriteString(p)
	}
	return &Result{Text: b.String(), Pages: len(pages), OCRPages: ocrPages}
}
