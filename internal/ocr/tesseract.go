// Package ocr recognizes text in rendered page images.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultLanguage is used when the requested language is not installed.
const DefaultLanguage = "eng"

// ErrUnsupportedLanguage is returned when the engine has no model for the requested language.
var ErrUnsupportedLanguage = errors.New("unsupported OCR language")

// Engine turns a page image into text.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// TesseractConfig configures the tesseract command line adapter.
type TesseractConfig struct {
	Command  string // binary path, "tesseract" if empty
	TessData string // optional TESSDATA_PREFIX
	DPI      int    // resolution the page was rendered at
}

// Tesseract runs the tesseract binary, feeding a PNG on stdin and reading text from stdout.
type Tesseract struct {
	command  string
	tessdata string
	dpi      int
	logger   *slog.Logger
}

// NewTesseract creates the adapter. It fails if the binary cannot be found.
func NewTesseract(cfg TesseractConfig, logger *slog.Logger) (*Tesseract, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Command == "" {
		cfg.Command = "tesseract"
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("tesseract not found: %w", err)
	}
	return &Tesseract{
		command:  path,
		tessdata: cfg.TessData,
		dpi:      cfg.DPI,
		logger:   logger,
	}, nil
}

// Recognize OCRs img with the given language (DefaultLanguage if empty).
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	if lang == "" {
		lang = DefaultLanguage
	}

	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", fmt.Errorf("encode page image: %w", err)
	}

	args := []string{"stdin", "stdout", "-l", lang}
	if t.dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(t.dpi))
	}

	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Stdin = &in
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if t.tessdata != "" {
		cmd.Env = append(os.Environ(), "TESSDATA_PREFIX="+t.tessdata)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if isMissingLanguage(msg) {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, msg)
	}

	t.logger.Debug("ocr page", "lang", lang, "chars", out.Len())
	return out.String(), nil
}

// isMissingLanguage matches tesseract's messages for an absent traineddata file.
func isMissingLanguage(stderr string) bool {
	return strings.Contains(stderr, "Failed loading language") ||
		strings.Contains(stderr, "Error opening data file")
}
