package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/render"
)

// PDFDocument is an opened PDF. Pages are numbered from 1.
type PDFDocument interface {
	NumPages() int
	PageText(page int) (string, error)
	RenderPage(page int, dpi int) (image.Image, error)
}

// PDFOpener parses raw PDF bytes.
type PDFOpener interface {
	Open(data []byte) (PDFDocument, error)
}

// ErrPDFUnlicensed is returned by PageText when no unipdf license is loaded.
// unipdf renders pages without a license but refuses to extract text.
var ErrPDFUnlicensed = errors.New("PDF text extraction requires a unipdf license (UNIDOC_LICENSE_API_KEY, or UNIDOC_LICENSE_KEY with UNIDOC_CUSTOMER_NAME)")

// License selects how unipdf is licensed. MeteredKey wins when both are set.
type License struct {
	MeteredKey   string // API key from the unidoc cloud dashboard
	OfflineKey   string // offline license key contents
	CustomerName string // customer name the offline key was issued to
}

var (
	licenseOnce sync.Once
	licenseErr  error
)

// SetUniPDFLicense installs the unipdf license. Only the first call with a
// key has effect; later calls return its result.
func SetUniPDFLicense(l License) error {
	if l.MeteredKey == "" && l.OfflineKey == "" {
		return nil
	}
	licenseOnce.Do(func() {
		switch {
		case l.MeteredKey != "":
			licenseErr = license.SetMeteredKey(l.MeteredKey)
		case l.OfflineKey != "":
			licenseErr = license.SetLicenseKey(l.OfflineKey, l.CustomerName)
		}
	})
	return licenseErr
}

// UniPDFLicensed reports whether a unipdf license is loaded.
func UniPDFLicensed() bool {
	key := license.GetLicenseKey()
	return key != nil && key.IsLicensed()
}

// UniPDF opens documents with unipdf.
type UniPDF struct{}

// Open parses data. Encrypted documents are tried with the empty password.
func (UniPDF) Open(data []byte) (PDFDocument, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load PDF: %w", err)
	}

	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return nil, fmt.Errorf("failed to check encryption: %w", err)
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, fmt.Errorf("encrypted PDF requires a password")
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	return &uniDocument{reader: reader, numPages: numPages}, nil
}

type uniDocument struct {
	reader   *model.PdfReader
	numPages int
}

func (d *uniDocument) NumPages() int { return d.numPages }

func (d *uniDocument) PageText(n int) (string, error) {
	if !UniPDFLicensed() {
		return "", ErrPDFUnlicensed
	}
	page, err := d.reader.GetPage(n)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", licenseError(err)
	}
	text, err := ex.ExtractText()
	if err != nil {
		return "", licenseError(err)
	}
	return text, nil
}

// licenseError maps unipdf's license refusals onto ErrPDFUnlicensed.
func licenseError(err error) error {
	if strings.Contains(err.Error(), "license") {
		return fmt.Errorf("%w: %v", ErrPDFUnlicensed, err)
	}
	return err
}

func (d *uniDocument) RenderPage(n int, dpi int) (image.Image, error) {
	page, err := d.reader.GetPage(n)
	if err != nil {
		return nil, err
	}
	box, err := page.GetMediaBox()
	if err != nil {
		return nil, fmt.Errorf("page %d media box: %w", n, err)
	}

	device := render.NewImageDevice()
	// PDF user space is 72 units per inch
	device.OutputWidth = int(box.Width() * float64(dpi) / 72)
	return device.Render(page)
}
