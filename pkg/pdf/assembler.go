// Package pdf lays processed page images out into a print-ready document.
// Assembly is atomic: the document is built in a temp file next to the
// final path, verified, then renamed into place.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

var (
	// ErrBuildFailure covers everything that keeps a structurally valid
	// document from reaching disk: encoder errors, unwritable output,
	// failed post-write verification.
	ErrBuildFailure = errors.New("pdf build failure")

	// ErrSizeExceeded means the finished document is over the configured
	// output cap. The oversized file is removed before returning.
	ErrSizeExceeded = errors.New("pdf size exceeded")
)

const (
	pageMargin = 36.0 // points
	footerBand = 28.0 // reserved strip under the image area
	footerFont = 9.0
)

// Page is one sequenced, processed image ready for placement.
type Page struct {
	Name string
	JPEG []byte
}

// Meta is stamped into the document info dictionary.
type Meta struct {
	Title   string
	Author  string
	Subject string
	Created time.Time
}

// Result describes the finished document.
type Result struct {
	Path      string
	PageCount int
	Size      int64
}

// Assemble builds a portrait A4 document with one image per page, scaled
// aspect-true so the longer dimension exactly spans the printable area and
// centered in both axes. maxBytes <= 0 disables the size cap.
func Assemble(pages []Page, outPath string, meta Meta, maxBytes int64) (Result, error) {
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("%w: no pages to place", ErrBuildFailure)
	}

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetTitle(meta.Title, true)
	doc.SetAuthor(meta.Author, true)
	doc.SetSubject(meta.Subject, true)
	doc.SetCreator("snapdoc", false)
	if !meta.Created.IsZero() {
		doc.SetCreationDate(meta.Created)
	}
	doc.SetAutoPageBreak(false, 0)
	doc.SetFooterFunc(func() {
		doc.SetY(-(footerBand + pageMargin) / 2)
		doc.SetFont("Helvetica", "", footerFont)
		doc.SetTextColor(120, 120, 120)
		doc.CellFormat(0, footerFont+2, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "C", false, 0, "")
	})

	pageW, pageH := doc.GetPageSize()
	printW := pageW - 2*pageMargin
	printH := pageH - 2*pageMargin - footerBand

	for i, p := range pages {
		label := fmt.Sprintf("page-%03d", i+1)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		info := doc.RegisterImageOptionsReader(label, opts, bytes.NewReader(p.JPEG))
		if doc.Err() {
			return Result{}, fmt.Errorf("%w: register %s: %v", ErrBuildFailure, p.Name, doc.Error())
		}

		scale := printW / info.Width()
		if s := printH / info.Height(); s < scale {
			scale = s
		}
		w := info.Width() * scale
		h := info.Height() * scale
		x := pageMargin + (printW-w)/2
		y := pageMargin + (printH-h)/2

		doc.AddPage()
		doc.ImageOptions(label, x, y, w, h, false, opts, 0, "")
		if doc.Err() {
			return Result{}, fmt.Errorf("%w: place %s: %v", ErrBuildFailure, p.Name, doc.Error())
		}
	}

	tmpPath := outPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: create output: %v", ErrBuildFailure, err)
	}
	if err := doc.Output(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("%w: write output: %v", ErrBuildFailure, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("%w: close output: %v", ErrBuildFailure, err)
	}

	st, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("%w: stat output: %v", ErrBuildFailure, err)
	}
	if maxBytes > 0 && st.Size() > maxBytes {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("%w: %d bytes over %d cap", ErrSizeExceeded, st.Size(), maxBytes)
	}

	if err := Verify(tmpPath, len(pages)); err != nil {
		os.Remove(tmpPath)
		return Result{}, err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return Result{}, fmt.Errorf("%w: publish output: %v", ErrBuildFailure, err)
	}

	logger.InfoCF("pdf", "Assembled document", map[string]interface{}{
		"path":  outPath,
		"pages": len(pages),
		"bytes": st.Size(),
	})
	return Result{Path: outPath, PageCount: len(pages), Size: st.Size()}, nil
}
