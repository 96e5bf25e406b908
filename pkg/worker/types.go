// Package worker turns a ready upload directory into a finished document.
// It runs either in-process behind the Invoker interface or as a separate
// HTTP service speaking the same request/response contract.
package worker

import (
	"errors"

	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/pdf"
	"github.com/snapdoc/snapdoc/pkg/processor"
)

// Request identifies one batch: whose it is and where the images sit.
type Request struct {
	UserKey  string `json:"userId"`
	ImageDir string `json:"imageDir"`
}

// Response reports the outcome. Error carries a stable code from the
// taxonomy below; everything else is advisory detail for the collector's
// delivery message.
type Response struct {
	Success     bool     `json:"success"`
	PDFPath     string   `json:"pdfPath,omitempty"`
	PreviewPath string   `json:"previewPath,omitempty"`
	PageCount   int      `json:"pageCount,omitempty"`
	FileSize    string   `json:"fileSize,omitempty"`
	SizeBytes   int64    `json:"sizeBytes,omitempty"`
	DurationMS  int64    `json:"durationMs,omitempty"`
	Ordering    string   `json:"ordering,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Stable error codes carried on the wire.
const (
	CodeHandshakeTimeout   = "handshake_timeout"
	CodeBatchUnrecoverable = "batch_unrecoverable"
	CodeBuildFailure       = "build_failure"
	CodeSizeExceeded       = "size_exceeded"
	CodeInternal           = "internal"
)

// ErrInternal is the catch-all for failures outside the taxonomy.
var ErrInternal = errors.New("internal worker failure")

// CodeForError maps a batch failure onto its wire code.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, handshake.ErrTimeout):
		return CodeHandshakeTimeout
	case errors.Is(err, processor.ErrBatchUnrecoverable):
		return CodeBatchUnrecoverable
	case errors.Is(err, pdf.ErrSizeExceeded):
		return CodeSizeExceeded
	case errors.Is(err, pdf.ErrBuildFailure):
		return CodeBuildFailure
	default:
		return CodeInternal
	}
}

// ErrorForCode is the inverse mapping, used by the collector to restore a
// sentinel it can match with errors.Is after a trip over HTTP.
func ErrorForCode(code string) error {
	switch code {
	case "":
		return nil
	case CodeHandshakeTimeout:
		return handshake.ErrTimeout
	case CodeBatchUnrecoverable:
		return processor.ErrBatchUnrecoverable
	case CodeSizeExceeded:
		return pdf.ErrSizeExceeded
	case CodeBuildFailure:
		return pdf.ErrBuildFailure
	default:
		return ErrInternal
	}
}
