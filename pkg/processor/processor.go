// Package processor turns a photographed document into a print-ready page
// image: background removal, document reframing, enhancement, and
// normalization to a uniform density.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

var (
	// ErrCorruptedImage marks a payload that cannot be decoded at all.
	ErrCorruptedImage = errors.New("image data cannot be decoded")
	// ErrBatchUnrecoverable is raised by callers when every image of a
	// batch failed and nothing is left to assemble.
	ErrBatchUnrecoverable = errors.New("no image in the batch survived processing")
)

const (
	DefaultTargetLongEdge = 2339 // ~A4 long edge at 200dpi
	DefaultJPEGQuality    = 92
)

type Options struct {
	// Segmenter handles background removal; nil selects the built-in
	// border-flood fallback.
	Segmenter      Segmenter
	TargetLongEdge int
	JPEGQuality    int
}

type Pipeline struct {
	segmenter  Segmenter
	targetLong int
	quality    int
}

func NewPipeline(opts Options) *Pipeline {
	seg := opts.Segmenter
	if seg == nil {
		seg = NewBorderSegmenter()
	}
	target := opts.TargetLongEdge
	if target <= 0 {
		target = DefaultTargetLongEdge
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return &Pipeline{segmenter: seg, targetLong: target, quality: quality}
}

// Processed is one finished page: JPEG-encoded at the normalized density,
// with a short note describing how the page was framed.
type Processed struct {
	Name   string
	JPEG   []byte
	Width  int
	Height int
	Note   string
}

// Process runs the full per-image pipeline. Only an undecodable payload is
// a hard failure; every later stage degrades to a safer framing of the
// same image.
func (p *Pipeline) Process(ctx context.Context, data []byte, name string) (Processed, error) {
	img, format, err := decodeImage(data)
	if err != nil {
		return Processed{}, fmt.Errorf("%s: %w", name, ErrCorruptedImage)
	}

	seg := SegmentResult{Image: img}
	if res, err := p.segmenter.Remove(ctx, img, data); err != nil {
		logger.WarnCF("processor", "Background removal failed, using original", map[string]interface{}{
			"image":     name,
			"segmenter": p.segmenter.Name(),
			"error":     err.Error(),
		})
	} else {
		seg = res
	}

	working := imaging.Clone(seg.Image)
	note := "full frame"
	if quad, ok := detectDocumentQuad(working); ok {
		if warped := warpPerspective(working, quad); warped != nil {
			working = warped
			note = "document reframed"
		}
	}
	if note == "full frame" && seg.Mask != nil {
		if cropped, ok := cropToForeground(working, seg.Mask); ok {
			working = cropped
			note = "cropped to content"
		}
	}

	working = enhance(working)
	working = normalizeResolution(working, p.targetLong)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, working, &jpeg.Options{Quality: p.quality}); err != nil {
		return Processed{}, fmt.Errorf("encode %s: %w", name, err)
	}

	b := working.Bounds()
	logger.DebugCF("processor", "Image processed", map[string]interface{}{
		"image":   name,
		"format":  format,
		"framing": note,
		"width":   b.Dx(),
		"height":  b.Dy(),
	})
	return Processed{
		Name:   name,
		JPEG:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Note:   note,
	}, nil
}
