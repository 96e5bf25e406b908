package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// SegmentResult is a background-suppressed copy of the input plus an
// optional foreground mask (255 = subject). The mask, when present, matches
// the input dimensions.
type SegmentResult struct {
	Image image.Image
	Mask  *image.Gray
}

// Segmenter removes the background from a photographed document. The
// pipeline treats segmentation as best-effort: any error passes the
// original image through.
type Segmenter interface {
	Name() string
	Remove(ctx context.Context, img image.Image, encoded []byte) (SegmentResult, error)
}

// HTTPSegmenter posts the original payload to a learned segmentation
// service (rembg-style API: raw image in, PNG with alpha out) and
// composites the cutout over white.
type HTTPSegmenter struct {
	url    string
	client *http.Client
}

func NewHTTPSegmenter(url string) *HTTPSegmenter {
	return &HTTPSegmenter{
		url:    url,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *HTTPSegmenter) Name() string { return "http" }

func (s *HTTPSegmenter) Remove(ctx context.Context, img image.Image, encoded []byte) (SegmentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(encoded))
	if err != nil {
		return SegmentResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return SegmentResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return SegmentResult{}, fmt.Errorf("segmentation service returned %d", resp.StatusCode)
	}

	cut, _, err := image.Decode(resp.Body)
	if err != nil {
		return SegmentResult{}, fmt.Errorf("decode segmentation response: %w", err)
	}

	// The service may resize; reproject onto the original dimensions.
	b := img.Bounds()
	if cut.Bounds().Dx() != b.Dx() || cut.Bounds().Dy() != b.Dy() {
		cut = imaging.Resize(cut, b.Dx(), b.Dy(), imaging.Lanczos)
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), cut, cut.Bounds().Min, draw.Over)

	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	cutN := imaging.Clone(cut)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if cutN.NRGBAAt(x, y).A >= 128 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return SegmentResult{Image: out, Mask: mask}, nil
}

// borderSegmenter is the built-in fallback: it estimates the background
// color from the frame border and floods inward, suppressing every pixel
// reachable from the border within a color distance threshold. Works for
// the common case of a document photographed against a roughly uniform
// surface; anything harder needs the model-backed segmenter.
type borderSegmenter struct {
	thresholdSq float64
}

func NewBorderSegmenter() Segmenter {
	// 42 per-channel euclidean units, squared
	return &borderSegmenter{thresholdSq: 42 * 42}
}

func (s *borderSegmenter) Name() string { return "border-flood" }

const floodWorkingEdge = 1000

func (s *borderSegmenter) Remove(_ context.Context, img image.Image, _ []byte) (SegmentResult, error) {
	full := imaging.Clone(img)
	fb := full.Bounds()
	if fb.Dx() < 8 || fb.Dy() < 8 {
		return SegmentResult{Image: full}, nil
	}

	// Flood at a reduced scale; the mask is upsampled afterwards.
	work := full
	if fb.Dx() > floodWorkingEdge || fb.Dy() > floodWorkingEdge {
		if fb.Dx() >= fb.Dy() {
			work = imaging.Resize(full, floodWorkingEdge, 0, imaging.Box)
		} else {
			work = imaging.Resize(full, 0, floodWorkingEdge, imaging.Box)
		}
	}
	wb := work.Bounds()
	w, h := wb.Dx(), wb.Dy()

	bg := borderMeanColor(work)
	background := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		idx := y*w + x
		if background[idx] {
			return
		}
		if colorDistSq(work.NRGBAAt(x, y), bg) > s.thresholdSq {
			return
		}
		background[idx] = true
		queue = append(queue, idx)
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := idx%w, idx/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	workMask := image.NewGray(image.Rect(0, 0, w, h))
	fgCount := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !background[y*w+x] {
				workMask.SetGray(x, y, color.Gray{Y: 255})
				fgCount++
			}
		}
	}

	// A flood that ate (almost) everything or nothing tells us the frame
	// has no separable background; leave the image untouched.
	frac := float64(fgCount) / float64(w*h)
	if frac < 0.02 || frac > 0.98 {
		return SegmentResult{Image: full}, nil
	}

	mask := workMask
	if wb != fb {
		mask = toGray(imaging.Resize(workMask, fb.Dx(), fb.Dy(), imaging.Box))
	}

	out := imaging.Clone(full)
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < fb.Dy(); y++ {
		for x := 0; x < fb.Dx(); x++ {
			if mask.GrayAt(x, y).Y < 128 {
				out.SetNRGBA(x, y, white)
			}
		}
	}
	return SegmentResult{Image: out, Mask: mask}, nil
}

func borderMeanColor(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var rSum, gSum, bSum, n uint64

	add := func(x, y int) {
		c := img.NRGBAAt(x, y)
		rSum += uint64(c.R)
		gSum += uint64(c.G)
		bSum += uint64(c.B)
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}
	if n == 0 {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.NRGBA{
		R: uint8(rSum / n),
		G: uint8(gSum / n),
		B: uint8(bSum / n),
		A: 255,
	}
}

func colorDistSq(a, b color.NRGBA) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return dr*dr + dg*dg + db*db
}
