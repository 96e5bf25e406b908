package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// fillRect paints an axis-aligned rectangle onto img.
func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// documentScene builds a photo-like frame: light background with a darker
// document rectangle occupying the middle.
func documentScene(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fillRect(img, 0, 0, w, h, color.NRGBA{R: 235, G: 235, B: 230, A: 255})
	fillRect(img, w/8, h/8, w*7/8, h*7/8, color.NRGBA{R: 70, G: 75, B: 80, A: 255})
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestProcessRejectsCorruptData(t *testing.T) {
	p := NewPipeline(Options{TargetLongEdge: 400})

	_, err := p.Process(context.Background(), []byte("definitely not an image"), "img_001.jpg")
	if !errors.Is(err, ErrCorruptedImage) {
		t.Fatalf("expected ErrCorruptedImage, got %v", err)
	}
}

func TestProcessProducesNormalizedJPEG(t *testing.T) {
	p := NewPipeline(Options{TargetLongEdge: 600, JPEGQuality: 85})
	data := encodeJPEG(t, documentScene(1000, 700))

	out, err := p.Process(context.Background(), data, "img_001.jpg")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out.JPEG) == 0 {
		t.Fatal("no encoded page produced")
	}

	decoded, _, err := image.Decode(bytes.NewReader(out.JPEG))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	b := decoded.Bounds()
	long := b.Dx()
	if b.Dy() > long {
		long = b.Dy()
	}
	if long != 600 {
		t.Errorf("expected long edge 600, got %dx%d", b.Dx(), b.Dy())
	}
	if out.Width != b.Dx() || out.Height != b.Dy() {
		t.Errorf("reported dims %dx%d disagree with payload %dx%d",
			out.Width, out.Height, b.Dx(), b.Dy())
	}
	if out.Note == "" {
		t.Error("expected a framing note")
	}
}

func TestProcessHandlesPNG(t *testing.T) {
	p := NewPipeline(Options{TargetLongEdge: 300})

	var buf bytes.Buffer
	if err := png.Encode(&buf, documentScene(400, 300)); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}

	if _, err := p.Process(context.Background(), buf.Bytes(), "img_002.png"); err != nil {
		t.Fatalf("Process png: %v", err)
	}
}

func TestNormalizeResolution(t *testing.T) {
	wide := image.NewNRGBA(image.Rect(0, 0, 500, 200))
	out := normalizeResolution(wide, 1000)
	if out.Bounds().Dx() != 1000 {
		t.Errorf("upscale: expected width 1000, got %d", out.Bounds().Dx())
	}

	tall := image.NewNRGBA(image.Rect(0, 0, 200, 500))
	out = normalizeResolution(tall, 100)
	if out.Bounds().Dy() != 100 {
		t.Errorf("downscale: expected height 100, got %d", out.Bounds().Dy())
	}
}
