package pdf

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func TestPreviewRendersFirstPage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "output.pdf")
	pages := []Page{{Name: "img_001.jpg", JPEG: jpegPage(t, 300, 420, color.NRGBA{R: 220, G: 220, B: 220, A: 255})}}
	if _, err := Assemble(pages, out, testMeta(), 0); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	data, err := Preview(out)
	if err != nil {
		t.Skipf("renderer unavailable on this host: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("preview is not a decodable image: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Fatal("preview has no pixels")
	}
}

func TestPreviewFailsOnMissingFile(t *testing.T) {
	if _, err := Preview(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
