package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBorderSegmenterSuppressesBackground(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	fillRect(img, 0, 0, 200, 200, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
	subject := color.NRGBA{R: 20, G: 40, B: 180, A: 255}
	fillRect(img, 60, 60, 140, 140, subject)

	res, err := NewBorderSegmenter().Remove(context.Background(), img, nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if res.Mask == nil {
		t.Fatal("expected a foreground mask")
	}
	if res.Mask.GrayAt(100, 100).Y != 255 {
		t.Error("subject center missing from mask")
	}
	if res.Mask.GrayAt(5, 5).Y != 0 {
		t.Error("border pixel wrongly marked foreground")
	}

	out := res.Image.(*image.NRGBA)
	if got := out.NRGBAAt(100, 100); got != subject {
		t.Errorf("subject pixel altered: %+v", got)
	}
	if got := out.NRGBAAt(5, 5); got.R != 255 || got.G != 255 || got.B != 255 {
		t.Errorf("background not whitened: %+v", got)
	}
}

func TestBorderSegmenterLeavesInseparableFrameAlone(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	fillRect(img, 0, 0, 100, 100, color.NRGBA{R: 30, G: 60, B: 90, A: 255})

	res, err := NewBorderSegmenter().Remove(context.Background(), img, nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if res.Mask != nil {
		t.Error("uniform frame should not produce a mask")
	}
	if got := res.Image.(*image.NRGBA).NRGBAAt(50, 50); got.R != 30 {
		t.Errorf("pixels must be untouched, got %+v", got)
	}
}

func TestHTTPSegmenterCompositesCutout(t *testing.T) {
	// rembg-style endpoint: returns a PNG cutout with alpha
	cutout := image.NewNRGBA(image.Rect(0, 0, 200, 160))
	fillRect(cutout, 50, 40, 150, 120, color.NRGBA{R: 180, G: 30, B: 30, A: 255})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, cutout)
	}))
	defer srv.Close()

	original := image.NewNRGBA(image.Rect(0, 0, 200, 160))
	fillRect(original, 0, 0, 200, 160, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
	var payload bytes.Buffer
	if err := png.Encode(&payload, original); err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	res, err := NewHTTPSegmenter(srv.URL).Remove(context.Background(), original, payload.Bytes())
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	out := res.Image.(*image.NRGBA)
	if got := out.NRGBAAt(100, 80); got.R != 180 {
		t.Errorf("cutout pixel: got %+v, want red subject", got)
	}
	if got := out.NRGBAAt(5, 5); got.R != 255 || got.G != 255 || got.B != 255 {
		t.Errorf("transparent region should composite to white, got %+v", got)
	}
	if res.Mask == nil || res.Mask.GrayAt(100, 80).Y != 255 || res.Mask.GrayAt(5, 5).Y != 0 {
		t.Error("mask does not follow response alpha")
	}
}

func TestHTTPSegmenterPropagatesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSegmenter(srv.URL).Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)), []byte("x"))
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
}
