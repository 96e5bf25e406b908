package processor

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestOrderCorners(t *testing.T) {
	shuffled := [4]point{
		{X: 700, Y: 520}, // br
		{X: 100, Y: 80},  // tl
		{X: 100, Y: 520}, // bl
		{X: 700, Y: 80},  // tr
	}

	got := orderCorners(shuffled)
	want := [4]point{{100, 80}, {700, 80}, {700, 520}, {100, 520}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("corner %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDetectDocumentQuadFindsRectangle(t *testing.T) {
	scene := documentScene(800, 600)

	quad, ok := detectDocumentQuad(scene)
	if !ok {
		t.Fatal("expected a quad on a clean document scene")
	}

	want := [4]point{{100, 75}, {700, 75}, {700, 525}, {100, 525}}
	const tol = 12.0
	for i := range want {
		if math.Abs(quad[i].X-want[i].X) > tol || math.Abs(quad[i].Y-want[i].Y) > tol {
			t.Errorf("corner %d: got (%.1f, %.1f), want near (%.0f, %.0f)",
				i, quad[i].X, quad[i].Y, want[i].X, want[i].Y)
		}
	}
}

func TestDetectDocumentQuadRejectsUniformFrame(t *testing.T) {
	flat := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	fillRect(flat, 0, 0, 640, 480, color.NRGBA{R: 200, G: 200, B: 200, A: 255})

	if _, ok := detectDocumentQuad(flat); ok {
		t.Fatal("uniform frame must not yield a document quad")
	}
}

func TestShoelaceArea(t *testing.T) {
	square := []point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if got := shoelaceArea(square); math.Abs(got-100) > 1e-9 {
		t.Errorf("square area: got %f, want 100", got)
	}
	// traversal direction must not matter
	reversed := []point{{0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if got := shoelaceArea(reversed); math.Abs(got-100) > 1e-9 {
		t.Errorf("reversed square area: got %f, want 100", got)
	}
}

func TestApproxPolygonCollapsesRectangle(t *testing.T) {
	// dense boundary of a 100x60 rectangle, one point per pixel step
	var contour []point
	for x := 0; x <= 100; x++ {
		contour = append(contour, point{float64(x), 0})
	}
	for y := 1; y <= 60; y++ {
		contour = append(contour, point{100, float64(y)})
	}
	for x := 99; x >= 0; x-- {
		contour = append(contour, point{float64(x), 60})
	}
	for y := 59; y >= 1; y-- {
		contour = append(contour, point{0, float64(y)})
	}

	approx := approxPolygon(contour, 0.02*arcLength(contour))
	if len(approx) != 4 {
		t.Fatalf("expected 4 vertices, got %d: %+v", len(approx), approx)
	}
}

func TestIsConvex(t *testing.T) {
	convex := [4]point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !isConvex(convex) {
		t.Error("square reported non-convex")
	}
	// dart shape: one vertex pulled inside
	concave := [4]point{{0, 0}, {10, 0}, {2, 2}, {0, 10}}
	if isConvex(concave) {
		t.Error("dart shape reported convex")
	}
}
