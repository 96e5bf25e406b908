package processor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// minWarpEdge guards against degenerate quads producing unusable crops.
const minWarpEdge = 100

// warpPerspective maps the quad (TL, TR, BR, BL) onto an axis-aligned
// rectangle sized by the longest opposite edges. Returns nil when the quad
// is too small to be a document.
func warpPerspective(img image.Image, quad [4]point) *image.NRGBA {
	tl, tr, br, bl := quad[0], quad[1], quad[2], quad[3]

	widthBottom := distance(br, bl)
	widthTop := distance(tr, tl)
	heightRight := distance(tr, br)
	heightLeft := distance(tl, bl)

	outW := int(math.Round(math.Max(widthBottom, widthTop)))
	outH := int(math.Round(math.Max(heightRight, heightLeft)))
	if outW < minWarpEdge || outH < minWarpEdge {
		return nil
	}

	// keep runaway quads from allocating silly output sizes
	b := img.Bounds()
	if limit := 2 * maxInt(b.Dx(), b.Dy()); outW > limit || outH > limit {
		return nil
	}

	dst := [4]point{
		{0, 0},
		{float64(outW - 1), 0},
		{float64(outW - 1), float64(outH - 1)},
		{0, float64(outH - 1)},
	}
	h, ok := homography(dst, quad)
	if !ok {
		return nil
	}

	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		fy := float64(y)
		for x := 0; x < outW; x++ {
			fx := float64(x)
			den := h[6]*fx + h[7]*fy + 1
			if den == 0 {
				continue
			}
			sx := (h[0]*fx + h[1]*fy + h[2]) / den
			sy := (h[3]*fx + h[4]*fy + h[5]) / den
			out.SetNRGBA(x, y, bilinearSample(src, sx, sy))
		}
	}
	return out
}

// homography solves the 8-DOF projective transform taking src[i] to
// dst[i], returned as the first eight coefficients (h33 fixed at 1).
func homography(src, dst [4]point) ([8]float64, bool) {
	var m [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		m[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		m[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	// gaussian elimination with partial pivoting
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-10 {
			return [8]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			factor := m[row][col] / m[col][col]
			for k := col; k < 9; k++ {
				m[row][k] -= factor * m[col][k]
			}
		}
	}

	var h [8]float64
	for i := 0; i < 8; i++ {
		h[i] = m[i][8] / m[i][i]
	}
	return h, true
}

// bilinearSample reads img at fractional coordinates with edge clamping.
func bilinearSample(img *image.NRGBA, fx, fy float64) color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	fx = math.Max(0, math.Min(fx, float64(w-1)))
	fy = math.Max(0, math.Min(fy, float64(h-1)))

	x0 := int(fx)
	y0 := int(fy)
	x1 := minInt(x0+1, w-1)
	y1 := minInt(y0+1, h-1)
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	c00 := img.NRGBAAt(x0, y0)
	c10 := img.NRGBAAt(x1, y0)
	c01 := img.NRGBAAt(x0, y1)
	c11 := img.NRGBAAt(x1, y1)

	lerp := func(a, b uint8, t float64) float64 {
		return float64(a) + (float64(b)-float64(a))*t
	}
	blend := func(a, b, c, d uint8) uint8 {
		top := lerp(a, b, tx)
		bottom := lerp(c, d, tx)
		return uint8(math.Round(top + (bottom-top)*ty))
	}

	return color.NRGBA{
		R: blend(c00.R, c10.R, c01.R, c11.R),
		G: blend(c00.G, c10.G, c01.G, c11.G),
		B: blend(c00.B, c10.B, c01.B, c11.B),
		A: 255,
	}
}

// cropToForeground is the fallback framing when no document quad was
// found: crop to the segmentation mask's bounding box plus a small margin.
// Returns false when the mask is empty, covers nearly the whole frame, or
// is too small to be the subject.
func cropToForeground(img image.Image, mask *image.Gray) (*image.NRGBA, bool) {
	mb := mask.Bounds()
	minX, minY := mb.Max.X, mb.Max.Y
	maxX, maxY := mb.Min.X-1, mb.Min.Y-1
	for y := mb.Min.Y; y < mb.Max.Y; y++ {
		for x := mb.Min.X; x < mb.Max.X; x++ {
			if mask.GrayAt(x, y).Y >= 128 {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < minX || maxY < minY {
		return nil, false
	}

	frameW, frameH := mb.Dx(), mb.Dy()
	margin := maxInt(frameW, frameH) / 50
	minX = maxInt(minX-margin, 0)
	minY = maxInt(minY-margin, 0)
	maxX = minInt(maxX+margin, frameW-1)
	maxY = minInt(maxY+margin, frameH-1)

	boxW := maxX - minX + 1
	boxH := maxY - minY + 1
	boxFrac := float64(boxW*boxH) / float64(frameW*frameH)
	if boxFrac < 0.05 || boxFrac > 0.97 {
		return nil, false
	}

	rect := image.Rect(minX, minY, maxX+1, maxY+1)
	return imaging.Crop(img, rect), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
