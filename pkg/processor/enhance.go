package processor

import (
	"image"

	"github.com/disintegration/imaging"
)

// enhance applies the scan grade in a fixed order: adaptive contrast,
// sharpening, mild denoising, white balance. Each step is gated or bounded
// so an already-good image passes through essentially unchanged and
// repeated runs converge instead of compounding.
func enhance(img *image.NRGBA) *image.NRGBA {
	out, stretched := stretchContrast(img)
	if stretched {
		// narrow histograms also benefit from a gentle midtone push
		out = imaging.AdjustSigmoid(out, 0.5, 2.0)
	}
	out = imaging.Sharpen(out, 0.6)
	out = imaging.Blur(out, 0.4)
	out = grayWorldBalance(out)
	return out
}

// stretchContrast linearly remaps the 1st..99th luminance percentiles to
// full range. Skipped when the histogram already spans (nothing to gain)
// or is nearly flat (stretching would amplify noise).
func stretchContrast(img *image.NRGBA) (*image.NRGBA, bool) {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return img, false
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			lum := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
			hist[lum]++
		}
	}

	lo := percentile(hist[:], total, 0.01)
	hi := percentile(hist[:], total, 0.99)
	spread := hi - lo
	if spread >= 200 || spread < 10 {
		return img, false
	}

	var lut [256]uint8
	for v := 0; v < 256; v++ {
		mapped := (v - lo) * 255 / spread
		if mapped < 0 {
			mapped = 0
		} else if mapped > 255 {
			mapped = 255
		}
		lut[v] = uint8(mapped)
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			c.R = lut[c.R]
			c.G = lut[c.G]
			c.B = lut[c.B]
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out, true
}

func percentile(hist []int, total int, p float64) int {
	target := int(float64(total) * p)
	cum := 0
	for v, c := range hist {
		cum += c
		if cum >= target {
			return v
		}
	}
	return len(hist) - 1
}

// grayWorldBalance nudges channel gains toward a neutral average. Gains
// are clamped to a mild band and the whole step is skipped when the cast
// is within a few percent, so neutral images stay untouched.
func grayWorldBalance(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return img
	}

	var rSum, gSum, bSum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			rSum += uint64(c.R)
			gSum += uint64(c.G)
			bSum += uint64(c.B)
		}
	}
	rMean := float64(rSum) / float64(total)
	gMean := float64(gSum) / float64(total)
	bMean := float64(bSum) / float64(total)
	gray := (rMean + gMean + bMean) / 3
	if gray < 1 {
		return img
	}

	gainR := clampGain(gray / nonZero(rMean))
	gainG := clampGain(gray / nonZero(gMean))
	gainB := clampGain(gray / nonZero(bMean))
	if within(gainR, 0.03) && within(gainG, 0.03) && within(gainB, 0.03) {
		return img
	}

	var lutR, lutG, lutB [256]uint8
	for v := 0; v < 256; v++ {
		lutR[v] = clamp8(float64(v) * gainR)
		lutG[v] = clamp8(float64(v) * gainG)
		lutB[v] = clamp8(float64(v) * gainB)
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			c.R = lutR[c.R]
			c.G = lutG[c.G]
			c.B = lutB[c.B]
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

func nonZero(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

func clampGain(g float64) float64 {
	if g < 0.85 {
		return 0.85
	}
	if g > 1.2 {
		return 1.2
	}
	return g
}

func within(gain, tol float64) bool {
	return gain > 1-tol && gain < 1+tol
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// normalizeResolution scales the image so its longer edge hits target,
// preserving aspect ratio. Both upscales and downscales, so every page
// lands at the same density.
func normalizeResolution(img image.Image, target int) *image.NRGBA {
	b := img.Bounds()
	if target <= 0 || (b.Dx() == target && b.Dy() <= target) || (b.Dy() == target && b.Dx() <= target) {
		return imaging.Clone(img)
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, target, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, target, imaging.Lanczos)
}
