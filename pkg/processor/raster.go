package processor

import (
	"image"
	"image/color"
)

// toGray converts any image to 8-bit grayscale using the standard
// luminance weights.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := (299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8(lum)})
		}
	}
	return out
}

// boxBlur applies a mean filter of the given radius (radius 2 is a 5x5
// kernel), using a running sum per row pair for linear cost.
func boxBlur(src *image.Gray, radius int) *image.Gray {
	if radius < 1 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]int, w*h)
	out := image.NewGray(image.Rect(0, 0, w, h))

	// horizontal pass
	for y := 0; y < h; y++ {
		sum := 0
		for x := -radius; x <= radius; x++ {
			sum += int(src.GrayAt(clampInt(x, 0, w-1), y).Y)
		}
		for x := 0; x < w; x++ {
			tmp[y*w+x] = sum
			sum -= int(src.GrayAt(clampInt(x-radius, 0, w-1), y).Y)
			sum += int(src.GrayAt(clampInt(x+radius+1, 0, w-1), y).Y)
		}
	}

	// vertical pass
	k := 2*radius + 1
	norm := k * k
	for x := 0; x < w; x++ {
		sum := 0
		for y := -radius; y <= radius; y++ {
			sum += tmp[clampInt(y, 0, h-1)*w+x]
		}
		for y := 0; y < h; y++ {
			out.SetGray(x, y, color.Gray{Y: uint8(sum / norm)})
			sum -= tmp[clampInt(y-radius, 0, h-1)*w+x]
			sum += tmp[clampInt(y+radius+1, 0, h-1)*w+x]
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// otsuThreshold picks the global threshold maximizing between-class
// variance of the gray histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// binarize maps pixels above the threshold to 255 (or below, when invert).
func binarize(img *image.Gray, threshold uint8, invert bool) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			on := img.GrayAt(x, y).Y > threshold
			if invert {
				on = !on
			}
			if on {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// sobelMagnitude computes |Gx|+|Gy| per pixel, clamped to 255.
func sobelMagnitude(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	at := func(x, y int) int {
		return int(img.GrayAt(clampInt(x, 0, w-1), clampInt(y, 0, h-1)).Y)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			m := abs(gx) + abs(gy)
			if m > 255 {
				m = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(m)})
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// dilate grows 255 regions by one pixel (4-connectivity), iterations times.
func dilate(img *image.Gray, iterations int) *image.Gray {
	cur := img
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for it := 0; it < iterations; it++ {
		next := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if cur.GrayAt(x, y).Y > 0 ||
					(x > 0 && cur.GrayAt(x-1, y).Y > 0) ||
					(x < w-1 && cur.GrayAt(x+1, y).Y > 0) ||
					(y > 0 && cur.GrayAt(x, y-1).Y > 0) ||
					(y < h-1 && cur.GrayAt(x, y+1).Y > 0) {
					next.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		cur = next
	}
	return cur
}

// erode shrinks 255 regions by one pixel (4-connectivity), iterations times.
func erode(img *image.Gray, iterations int) *image.Gray {
	cur := img
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for it := 0; it < iterations; it++ {
		next := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if cur.GrayAt(x, y).Y > 0 &&
					(x == 0 || cur.GrayAt(x-1, y).Y > 0) &&
					(x == w-1 || cur.GrayAt(x+1, y).Y > 0) &&
					(y == 0 || cur.GrayAt(x, y-1).Y > 0) &&
					(y == h-1 || cur.GrayAt(x, y+1).Y > 0) {
					next.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		cur = next
	}
	return cur
}

// closeGaps fills small holes: dilate then erode.
func closeGaps(img *image.Gray, iterations int) *image.Gray {
	return erode(dilate(img, iterations), iterations)
}
