package processor

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

type point struct {
	X, Y float64
}

const (
	detectWorkingHeight = 800

	// a candidate document must cover 5%..98% of the frame
	minQuadAreaFrac = 0.05
	maxQuadAreaFrac = 0.98

	// corner angles outside this band mean a degenerate quad
	minCornerAngleDeg = 20.0
	maxCornerAngleDeg = 160.0
)

// detectDocumentQuad looks for the photographed document's outline and
// returns its four corners ordered TL, TR, BR, BL in full-resolution
// coordinates. Detection runs on a downscaled copy; several binarization
// strategies and approximation tolerances are tried before giving up.
func detectDocumentQuad(img image.Image) ([4]point, bool) {
	b := img.Bounds()
	scale := 1.0
	work := img
	if b.Dy() > detectWorkingHeight {
		scale = float64(b.Dy()) / float64(detectWorkingHeight)
		work = imaging.Resize(img, 0, detectWorkingHeight, imaging.Box)
	}

	gray := toGray(work)
	blurred := boxBlur(gray, 2)
	wb := blurred.Bounds()
	frameArea := float64(wb.Dx() * wb.Dy())

	for _, mask := range candidateMasks(blurred) {
		if quad, ok := bestQuadInMask(mask, frameArea); ok {
			for i := range quad {
				quad[i].X *= scale
				quad[i].Y *= scale
			}
			return orderCorners(quad), true
		}
	}
	return [4]point{}, false
}

// candidateMasks produces binary images to hunt contours in, roughly in
// order of how often each strategy wins on real document photos.
func candidateMasks(blurred *image.Gray) []*image.Gray {
	otsu := otsuThreshold(blurred)
	masks := []*image.Gray{
		closeGaps(binarize(blurred, otsu, false), 2),
		closeGaps(binarize(blurred, otsu, true), 2),
	}
	grad := sobelMagnitude(blurred)
	for _, t := range []uint8{40, 70, 100} {
		masks = append(masks, dilate(binarize(grad, t, false), 2))
	}
	return masks
}

func bestQuadInMask(mask *image.Gray, frameArea float64) ([4]point, bool) {
	contours := findContours(mask, 12)
	for _, contour := range contours {
		area := math.Abs(shoelaceArea(contour))
		if area < minQuadAreaFrac*frameArea || area > maxQuadAreaFrac*frameArea {
			continue
		}
		perimeter := arcLength(contour)
		for _, epsFrac := range []float64{0.02, 0.03, 0.04, 0.05, 0.06} {
			approx := approxPolygon(contour, epsFrac*perimeter)
			if len(approx) != 4 {
				continue
			}
			quad := [4]point{approx[0], approx[1], approx[2], approx[3]}
			if !isConvex(quad) || !anglesValid(quad) {
				continue
			}
			return quad, true
		}
	}
	return [4]point{}, false
}

// findContours traces the boundaries of 255-regions, returning up to
// maxContours contours sorted largest-area first.
func findContours(bin *image.Gray, maxContours int) [][]point {
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	isFg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && bin.GrayAt(x, y).Y > 0
	}
	seen := make([]bool, w*h)

	var contours [][]point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !isFg(x, y) || isFg(x-1, y) || seen[y*w+x] {
				continue
			}
			boundary := traceBoundary(isFg, x, y, w, h)
			for _, p := range boundary {
				seen[int(p.Y)*w+int(p.X)] = true
			}
			if len(boundary) >= 8 {
				contours = append(contours, boundary)
			}
		}
	}

	// largest first; a document dominates its frame
	sortContoursByArea(contours)
	if len(contours) > maxContours {
		contours = contours[:maxContours]
	}
	return contours
}

// traceBoundary follows a region boundary with Moore neighbor tracing,
// starting at (sx, sy) which must have background to its west.
func traceBoundary(isFg func(int, int) bool, sx, sy, w, h int) []point {
	dirs := [8][2]int{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}}

	start := image.Pt(sx, sy)
	cur := start
	back := image.Pt(sx-1, sy)
	contour := []point{{float64(sx), float64(sy)}}

	maxSteps := 4 * (w + h) * 8
	if limit := w * h; maxSteps > limit {
		maxSteps = limit
	}
	for step := 0; step < maxSteps; step++ {
		// locate back among cur's neighbors
		backIdx := 0
		for i, d := range dirs {
			if cur.X+d[0] == back.X && cur.Y+d[1] == back.Y {
				backIdx = i
				break
			}
		}

		found := false
		prev := back
		for i := 1; i <= 8; i++ {
			d := dirs[(backIdx+i)%8]
			n := image.Pt(cur.X+d[0], cur.Y+d[1])
			if isFg(n.X, n.Y) {
				back = prev
				cur = n
				found = true
				break
			}
			prev = n
		}
		if !found {
			// isolated pixel
			return contour
		}
		if cur == start {
			break
		}
		contour = append(contour, point{float64(cur.X), float64(cur.Y)})
	}
	return contour
}

func sortContoursByArea(contours [][]point) {
	for i := 1; i < len(contours); i++ {
		for j := i; j > 0; j-- {
			if math.Abs(shoelaceArea(contours[j])) <= math.Abs(shoelaceArea(contours[j-1])) {
				break
			}
			contours[j], contours[j-1] = contours[j-1], contours[j]
		}
	}
}

func shoelaceArea(poly []point) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return sum / 2
}

func arcLength(poly []point) float64 {
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += distance(poly[i], poly[j])
	}
	return sum
}

func distance(a, b point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// approxPolygon reduces a closed contour to a polygon with the
// Douglas-Peucker tolerance eps. The contour is split at its first point
// and the point farthest from it, each chain simplified independently.
func approxPolygon(contour []point, eps float64) []point {
	if len(contour) < 4 {
		return contour
	}

	farIdx := 1
	farDist := 0.0
	for i := 1; i < len(contour); i++ {
		if d := distance(contour[0], contour[i]); d > farDist {
			farDist = d
			farIdx = i
		}
	}

	first := dpSimplify(contour[:farIdx+1], eps)
	secondRaw := append([]point{}, contour[farIdx:]...)
	secondRaw = append(secondRaw, contour[0])
	second := dpSimplify(secondRaw, eps)

	// drop the duplicated joints (far point ends chain one and starts chain
	// two; the start point closes chain two)
	out := append([]point{}, first...)
	if len(second) > 2 {
		out = append(out, second[1:len(second)-1]...)
	}
	return out
}

func dpSimplify(points []point, eps float64) []point {
	if len(points) < 3 {
		return points
	}
	a, b := points[0], points[len(points)-1]
	maxDist := 0.0
	maxIdx := 0
	for i := 1; i < len(points)-1; i++ {
		if d := pointSegmentDistance(points[i], a, b); d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist <= eps {
		return []point{a, b}
	}
	left := dpSimplify(points[:maxIdx+1], eps)
	right := dpSimplify(points[maxIdx:], eps)
	out := make([]point, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	out = append(out, right...)
	return out
}

func pointSegmentDistance(p, a, b point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return distance(p, point{a.X + t*dx, a.Y + t*dy})
}

func isConvex(quad [4]point) bool {
	sign := 0
	for i := 0; i < 4; i++ {
		a, b, c := quad[i], quad[(i+1)%4], quad[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			return false
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

func anglesValid(quad [4]point) bool {
	for i := 0; i < 4; i++ {
		prev := quad[(i+3)%4]
		cur := quad[i]
		next := quad[(i+1)%4]
		v1 := point{prev.X - cur.X, prev.Y - cur.Y}
		v2 := point{next.X - cur.X, next.Y - cur.Y}
		n1 := math.Hypot(v1.X, v1.Y)
		n2 := math.Hypot(v2.X, v2.Y)
		if n1 == 0 || n2 == 0 {
			return false
		}
		cos := (v1.X*v2.X + v1.Y*v2.Y) / (n1 * n2)
		cos = math.Max(-1, math.Min(1, cos))
		deg := math.Acos(cos) * 180 / math.Pi
		if deg < minCornerAngleDeg || deg > maxCornerAngleDeg {
			return false
		}
	}
	return true
}

// orderCorners arranges a quad as TL, TR, BR, BL: the top-left corner has
// the smallest x+y, the bottom-right the largest, and y-x separates
// top-right from bottom-left.
func orderCorners(quad [4]point) [4]point {
	var out [4]point
	minSum, maxSum := math.Inf(1), math.Inf(-1)
	minDiff, maxDiff := math.Inf(1), math.Inf(-1)
	for _, p := range quad {
		sum := p.X + p.Y
		diff := p.Y - p.X
		if sum < minSum {
			minSum = sum
			out[0] = p // TL
		}
		if sum > maxSum {
			maxSum = sum
			out[2] = p // BR
		}
		if diff < minDiff {
			minDiff = diff
			out[1] = p // TR
		}
		if diff > maxDiff {
			maxDiff = diff
			out[3] = p // BL
		}
	}
	return out
}
