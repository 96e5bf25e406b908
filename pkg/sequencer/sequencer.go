// Package sequencer decides the page order of a batch. Three rules are
// tried in priority order and the first one that yields a strict total
// order wins; the arrival fallback always does, so ordering never fails.
package sequencer

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Page is one batch image with everything the ordering rules can use.
// SeqNo is the arrival position assigned at accept time.
type Page struct {
	Path         string
	StoredName   string
	SeqNo        int
	OriginalName string
	CaptureTime  time.Time
}

// Rule names which ordering rule produced the result, for logging.
type Rule string

const (
	RuleNumericName Rule = "numeric-name"
	RuleCaptureTime Rule = "capture-time"
	RuleArrival     Rule = "arrival"
)

// Order sorts pages by the highest-priority applicable rule and reports
// which one applied. The input slice is not modified.
func Order(pages []Page) ([]Page, Rule) {
	out := make([]Page, len(pages))
	copy(out, pages)
	if len(out) < 2 {
		return out, RuleArrival
	}

	if keys, ok := numericNameKeys(out); ok {
		sort.SliceStable(out, func(i, j int) bool {
			return keys[out[i].StoredName] < keys[out[j].StoredName]
		})
		return out, RuleNumericName
	}

	if captureTimesUsable(out) {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CaptureTime.Before(out[j].CaptureTime)
		})
		return out, RuleCaptureTime
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SeqNo < out[j].SeqNo
	})
	return out, RuleArrival
}

// numericNameKeys extracts the numeric token of every original filename.
// The rule only applies when every page has one and they are all distinct;
// any ambiguity falls through to the next rule.
func numericNameKeys(pages []Page) (map[string]int64, bool) {
	keys := make(map[string]int64, len(pages))
	seen := make(map[int64]bool, len(pages))
	for _, p := range pages {
		n, ok := numericToken(p.OriginalName)
		if !ok || seen[n] {
			return nil, false
		}
		seen[n] = true
		keys[p.StoredName] = n
	}
	return keys, true
}

// numericToken returns the first digit run in the filename, ignoring the
// extension ("scan_12_final.jpg" -> 12).
func numericToken(name string) (int64, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	start := -1
	for i, r := range base {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return parseDigits(base[start:i])
		}
	}
	if start >= 0 {
		return parseDigits(base[start:])
	}
	return 0, false
}

func parseDigits(s string) (int64, bool) {
	if len(s) > 18 {
		// implausible as a page number; treat as no token
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func captureTimesUsable(pages []Page) bool {
	seen := make(map[int64]bool, len(pages))
	for _, p := range pages {
		if p.CaptureTime.IsZero() {
			return false
		}
		key := p.CaptureTime.UnixNano()
		if seen[key] {
			return false
		}
		seen[key] = true
	}
	return true
}

// CaptureTimeOf reads the capture timestamp from the image's EXIF block.
// Zero time when the file has no usable metadata.
func CaptureTimeOf(path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}
	}
	tm, err := x.DateTime()
	if err != nil {
		return time.Time{}
	}
	return tm
}
