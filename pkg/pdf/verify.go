package pdf

import (
	"fmt"

	lpdf "github.com/ledongthuc/pdf"
)

// Verify re-opens a finished document with an independent reader and
// confirms it parses with the expected page count. Catches truncated or
// structurally broken output before it is published.
func Verify(path string, wantPages int) error {
	f, r, err := lpdf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: verify open: %v", ErrBuildFailure, err)
	}
	defer f.Close()

	if got := r.NumPage(); got != wantPages {
		return fmt.Errorf("%w: verify pages: got %d, want %d", ErrBuildFailure, got, wantPages)
	}
	return nil
}
