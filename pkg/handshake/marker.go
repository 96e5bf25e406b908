// Package handshake implements the filesystem rendezvous between the
// collecting side and the processing side: a READY marker dropped next to a
// batch of images, discovered by bounded polling.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MarkerName is the readiness marker filename inside a batch directory.
const MarkerName = "READY.txt"

// ErrTimeout reports that the marker never appeared within the wait budget.
var ErrTimeout = errors.New("readiness marker did not appear in time")

// Marker is the parsed content of a readiness file. Token ties the marker
// to the trigger that wrote it; Count closes the batch at that many images.
// A zero Count means the batch is whatever is on disk (a bare marker is
// still a valid signal).
type Marker struct {
	Token string
	Count int
}

func markerPath(dir string) string {
	return filepath.Join(dir, MarkerName)
}

// Write drops the marker into dir via tmp+rename, so a poller can never
// observe a half-written file.
func Write(dir, token string, count int) error {
	path := markerPath(dir)
	tmp := path + ".tmp"
	body := fmt.Sprintf("%s %d\n", token, count)
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		return fmt.Errorf("write marker temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("place marker: %w", err)
	}
	return nil
}

// Read parses the marker in dir. A marker that exists but does not parse is
// returned as a zero Marker with no error: presence alone is meaningful.
func Read(dir string) (Marker, error) {
	data, err := os.ReadFile(markerPath(dir))
	if err != nil {
		return Marker{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return Marker{}, nil
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return Marker{Token: fields[0]}, nil
	}
	return Marker{Token: fields[0], Count: count}, nil
}

// Exists reports marker presence without parsing it.
func Exists(dir string) bool {
	_, err := os.Stat(markerPath(dir))
	return err == nil
}

// Await polls dir until the marker appears. It probes immediately, then at
// every interval, and gives up with ErrTimeout once timeout has elapsed.
// The two terminal states are marker-observed and deadline-exceeded;
// context cancellation surfaces as ctx.Err().
func Await(ctx context.Context, dir string, interval, timeout time.Duration) (Marker, error) {
	if m, err := Read(dir); err == nil {
		return m, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Marker{}, ctx.Err()
		case <-deadline.C:
			return Marker{}, ErrTimeout
		case <-ticker.C:
			if m, err := Read(dir); err == nil {
				return m, nil
			}
		}
	}
}

// Consume removes the marker if its token matches the one this run
// observed, and reports whether it deleted anything. A mismatched token
// means a newer batch re-armed the directory; that marker is left alone.
// A missing marker is not an error.
func Consume(dir, token string) (bool, error) {
	current, err := Read(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if token != "" && current.Token != "" && current.Token != token {
		return false, nil
	}
	if err := os.Remove(markerPath(dir)); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

// Remove deletes the marker unconditionally. Used when a user clears their
// session.
func Remove(dir string) error {
	if err := os.Remove(markerPath(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
