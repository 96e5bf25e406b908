// Package cleanup removes batch artifacts after delivery and sweeps up
// whatever crashed runs leave behind.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/manifest"
)

// Batch removes a consumed batch from an upload directory: images first,
// then the manifest, and the ready marker strictly last. A directory that
// still has its marker is therefore always a stale batch, never a fresh
// one missing files. Already-removed files are skipped, so the call is
// safe to repeat.
//
// The marker is only consumed when its token matches; a mismatch means a
// newer batch owns the directory and its marker is left alone.
func Batch(dir, token string, imageNames []string) error {
	for _, name := range imageNames {
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove image %s: %w", name, err)
		}
	}
	if err := manifest.Remove(dir); err != nil {
		return fmt.Errorf("remove manifest: %w", err)
	}

	consumed, err := handshake.Consume(dir, token)
	if err != nil {
		return fmt.Errorf("consume marker: %w", err)
	}
	logger.DebugCF("cleanup", "Batch removed", map[string]interface{}{
		"dir":             dir,
		"images":          len(imageNames),
		"marker_consumed": consumed,
	})
	return nil
}

// ScheduleOutputRemoval deletes a delivered document after the retention
// window. The returned timer lets the caller cancel on shutdown.
func ScheduleOutputRemoval(path string, after time.Duration) *time.Timer {
	return time.AfterFunc(after, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.WarnCF("cleanup", "Retention removal failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
		logger.InfoCF("cleanup", "Retention window closed", map[string]interface{}{
			"path": path,
		})
	})
}
