package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

// Janitor is the backstop for artifacts that per-delivery cleanup never
// reached: outputs past retention after a crash, upload directories whose
// session no longer exists. Sweeps fire on a cron schedule.
type Janitor struct {
	uploadRoot string
	outputRoot string
	retention  time.Duration
	cronExpr   string
	isLive     func(userKey string) bool
	gron       *gronx.Gronx
}

// NewJanitor validates the cron expression up front. isLive reports
// whether a user key still has a session; its upload directory is only
// removed when it does not.
func NewJanitor(uploadRoot, outputRoot string, retention time.Duration, cronExpr string, isLive func(string) bool) (*Janitor, error) {
	g := gronx.New()
	if !g.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cleanup schedule %q", cronExpr)
	}
	if isLive == nil {
		isLive = func(string) bool { return false }
	}
	return &Janitor{
		uploadRoot: uploadRoot,
		outputRoot: outputRoot,
		retention:  retention,
		cronExpr:   cronExpr,
		isLive:     isLive,
		gron:       g,
	}, nil
}

// Run checks the schedule once a minute and sweeps when due. Returns when
// the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	logger.InfoCF("cleanup", "Janitor started", map[string]interface{}{
		"schedule":  j.cronExpr,
		"retention": j.retention.String(),
	})
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := j.gron.IsDue(j.cronExpr, now)
			if err != nil || !due {
				continue
			}
			outputs, dirs := j.Sweep(now)
			if outputs > 0 || dirs > 0 {
				logger.InfoCF("cleanup", "Sweep finished", map[string]interface{}{
					"outputs_removed": outputs,
					"dirs_removed":    dirs,
				})
			}
		}
	}
}

// Sweep removes expired outputs and orphaned upload directories, returning
// how many of each went away. Only entries older than the retention window
// are touched, so in-flight batches are never vacuumed.
func (j *Janitor) Sweep(now time.Time) (outputsRemoved, dirsRemoved int) {
	cutoff := now.Add(-j.retention)

	entries, err := os.ReadDir(j.outputRoot)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			p := filepath.Join(j.outputRoot, e.Name())
			if err := os.Remove(p); err == nil {
				outputsRemoved++
				logger.DebugCF("cleanup", "Expired output removed", map[string]interface{}{"path": p})
			}
		}
	}

	entries, err = os.ReadDir(j.uploadRoot)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || j.isLive(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			p := filepath.Join(j.uploadRoot, e.Name())
			if err := os.RemoveAll(p); err == nil {
				dirsRemoved++
				logger.DebugCF("cleanup", "Orphaned upload dir removed", map[string]interface{}{"path": p})
			}
		}
	}
	return outputsRemoved, dirsRemoved
}
