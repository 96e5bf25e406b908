package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewJanitorValidatesSchedule(t *testing.T) {
	if _, err := NewJanitor(t.TempDir(), t.TempDir(), time.Hour, "not a cron line", nil); err == nil {
		t.Fatal("expected an error for a bad schedule")
	}
	if _, err := NewJanitor(t.TempDir(), t.TempDir(), time.Hour, "*/5 * * * *", nil); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestSweepRemovesExpiredOutputs(t *testing.T) {
	outputs := t.TempDir()
	old := filepath.Join(outputs, "old.pdf")
	fresh := filepath.Join(outputs, "fresh.pdf")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("%PDF"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("age output: %v", err)
	}

	j, err := NewJanitor(t.TempDir(), outputs, time.Hour, "* * * * *", nil)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	removed, _ := j.Sweep(time.Now())
	if removed != 1 {
		t.Fatalf("removed %d outputs, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired output survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh output removed")
	}
}

func TestSweepRemovesOrphanedUploadDirs(t *testing.T) {
	uploads := t.TempDir()
	orphan := filepath.Join(uploads, "gone_user")
	live := filepath.Join(uploads, "live_user")
	for _, d := range []string{orphan, live} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("seed dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(d, "img_001.jpg"), []byte("img"), 0o644); err != nil {
			t.Fatalf("seed image: %v", err)
		}
	}
	stale := time.Now().Add(-3 * time.Hour)
	for _, d := range []string{orphan, live} {
		if err := os.Chtimes(d, stale, stale); err != nil {
			t.Fatalf("age dir: %v", err)
		}
	}

	isLive := func(key string) bool { return key == "live_user" }
	j, err := NewJanitor(uploads, t.TempDir(), time.Hour, "* * * * *", isLive)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	_, removed := j.Sweep(time.Now())
	if removed != 1 {
		t.Fatalf("removed %d dirs, want 1", removed)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned dir survived")
	}
	if _, err := os.Stat(live); err != nil {
		t.Error("live session dir removed")
	}
}

func TestSweepSparesRecentOrphans(t *testing.T) {
	uploads := t.TempDir()
	recent := filepath.Join(uploads, "brand_new")
	if err := os.MkdirAll(recent, 0o755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}

	j, err := NewJanitor(uploads, t.TempDir(), time.Hour, "* * * * *", nil)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	if _, removed := j.Sweep(time.Now()); removed != 0 {
		t.Fatalf("removed %d dirs, want 0", removed)
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("recent dir must survive until it ages out")
	}
}
