package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/manifest"
)

func seedBatch(t *testing.T, dir, token string, names []string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	m := manifest.Manifest{UserKey: "u1"}
	for i, name := range names {
		m.Entries = append(m.Entries, manifest.Entry{Name: name, OriginalName: name, SeqNo: i + 1})
	}
	if err := manifest.Save(dir, m); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
	if err := handshake.Write(dir, token, len(names)); err != nil {
		t.Fatalf("seed marker: %v", err)
	}
}

func TestBatchRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	names := []string{"img_001.jpg", "img_002.png"}
	seedBatch(t, dir, "tok-1", names)

	if err := Batch(dir, "tok-1", names); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("image %s survived cleanup", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); !os.IsNotExist(err) {
		t.Error("manifest survived cleanup")
	}
	if handshake.Exists(dir) {
		t.Error("marker survived cleanup")
	}
}

func TestBatchIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	names := []string{"img_001.jpg"}
	seedBatch(t, dir, "tok-2", names)

	if err := Batch(dir, "tok-2", names); err != nil {
		t.Fatalf("first Batch: %v", err)
	}
	if err := Batch(dir, "tok-2", names); err != nil {
		t.Fatalf("repeated Batch: %v", err)
	}
}

func TestBatchLeavesForeignMarker(t *testing.T) {
	dir := t.TempDir()
	names := []string{"img_001.jpg"}
	seedBatch(t, dir, "newer-token", names)

	if err := Batch(dir, "stale-token", names); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if !handshake.Exists(dir) {
		t.Error("marker with a different token must survive")
	}
}

func TestScheduleOutputRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	timer := ScheduleOutputRemoval(path, 20*time.Millisecond)
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("output still present after retention window")
}

func TestScheduleOutputRemovalCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	timer := ScheduleOutputRemoval(path, time.Hour)
	if !timer.Stop() {
		t.Fatal("timer already fired")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("output removed despite cancelled timer")
	}
}
