package handshake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "batch-abc", 7); err != nil {
		t.Fatalf("Write: %v", err)
	}

	m, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Token != "batch-abc" || m.Count != 7 {
		t.Errorf("round trip lost fields: %+v", m)
	}
}

// A bare or malformed marker still signals readiness.
func TestReadBareMarker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MarkerName), nil, 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Read(dir)
	if err != nil {
		t.Fatalf("Read of empty marker: %v", err)
	}
	if m.Token != "" || m.Count != 0 {
		t.Errorf("expected zero marker, got %+v", m)
	}
}

func TestAwaitImmediate(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "tok", 1); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	m, err := Await(context.Background(), dir, 500*time.Millisecond, 10*time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if m.Token != "tok" {
		t.Errorf("wrong marker: %+v", m)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Error("Await should return without waiting when the marker already exists")
	}
}

func TestAwaitObservesLateMarker(t *testing.T) {
	dir := t.TempDir()
	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = Write(dir, "late", 2)
	}()

	m, err := Await(context.Background(), dir, 10*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if m.Token != "late" || m.Count != 2 {
		t.Errorf("unexpected marker: %+v", m)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	dir := t.TempDir()

	start := time.Now()
	_, err := Await(context.Background(), dir, 10*time.Millisecond, 80*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Await(ctx, dir, 10*time.Millisecond, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConsumeMatchingToken(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "tok-1", 3); err != nil {
		t.Fatal(err)
	}

	consumed, err := Consume(dir, "tok-1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !consumed {
		t.Fatal("expected marker to be consumed")
	}
	if Exists(dir) {
		t.Fatal("marker survived Consume")
	}
}

// A stale cleanup must not delete the marker a newer trigger wrote.
func TestConsumeStaleTokenLeavesNewerMarker(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "newer", 4); err != nil {
		t.Fatal(err)
	}

	consumed, err := Consume(dir, "older")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if consumed {
		t.Fatal("stale token consumed a newer marker")
	}
	if !Exists(dir) {
		t.Fatal("newer marker was deleted")
	}
}

func TestConsumeMissingMarker(t *testing.T) {
	dir := t.TempDir()
	consumed, err := Consume(dir, "anything")
	if err != nil {
		t.Fatalf("Consume on empty dir: %v", err)
	}
	if consumed {
		t.Fatal("nothing to consume, but consumed reported true")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove on missing marker: %v", err)
	}
	if err := Write(dir, "tok", 1); err != nil {
		t.Fatal(err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}
