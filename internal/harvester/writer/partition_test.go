package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDayPath(t *testing.T) {
	got := DayPath("/data", "ethereum", "20240102")
	want := filepath.Join("/data", "ethereum", "swap", "ethereum_v3_swaps_20240102.jsonl")
	if got != want {
		t.Errorf("DayPath = %s, want %s", got, want)
	}
}

func TestCommitPromotesPartial(t *testing.T) {
	path := DayPath(t.TempDir(), "test", "20240101")

	p, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Append(map[string]any{"blockNumber": 100}); err != nil {
		t.Fatal(err)
	}
	if err := p.Append(map[string]any{"blockNumber": 101}); err != nil {
		t.Fatal(err)
	}

	// Commit 前最终分区不存在
	if Exists(path) {
		t.Fatal("final partition visible before commit")
	}

	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Fatal("final partition missing after commit")
	}
	if _, err := os.Stat(path + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Errorf("lines = %d, want 2", len(lines))
	}
}

func TestDiscardLeavesNothing(t *testing.T) {
	path := DayPath(t.TempDir(), "test", "20240101")

	p, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Append(map[string]any{"blockNumber": 100}); err != nil {
		t.Fatal(err)
	}
	p.Discard()

	if Exists(path) {
		t.Error("discarded partition became visible")
	}
	if _, err := os.Stat(path + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestExistsIgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if Exists(path) {
		t.Error("empty file treated as completed partition")
	}
}
