package downloader

import (
	"bytes"
	"testing"
)

func TestCopyWithLimit_AbortsWhenAccumulatorExceedsMax(t *testing.T) {
	src := bytes.NewReader(make([]byte, 1024))
	var dst bytes.Buffer

	_, err := copyWithLimit(&dst, src, 512, 0, nil)
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestCopyWithLimit_IgnoresDishonestContentLength(t *testing.T) {
	// Declared total says 10 bytes but the actual stream is larger; the
	// accumulator, not the declared Content-Length, must catch this.
	src := bytes.NewReader(make([]byte, 2048))
	var dst bytes.Buffer

	_, err := copyWithLimit(&dst, src, 1024, 10, nil)
	if err != ErrTooLarge {
		t.Fatalf("expected the byte accumulator to trigger ErrTooLarge, got %v", err)
	}
}

func TestCopyWithLimit_SucceedsUnderLimit(t *testing.T) {
	data := []byte("small payload")
	src := bytes.NewReader(data)
	var dst bytes.Buffer

	n, err := copyWithLimit(&dst, src, 1024, int64(len(data)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len(data)) || dst.String() != string(data) {
		t.Fatalf("unexpected copy result: n=%d dst=%q", n, dst.String())
	}
}

func TestCopyWithLimit_ReportsProgress(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 300*1024)
	src := bytes.NewReader(data)
	var dst bytes.Buffer

	var calls int
	_, err := copyWithLimit(&dst, src, int64(len(data))+1, int64(len(data)), func(written, total int64) {
		calls++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls == 0 {
		t.Fatal("expected at least one progress callback")
	}
}
