package logs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facet.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "three" || result.Lines[1] != "four" {
		t.Fatalf("lines %v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("offset not advanced to end of file")
	}
}

func TestTailLimitLargerThanFile(t *testing.T) {
	path := writeLog(t, "only\n")
	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 50})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("lines %v", result.Lines)
	}
}

func TestTailResumeFromOffset(t *testing.T) {
	path := writeLog(t, "first\n")

	initial, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := file.WriteString("second\nthird\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	next, err := Tail(context.Background(), path, TailOptions{Offset: initial.Offset})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(next.Lines) != 2 || next.Lines[0] != "second" || next.Lines[1] != "third" {
		t.Fatalf("lines %v", next.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("result %+v", result)
	}
}

func TestTailTruncatedFileRestarts(t *testing.T) {
	path := writeLog(t, "a long line that will vanish\n")
	initial, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	next, err := Tail(context.Background(), path, TailOptions{Offset: initial.Offset})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "fresh" {
		t.Fatalf("lines %v", next.Lines)
	}
}
