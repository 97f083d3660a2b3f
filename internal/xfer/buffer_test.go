package xfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0): expected error, got nil")
	}
}

func TestAppendFlushesOnOverflow(t *testing.T) {
	buf, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	buf.Begin(f)

	if err := buf.Append([]byte("ab")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := buf.Append([]byte("cdef")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := buf.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, []byte("abcdef")) {
		t.Errorf("file contents = %q, want %q", got, "abcdef")
	}
}

func TestAppendChunkLargerThanBufferBypassesIt(t *testing.T) {
	buf, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	buf.Begin(f)

	big := bytes.Repeat([]byte("z"), 64)
	if err := buf.Append(big); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := buf.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Errorf("file contents length = %d, want %d", len(got), len(big))
	}
}

func TestAbortDiscardsWithoutFlushing(t *testing.T) {
	buf, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()

	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	buf.Begin(f)
	if err := buf.Append([]byte("partial")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	buf.Abort()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("file contents after Abort = %q, want empty", got)
	}
}

func TestFinalizeWithoutBeginIsNoop(t *testing.T) {
	buf, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()
	if err := buf.Finalize(); err != nil {
		t.Errorf("Finalize without Begin: %v, want nil", err)
	}
}
