package buffer

import (
	"bytes"
	"testing"
)

func TestWriteRead(t *testing.T) {
	r := NewRing(16)

	if n, _ := r.Write([]byte("hello")); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}
	if r.Len() != 5 {
		t.Fatalf("Len = %d, want 5", r.Len())
	}

	out := make([]byte, 16)
	n, _ := r.Read(out)
	if string(out[:n]) != "hello" {
		t.Fatalf("Read = %q", out[:n])
	}
	if r.Len() != 0 {
		t.Fatalf("Len after drain = %d", r.Len())
	}
}

func TestReadEmpty(t *testing.T) {
	r := NewRing(8)
	out := make([]byte, 4)
	if n, err := r.Read(out); n != 0 || err != nil {
		t.Fatalf("Read empty = (%d, %v), want (0, nil)", n, err)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("abcd"))
	r.Write([]byte("ef"))

	got := r.Snapshot()
	if !bytes.Equal(got, []byte("cdef")) {
		t.Fatalf("Snapshot = %q, want cdef (oldest dropped)", got)
	}
}

func TestWriteLargerThanBuffer(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("abcdefgh"))

	got := r.Snapshot()
	if !bytes.Equal(got, []byte("efgh")) {
		t.Fatalf("Snapshot = %q, want the most recent 4 bytes", got)
	}
}

func TestSnapshotDoesNotConsume(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("data"))

	r.Snapshot()
	if r.Len() != 4 {
		t.Fatalf("Len after Snapshot = %d, want 4", r.Len())
	}
}

func TestClear(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("data"))
	r.Clear()

	if r.Len() != 0 {
		t.Fatalf("Len after Clear = %d", r.Len())
	}
	if got := r.Snapshot(); got != nil {
		t.Fatalf("Snapshot after Clear = %q", got)
	}
}

func TestWrapAround(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("ab"))

	out := make([]byte, 2)
	r.Read(out)

	r.Write([]byte("cdef"))
	got := r.Snapshot()
	if !bytes.Equal(got, []byte("cdef")) {
		t.Fatalf("Snapshot after wrap = %q, want cdef", got)
	}
}
