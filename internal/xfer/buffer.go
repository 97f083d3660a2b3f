// Package xfer implements the Transfer Buffer: a single pre-allocated
// scratch buffer the Receiver state machine uses to coalesce
// property-change fragments in RAM before syncing to disk.
//
// The buffer is touched only by the Event Pump goroutine; it
// is not internally synchronized.
package xfer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/phuquocloc/xcbd/internal/cmn"
)

// Buffer is a fixed-size scratch buffer with spill-to-file on overflow.
// Property-change bursts can be many small text fragments
// or a few large image blocks; coalescing in RAM before a write syscall
// amortizes cost, and the fixed size bounds memory growth on a
// pathological stream.
type Buffer struct {
	buf    []byte
	offset int
	file   *os.File
	locked bool
}

// New pre-allocates a buffer of size bytes and best-effort mlocks it
// (golang.org/x/sys/unix) so clipboard contents — which may include
// passwords or other sensitive text — are never written to swap while
// in flight. Failure to mlock (e.g. insufficient RLIMIT_MEMLOCK) is
// logged by the caller, not fatal: it degrades to an ordinary heap
// buffer.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("xfer: buffer size must be positive, got %d", size)
	}
	b := &Buffer{buf: make([]byte, size)}
	if err := unix.Mlock(b.buf); err == nil {
		b.locked = true
	}
	return b, nil
}

// Locked reports whether the buffer is currently memory-locked.
func (b *Buffer) Locked() bool { return b.locked }

// Begin attaches an already-open file as the spill target and resets the
// buffer to offset 0, starting a new transfer.
func (b *Buffer) Begin(file *os.File) {
	b.file = file
	b.offset = 0
}

// Append copies chunk into the buffer, flushing to the open file and
// resetting to offset 0 whenever the buffer would overflow.
// When the buffer is empty, a remaining chunk at least as large as the
// whole buffer is written straight through without being copied into buf.
func (b *Buffer) Append(chunk []byte) error {
	for len(chunk) > 0 {
		free := len(b.buf) - b.offset
		if free == 0 {
			if err := b.flush(); err != nil {
				return err
			}
			free = len(b.buf)
		}
		if len(chunk) >= len(b.buf) && b.offset == 0 {
			// Chunk alone is at least a full buffer: write it directly,
			// skip the copy.
			if _, err := b.file.Write(chunk); err != nil {
				return cmn.Wrapf(err, "xfer: direct write")
			}
			return nil
		}
		n := free
		if n > len(chunk) {
			n = len(chunk)
		}
		copy(b.buf[b.offset:], chunk[:n])
		b.offset += n
		chunk = chunk[n:]
	}
	return nil
}

func (b *Buffer) flush() error {
	if b.offset == 0 {
		return nil
	}
	if _, err := b.file.Write(b.buf[:b.offset]); err != nil {
		return cmn.Wrapf(err, "xfer: flush")
	}
	b.offset = 0
	return nil
}

// Finalize flushes any residual bytes and closes the open file. Safe to call even if Begin was never called.
func (b *Buffer) Finalize() error {
	if b.file == nil {
		return nil
	}
	ferr := b.flush()
	cerr := b.file.Close()
	b.file = nil
	b.offset = 0
	if ferr != nil {
		return ferr
	}
	if cerr != nil {
		return cmn.Wrapf(cerr, "xfer: closing file")
	}
	return nil
}

// Abort discards the in-flight file without flushing pending bytes,
// used when a transaction is cancelled or times out partway.
func (b *Buffer) Abort() {
	if b.file != nil {
		b.file.Close()
		b.file = nil
	}
	b.offset = 0
}

// Close releases the buffer's locked memory. Call once at shutdown.
func (b *Buffer) Close() {
	if b.locked {
		unix.Munlock(b.buf)
		b.locked = false
	}
}
