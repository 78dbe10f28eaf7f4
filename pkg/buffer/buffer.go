// Package buffer implements the Buffer and MemoryPool building blocks
// of spec.md §4.1: contiguous, memory-kind-tagged regions lent out to
// batchers and workers and returned for reuse.
package buffer

import "fmt"

// Kind tags the allocator family a Buffer was drawn from.
type Kind string

// The memory kinds a worker may advertise via GetAllocators.
const (
	Cpu       Kind = "cpu"
	CpuPinned Kind = "cpu_pinned"
	Gpu       Kind = "gpu"
)

// Buffer is a contiguous byte region with an immutable memory-kind tag.
// Contents are mutable; consumers address by byte offset.
type Buffer struct {
	kind  Kind
	bytes []byte
}

// NewBuffer allocates a zero-initialized buffer of the given kind and size.
func NewBuffer(kind Kind, size uint64) *Buffer {
	return &Buffer{kind: kind, bytes: make([]byte, size)}
}

// Kind returns the buffer's memory-kind tag.
func (b *Buffer) Kind() Kind { return b.kind }

// Len returns the total byte capacity of the buffer.
func (b *Buffer) Len() uint64 { return uint64(len(b.bytes)) }

// Data returns a slice of the buffer's bytes starting at offset. It
// panics if offset exceeds the buffer's length, matching the contract
// that callers only address within buffers they were handed exactly.
func (b *Buffer) Data(offset uint64) []byte {
	if offset > uint64(len(b.bytes)) {
		panic(fmt.Sprintf("buffer: offset %d exceeds length %d", offset, len(b.bytes)))
	}
	return b.bytes[offset:]
}

// Write copies src into the buffer starting at offset.
func (b *Buffer) Write(offset uint64, src []byte) {
	copy(b.Data(offset), src)
}
