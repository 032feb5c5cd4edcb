// Package ring provides the lock-free single-producer/single-consumer
// sample queue between the generation thread and the hardware output
// callback, plus the byte-level reader that converts samples to the
// negotiated wire format at that boundary.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC float32 queue. Exactly one goroutine may
// call Push and exactly one may call Pop; under that discipline no locks
// are needed. Cursors are free-running uint64s masked into the slice, so
// tail-head is always the queued sample count.
type Buffer struct {
	data []float32
	mask uint64
	head atomic.Uint64 // consumer cursor
	tail atomic.Uint64 // producer cursor
}

// New creates a buffer holding at least capacity samples (rounded up to a
// power of two).
func New(capacity int) *Buffer {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Buffer{
		data: make([]float32, n),
		mask: uint64(n - 1),
	}
}

// CapacityFor returns a capacity covering roughly 150 ms of interleaved
// stereo audio at the given rate, enough to absorb scheduling jitter on
// the generation thread.
func CapacityFor(sampleRate int) int {
	return sampleRate * 150 / 1000 * 2
}

// Push copies as many samples from src as fit and returns how many were
// accepted. It never blocks; the caller decides what to do with the rest.
func (b *Buffer) Push(src []float32) int {
	head := b.head.Load()
	tail := b.tail.Load()
	free := len(b.data) - int(tail-head)
	n := len(src)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	start := int(tail & b.mask)
	first := copy(b.data[start:], src[:n])
	copy(b.data, src[first:n])

	b.tail.Store(tail + uint64(n))
	return n
}

// Pop copies up to len(dst) samples into dst and returns how many were
// read. It never blocks; on underrun the caller substitutes silence.
func (b *Buffer) Pop(dst []float32) int {
	head := b.head.Load()
	tail := b.tail.Load()
	avail := int(tail - head)
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	start := int(head & b.mask)
	first := copy(dst[:n], b.data[start:])
	copy(dst[first:n], b.data)

	b.head.Store(head + uint64(n))
	return n
}

// Len returns the number of queued samples.
func (b *Buffer) Len() int {
	return int(b.tail.Load() - b.head.Load())
}

// Vacant returns the free space in samples.
func (b *Buffer) Vacant() int {
	return len(b.data) - b.Len()
}

// Cap returns the total capacity in samples.
func (b *Buffer) Cap() int { return len(b.data) }
