package kfmt

import "io"

// ringBufferSize is the capacity of the early output buffer. It must be a
// power of 2.
const ringBufferSize = 4096

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Once
// full, each write discards the oldest bytes.
type ringBuffer struct {
	data  [ringBufferSize]byte
	start int
	count int
}

// Write appends p to the buffer and always succeeds.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.start+rb.count)&(ringBufferSize-1)] = b
		if rb.count < ringBufferSize {
			rb.count++
		} else {
			rb.start = (rb.start + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read drains up to len(p) of the oldest buffered bytes into p. It returns
// io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && rb.count > 0 {
		// Copy the contiguous run up to the end of the backing array.
		run := ringBufferSize - rb.start
		if run > rb.count {
			run = rb.count
		}
		c := copy(p[n:], rb.data[rb.start:rb.start+run])
		n += c
		rb.count -= c
		rb.start = (rb.start + c) & (ringBufferSize - 1)
	}

	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int {
	return rb.count
}
