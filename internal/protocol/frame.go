package protocol

import (
	"github.com/blukai/pewpew/internal/debug"
)

// Bound on the capacity preallocated for a new frame. Anything above it grows
// as bytes actually arrive, so a bogus prefix can't make us allocate
// gigabytes before a single payload byte was received.
const maxFramePrealloc = 64 << 10

// Frame accumulates the payload of one message whose length is known from its
// prefix.
//
// Once complete a frame must not be read into anymore; ownership moves to
// whoever received it from the Demuxer.
type Frame struct {
	length int
	read   int
	bytes  []byte
}

func NewFrame(length uint32) *Frame {
	debug.Assertf(uint64(length) <= MaxFrameSize, "frame length %d exceeds %d", length, uint64(MaxFrameSize))
	return &Frame{
		length: int(length),
		bytes:  make([]byte, 0, min(int(length), maxFramePrealloc)),
	}
}

// Read consumes as many bytes of chunk as the frame still needs and returns
// what is left over. It returns nil when the whole chunk was consumed,
// including the case where chunk completes the frame exactly.
func (f *Frame) Read(chunk []byte) []byte {
	debug.Assert(!f.IsComplete() || len(chunk) == 0, "read into complete frame")

	needed := f.length - f.read
	if len(chunk) <= needed {
		f.bytes = append(f.bytes, chunk...)
		f.read += len(chunk)
		return nil
	}

	f.bytes = append(f.bytes, chunk[:needed]...)
	f.read += needed
	return chunk[needed:]
}

func (f *Frame) IsComplete() bool {
	return f.read == f.length
}

// Len returns the declared payload length.
func (f *Frame) Len() int {
	return f.length
}

// Received returns how many payload bytes were read so far.
func (f *Frame) Received() int {
	return f.read
}

// Bytes returns the payload received so far. The slice is owned by the frame.
func (f *Frame) Bytes() []byte {
	return f.bytes
}
