package protocol

import (
	"github.com/blukai/pewpew/internal/byteorder"
	"github.com/blukai/pewpew/internal/debug"
)

// Demuxer splits an arbitrarily chunked byte stream into frames.
//
// Between calls it only remembers a partially received length prefix or the
// single frame that is currently in progress. It is not safe for concurrent
// use; a connection's read loop owns its Demuxer.
type Demuxer struct {
	prefix    [PrefixSize]byte
	prefixLen int
	current   *Frame

	maxFrameSize uint32
}

type DemuxerOption func(*Demuxer)

// WithMaxFrameSize makes Feed fail with ErrFrameTooLarge when a prefix
// declares more than max bytes. Zero means no limit beyond MaxFrameSize.
func WithMaxFrameSize(max uint32) DemuxerOption {
	return func(d *Demuxer) {
		d.maxFrameSize = max
	}
}

func NewDemuxer(opts ...DemuxerOption) *Demuxer {
	d := &Demuxer{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes chunk and returns the frames it completed, in the order their
// last byte arrived. An empty chunk is a no-op.
//
// After an error the Demuxer is out of sync with the stream and must be
// discarded together with the connection.
func (d *Demuxer) Feed(chunk []byte) ([]*Frame, error) {
	var frames []*Frame

	for {
		if d.current != nil {
			// zero length frames are complete before they read anything.
			if !d.current.IsComplete() {
				chunk = d.current.Read(chunk)
			}
			if !d.current.IsComplete() {
				debug.Assertf(len(chunk) == 0, "%d bytes left over by incomplete frame", len(chunk))
				return frames, nil
			}
			frames = append(frames, d.current)
			d.current = nil
			continue
		}

		if len(chunk) == 0 {
			return frames, nil
		}

		n := copy(d.prefix[d.prefixLen:], chunk)
		d.prefixLen += n
		chunk = chunk[n:]
		if d.prefixLen < PrefixSize {
			debug.Assert(len(chunk) == 0)
			return frames, nil
		}

		length := byteorder.Le32toh(d.prefix[:])
		d.prefixLen = 0
		if limit := d.limit(); length > limit {
			return frames, frameTooLarge(length, limit)
		}
		d.current = NewFrame(length)
	}
}

func (d *Demuxer) limit() uint32 {
	if d.maxFrameSize == 0 || d.maxFrameSize > MaxFrameSize {
		return MaxFrameSize
	}
	return d.maxFrameSize
}

// Current returns the frame that is being assembled, if any.
func (d *Demuxer) Current() *Frame {
	return d.current
}

// Buffered returns how many bytes of the next length prefix were received.
func (d *Demuxer) Buffered() int {
	return d.prefixLen
}
