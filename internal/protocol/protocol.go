// Package protocol implements the wire format shared by the game server and
// its clients: every message is a little-endian uint32 payload length followed
// by exactly that many opaque payload bytes. There is no magic number, version
// or checksum.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/blukai/pewpew/internal/byteorder"
)

const (
	PrefixSize = 4 // uint32 (4), little endian

	// ReadBufferSize is the size of a single socket read. It is not a
	// protocol limit, frames of any size are reassembled across reads.
	ReadBufferSize = 512

	// DefaultMaxFrameSize is what the binaries use unless configured
	// otherwise. The Demuxer itself is unlimited by default.
	DefaultMaxFrameSize = 1 << 20 // 1 MiB

	// MaxFrameSize is the largest payload a Frame can hold. It is below
	// math.MaxUint32 only where int is 32 bits wide.
	MaxFrameSize = min(math.MaxInt, math.MaxUint32)
)

// ErrFrameTooLarge is returned by the Demuxer when a length prefix declares
// more bytes than it was configured to accept. The stream can not be
// resynchronized after that, the connection must be dropped.
var ErrFrameTooLarge = errors.New("frame too large")

// AppendFrame appends the length prefixed payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = byteorder.AppendHtole32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// EncodeFrame returns payload prefixed with its length.
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, PrefixSize+len(payload)), payload)
}

func frameTooLarge(length, max uint32) error {
	return fmt.Errorf("%w (got %d; want <= %d)", ErrFrameTooLarge, length, max)
}
