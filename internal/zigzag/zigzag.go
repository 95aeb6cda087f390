package zigzag

import (
	"encoding/binary"
	"errors"
)

// ZigZag maps signed integers onto unsigned ones so that values with a small
// absolute value stay small, which is what makes them cheap under uvarint.
//
//       int32 ->     uint32
// -------------------------
//           0 ->          0
//          -1 ->          1
//           1 ->          2
//          -2 ->          3
//  2147483647 -> 4294967294
// -2147483648 -> 4294967295

var ErrOverflow = errors.New("zigzag: varint overflows int32")

func Encode32(n int32) uint32 {
	return uint32((n << 1) ^ (n >> 31))
}

func Decode32(n uint32) int32 {
	return int32(n>>1) ^ -int32(n&1)
}

// AppendVarint32 appends n to dst as a zigzag encoded uvarint (1 to 5 bytes).
func AppendVarint32(dst []byte, n int32) []byte {
	return binary.AppendUvarint(dst, uint64(Encode32(n)))
}

// Varint32 decodes a value written by AppendVarint32 and returns it together
// with the number of bytes consumed.
func Varint32(buf []byte) (int32, int, error) {
	v, n := binary.Uvarint(buf)
	if n == 0 {
		return 0, 0, errors.New("zigzag: buffer too small")
	}
	if n < 0 || v > 0xffffffff {
		return 0, 0, ErrOverflow
	}
	return Decode32(uint32(v)), n, nil
}
