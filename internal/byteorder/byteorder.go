package byteorder

import (
	"encoding/binary"
)

// https://linux.die.net/man/3/htole32

// decrypt names:
// h  = host
// le = little endian (the wire order of frame length prefixes)
// 32 = uint32

func Htole32(val uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, val)
	return buf
}

// AppendHtole32 is Htole32 without the extra allocation.
func AppendHtole32(dst []byte, val uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, val)
}

func Le32toh(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
