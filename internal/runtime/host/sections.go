package host

import (
	"encoding/binary"
	"fmt"
)

// Sections are how host and contract pass lists of byte slices through a
// single region: each element is its payload followed by the payload length
// as a big-endian uint32. The format is decoded back to front, so elements
// can be appended without re-encoding.

// encodeSections flattens the given slices into one sectioned buffer.
func encodeSections(sections ...[]byte) []byte {
	size := 0
	for _, section := range sections {
		size += len(section) + 4
	}
	out := make([]byte, 0, size)
	for _, section := range sections {
		out = append(out, section...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(section)))
	}
	return out
}

// decodeSections splits a sectioned buffer into its elements.
func decodeSections(data []byte) ([][]byte, error) {
	var reversed [][]byte
	remaining := data
	for len(remaining) > 0 {
		if len(remaining) < 4 {
			return nil, fmt.Errorf("section ends with %d trailing bytes, want a 4 byte length", len(remaining))
		}
		length := int(binary.BigEndian.Uint32(remaining[len(remaining)-4:]))
		remaining = remaining[:len(remaining)-4]
		if length > len(remaining) {
			return nil, fmt.Errorf("section length %d exceeds the %d remaining bytes", length, len(remaining))
		}
		reversed = append(reversed, remaining[len(remaining)-length:])
		remaining = remaining[:len(remaining)-length]
	}
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed, nil
}
