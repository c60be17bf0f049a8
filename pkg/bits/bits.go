// Package bits holds the bit and byte helpers the ISO 7816 decoders and the
// card runtime share. Bits are numbered as in ISO 7816: b1 is the least
// significant, b8 the most.
package bits

// Bit is the mask of bit n. Out of 1..8 it is 0, so every helper below treats
// a bad position as a no-op.
func Bit(n uint) byte {
	if n == 0 || n > 8 {
		return 0
	}
	return 0x80 >> (8 - n)
}

func IsSet(b byte, n uint) bool { return b&Bit(n) != 0 }

func Set(b byte, n uint) byte { return b | Bit(n) }

func Clear(b byte, n uint) byte { return b &^ Bit(n) }

// GetRange returns bits high..low of b, shifted down to b1.
// GetRange(0x0C, 4, 3) is 3.
func GetRange(b byte, high, low uint) byte {
	if low == 0 || high > 8 || low > high {
		return 0
	}
	return b << (8 - high) >> (8 - high + low - 1)
}

// Uint16 reads the big-endian value at buf[off:off+2].
func Uint16(buf []byte, off int) int {
	return int(buf[off])<<8 | int(buf[off+1])
}

// PutUint16 stores v big-endian at buf[off:off+2] and returns the next offset.
func PutUint16(buf []byte, off int, v int) int {
	buf[off], buf[off+1] = byte(v>>8), byte(v)
	return off + 2
}
