package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardsim/pkg/bits"
)

// FRAME CLASSIFICATION (card side, ISO/IEC 7816-3 §12.1.3):
// The card receives a raw C-APDU and must recover which of the seven encodings the
// terminal used before it can tell where the data field starts and how long the
// response may be. The decision only needs the total length and the byte at offset 4:
//
//   len == 4                       -> Case 1
//   len == 5                       -> Case 2  (Le = B4, 00 means 256)
//   len == 7 and B4 == 00          -> Case 2E (Le = B5B6, 0000 means 65536)
//   B4 == 00                       -> extended Lc = B5B6, data at offset 7
//       7 + Lc == len              -> Case 3E
//       7 + Lc + 2 == len          -> Case 4E (Le = last two bytes)
//   B4 != 00                       -> short Lc = B4, data at offset 5
//       5 + Lc == len              -> Case 3
//       5 + Lc + 1 == len          -> Case 4  (Le = last byte)
//
// Anything else is malformed and must be rejected before an application sees it.

// Shape identifies the ISO 7816-3 encoding case of a command.
type Shape int

const (
	ShapeCase1 Shape = iota + 1
	ShapeCase2
	ShapeCase3
	ShapeCase4
	ShapeCase2Extended
	ShapeCase3Extended
	ShapeCase4Extended
)

// Header and length field offsets shared by the classifier and the APDU engine.
const (
	OffsetCLA = 0
	OffsetINS = 1
	OffsetP1  = 2
	OffsetP2  = 3
	OffsetLC  = 4

	// OffsetCData is where the data field starts in a short command.
	OffsetCData = 5
	// OffsetExtCData is where the data field starts in an extended command.
	OffsetExtCData = 7

	HeaderLength = 4
)

// IsExtended reports whether the shape uses 2-byte length fields.
func (s Shape) IsExtended() bool {
	return s == ShapeCase2Extended || s == ShapeCase3Extended || s == ShapeCase4Extended
}

// HasData reports whether the shape carries an Lc field.
func (s Shape) HasData() bool {
	switch s {
	case ShapeCase3, ShapeCase4, ShapeCase3Extended, ShapeCase4Extended:
		return true
	}
	return false
}

// HasLe reports whether the shape carries an Le field.
func (s Shape) HasLe() bool {
	switch s {
	case ShapeCase2, ShapeCase4, ShapeCase2Extended, ShapeCase4Extended:
		return true
	}
	return false
}

func (s Shape) String() string {
	switch s {
	case ShapeCase1:
		return "Case 1"
	case ShapeCase2:
		return "Case 2"
	case ShapeCase3:
		return "Case 3"
	case ShapeCase4:
		return "Case 4"
	case ShapeCase2Extended:
		return "Case 2E"
	case ShapeCase3Extended:
		return "Case 3E"
	case ShapeCase4Extended:
		return "Case 4E"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Frame is the result of classifying a raw command.
type Frame struct {
	Shape Shape
	// Nc is the decoded Lc (0 when absent).
	Nc int
	// Ne is the decoded Le (0 when absent, 256 or 65536 for the zero encodings).
	Ne int
	// DataOffset is 5 for short and 7 for extended framing.
	DataOffset int
}

// Body returns the data field of raw, the frame f was classified from. It is
// nil when the shape carries no data field.
func (f Frame) Body(raw []byte) []byte {
	if !f.Shape.HasData() {
		return nil
	}
	return raw[f.DataOffset : f.DataOffset+f.Nc]
}

// Classify decodes the encoding case of a raw command APDU.
func Classify(raw []byte) (Frame, error) {
	n := len(raw)

	switch {
	case n < HeaderLength:
		return Frame{}, NewError(KindMalformed, SW_ERR_WRONG_LENGTH, "command too short: %d bytes", n)
	case n == HeaderLength:
		return Frame{Shape: ShapeCase1, DataOffset: OffsetCData}, nil
	case n == OffsetCData:
		return Frame{Shape: ShapeCase2, Ne: shortLe(raw[OffsetLC]), DataOffset: OffsetCData}, nil
	case n == OffsetExtCData && raw[OffsetLC] == 0x00:
		return Frame{
			Shape:      ShapeCase2Extended,
			Ne:         extendedLe(bits.Uint16(raw, OffsetLC+1)),
			DataOffset: OffsetExtCData,
		}, nil
	}

	if raw[OffsetLC] == 0x00 {
		if n < OffsetExtCData {
			return Frame{}, NewError(KindMalformed, SW_ERR_WRONG_LENGTH, "Lc or Le invalid")
		}
		lc := bits.Uint16(raw, OffsetLC+1)
		f := Frame{Nc: lc, DataOffset: OffsetExtCData}
		switch n {
		case OffsetExtCData + lc:
			f.Shape = ShapeCase3Extended
		case OffsetExtCData + lc + 2:
			f.Shape = ShapeCase4Extended
			f.Ne = extendedLe(bits.Uint16(raw, OffsetExtCData+lc))
		default:
			return Frame{}, NewError(KindMalformed, SW_ERR_WRONG_LENGTH, "Lc or Le invalid")
		}
		return f, nil
	}

	lc := int(raw[OffsetLC])
	f := Frame{Nc: lc, DataOffset: OffsetCData}
	switch n {
	case OffsetCData + lc:
		f.Shape = ShapeCase3
	case OffsetCData + lc + 1:
		f.Shape = ShapeCase4
		f.Ne = shortLe(raw[OffsetCData+lc])
	default:
		return Frame{}, NewError(KindMalformed, SW_ERR_WRONG_LENGTH, "Lc or Le invalid")
	}
	return f, nil
}

// ParseCommandAPDU classifies raw and decodes it into a CommandAPDU.
// Unlike NewClass/NewInstruction it does not reject reserved CLA or INS values:
// the card must still be able to answer them with a status word.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, Frame, error) {
	f, err := Classify(raw)
	if err != nil {
		return nil, Frame{}, err
	}

	cls, err := NewClass(raw[OffsetCLA])
	if err != nil {
		cls = Class{Raw: raw[OffsetCLA], IsProprietary: true}
	}
	ins := InsCode(raw[OffsetINS])

	cmd := &CommandAPDU{
		Class:       cls,
		Instruction: Instruction{Raw: ins, IsBERTLV: bits.IsSet(byte(ins), 1)},
		P1:          raw[OffsetP1],
		P2:          raw[OffsetP2],
		Ne:          f.Ne,
	}
	if f.Nc > 0 {
		cmd.Data = append([]byte(nil), f.Body(raw)...)
	}
	return cmd, f, nil
}

func shortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

func extendedLe(v int) int {
	if v == 0 {
		return MaxExtendedLe
	}
	return v
}
