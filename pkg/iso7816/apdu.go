package iso7816

import (
	"fmt"
)

// A command APDU is a 4-byte header (CLA INS P1 P2) and an optional body of
// Lc, data and Le. Lc and Le take one byte each in short form (255 and 256
// bytes at most, Le 00 meaning 256) and two bytes behind a 00 marker in
// extended form, which is used as soon as either length overflows short form.
// A response APDU is the data followed by SW1 SW2.
//
// CommandAPDU.Bytes is the terminal side of the encoding; Classify in frame.go
// reads it back on the card side.

const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize holds the longest extended case 4 command.
	MaxAPDUBufferSize = HeaderLength + 3 + MaxExtendedLc + 2
)

// CommandAPDU is a command before encoding. Ne is the expected response
// length; 0 means no Le field.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int
}

func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Shape returns the encoding case Bytes will use.
func (c *CommandAPDU) Shape() Shape {
	nc, ne := len(c.Data), c.Ne
	ext := nc > MaxShortLc || ne > MaxShortLe

	switch {
	case nc == 0 && ne == 0:
		return ShapeCase1
	case nc == 0 && ext:
		return ShapeCase2Extended
	case nc == 0:
		return ShapeCase2
	case ne == 0 && ext:
		return ShapeCase3Extended
	case ne == 0:
		return ShapeCase3
	case ext:
		return ShapeCase4Extended
	default:
		return ShapeCase4
	}
}

// Bytes encodes the command, choosing extended lengths only when needed.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data field of %d bytes exceeds %d", nc, MaxExtendedLc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("Ne %d outside 0..%d", ne, MaxExtendedLe)
	}
	cla, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}

	out := make([]byte, 0, HeaderLength+3+nc+2)
	out = append(out, cla, byte(c.Instruction.Raw), c.P1, c.P2)

	shape := c.Shape()
	if shape.HasData() {
		if shape.IsExtended() {
			out = append(out, 0x00, byte(nc>>8), byte(nc))
		} else {
			out = append(out, byte(nc))
		}
		out = append(out, c.Data...)
	}

	switch shape {
	case ShapeCase2, ShapeCase4:
		// 256 wraps to 00.
		out = append(out, byte(ne))
	case ShapeCase2Extended:
		out = append(out, 0x00, byte(ne>>8), byte(ne))
	case ShapeCase4Extended:
		// 65536 wraps to 00 00.
		out = append(out, byte(ne>>8), byte(ne))
	}
	return out, nil
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1 %02X P2 %02X | Nc %d Ne %d | %s",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne, c.Shape())
}

// ResponseAPDU is the card's answer.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into data and status word. Data aliases raw.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	n := len(raw) - 2
	if n < 0 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}
	return &ResponseAPDU{Data: raw[:n], Status: NewStatusWord(raw[n], raw[n+1])}, nil
}

// Bytes encodes the response as it travels on the wire: data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return r.Status.AppendTo(out)
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("%d bytes | %s", len(r.Data), r.Status.Verbose())
}
