package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardsim/pkg/bits"
)

// CLA layout (ISO/IEC 7816-4 §5.4.1). Bit 8 set means proprietary. Otherwise
// bit 5 is command chaining, and bit 7 picks the range:
//
//	000x xxxx  first interindustry: SM on bits 4-3, channel 0-3 on bits 2-1
//	01xx xxxx  further interindustry: SM on bit 6, channel 4-19 as bits 4-1 plus 4

// SecureMessaging is the SM indication of an interindustry class.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	// SMProprietary exists in the first range only.
	SMProprietary
	SMHeaderNoProc
	// SMHeaderAuth exists in the first range only.
	SMHeaderAuth
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "none"
	case SMProprietary:
		return "proprietary"
	case SMHeaderNoProc:
		return "ISO, header not processed"
	case SMHeaderAuth:
		return "ISO, header authenticated"
	}
	return fmt.Sprintf("SecureMessaging(%d)", int(sm))
}

const (
	maxFirstChannel   = 3
	maxFurtherChannel = 19
)

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes cla. FF is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}
	if bits.IsSet(cla, 8) {
		return Class{Raw: cla, IsProprietary: true}, nil
	}

	c := Class{Raw: cla, IsChained: bits.IsSet(cla, 5), Channel: ChannelOf(cla)}
	switch {
	case !bits.IsSet(cla, 7):
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
	case bits.IsSet(cla, 6):
		c.SecureMessaging = SMHeaderNoProc
	}
	return c, nil
}

// NewInterindustryClass builds the class for a channel, using the further range
// above channel 3.
func NewInterindustryClass(isChained bool, sm SecureMessaging, channel uint8) (Class, error) {
	if channel > maxFurtherChannel {
		return Class{}, fmt.Errorf("channel %d out of range (max %d)", channel, maxFurtherChannel)
	}
	if channel > maxFirstChannel && sm != SMNone && sm != SMHeaderNoProc {
		return Class{}, fmt.Errorf("SM %q not available on channel %d", sm, channel)
	}

	c := Class{IsChained: isChained, SecureMessaging: sm, Channel: channel}
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Encode returns the CLA byte. A proprietary class encodes as Raw.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > maxFurtherChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, maxFurtherChannel)
	}

	var cla byte
	if c.IsChained {
		cla = bits.Set(cla, 5)
	}
	if c.Channel <= maxFirstChannel {
		return cla | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}

	cla = bits.Set(cla, 7)
	if c.SecureMessaging != SMNone {
		cla = bits.Set(cla, 6)
	}
	return cla | (c.Channel - maxFirstChannel - 1), nil
}

// Verbose describes the class on several lines.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	rangeName := "First Interindustry (Ch 0-3)"
	if c.Channel > maxFirstChannel {
		rangeName = "Further Interindustry (Ch 4-19)"
	}
	chaining := "Last or only command"
	if c.IsChained {
		chaining = "More commands follow (Chaining)"
	}
	return fmt.Sprintf("Range: %s\nChaining: %s\nSecure Messaging: %s\nLogical Channel: %d",
		rangeName, chaining, c.SecureMessaging, c.Channel)
}

// ChannelOf returns the logical channel of a CLA byte. Proprietary classes
// (8X to FE) are read with the interindustry channel bits, as card runtimes do
// when routing administrative commands.
func ChannelOf(cla byte) uint8 {
	if !bits.IsSet(cla, 7) {
		return bits.GetRange(cla, 2, 1)
	}
	return bits.GetRange(cla, 4, 1) + maxFirstChannel + 1
}
