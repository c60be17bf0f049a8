package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var hexSeparators = strings.NewReplacer(" ", "", "\t", "", "\r", "", ":", "")

// ParseHex joins parts and decodes them, ignoring blanks and colons.
func ParseHex(parts ...string) ([]byte, error) {
	clean := hexSeparators.Replace(strings.Join(parts, ""))
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", clean, err)
	}
	return data, nil
}

// Hex is ParseHex for literals: Hex("6F 07", "84 05 A000000003"). It panics on
// malformed input.
func Hex(parts ...string) []byte {
	data, err := ParseHex(parts...)
	if err != nil {
		panic(err)
	}
	return data
}
