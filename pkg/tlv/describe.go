package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders BER-TLV data as an indented tree, one element per line.
// Primitive values print in hex, followed by their text when every byte is
// printable ASCII.
func Describe(data []byte) (string, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeTree(&sb, packets, 0)
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func writeTree(sb *strings.Builder, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		if len(p.TLVs) > 0 {
			fmt.Fprintf(sb, "%s%s\n", indent, strings.ToUpper(p.Tag))
			writeTree(sb, p.TLVs, depth+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s %X", indent, strings.ToUpper(p.Tag), p.Value)
		if len(p.Value) > 0 && MakeSafeASCII(p.Value) == string(p.Value) {
			fmt.Fprintf(sb, " %q", p.Value)
		}
		sb.WriteString("\n")
	}
}

// MakeSafeASCII replaces every byte outside printable ASCII with '.'.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
