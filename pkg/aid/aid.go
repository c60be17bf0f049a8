// Package aid implements ISO/IEC 7816-5 Application Identifiers.
//
// An AID is 5 to 16 bytes long: a 5-byte Registered application provider IDentifier
// (RID) followed by an optional Proprietary application Identifier eXtension (PIX).
// Two comparisons matter to a card runtime:
//
//   - exact equality, used for registry keys;
//   - partial equality, used by SELECT by DF name where the terminal may send only
//     the first N bytes of the AID.
//
// Ordering is plain lexicographic byte order, which puts a strict prefix before any
// longer AID it begins.
package aid

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// MinLength is the RID length, the shortest legal AID.
	MinLength = 5
	// MaxLength is the longest legal AID (RID + 11 byte PIX).
	MaxLength = 16
)

// AID is an immutable application identifier.
// The zero value is "no AID" and is reported by IsZero.
type AID struct {
	b string
}

// New validates and copies raw into an AID.
func New(raw []byte) (AID, error) {
	if len(raw) < MinLength || len(raw) > MaxLength {
		return AID{}, fmt.Errorf("aid: invalid length %d (want %d..%d)", len(raw), MinLength, MaxLength)
	}
	return AID{b: string(raw)}, nil
}

// FromBytes reads an AID of length n at off in buf.
func FromBytes(buf []byte, off, n int) (AID, error) {
	if off < 0 || n < 0 || off+n > len(buf) {
		return AID{}, fmt.Errorf("aid: range [%d:%d] outside buffer of %d bytes", off, off+n, len(buf))
	}
	return New(buf[off : off+n])
}

// ParseHex decodes a hex AID, ignoring spaces and colons ("A0:00:00:00:62").
func ParseHex(s string) (AID, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return AID{}, fmt.Errorf("aid: %w", err)
	}
	return New(raw)
}

// MustParseHex is ParseHex for constants and tests; it panics on error.
func MustParseHex(s string) AID {
	a, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Bytes returns a copy of the identifier bytes.
func (a AID) Bytes() []byte {
	return []byte(a.b)
}

// Len returns the identifier length in bytes.
func (a AID) Len() int {
	return len(a.b)
}

// IsZero reports whether a is the zero "no AID" value.
func (a AID) IsZero() bool {
	return a.b == ""
}

// RID returns the registered provider part (first 5 bytes).
func (a AID) RID() []byte {
	if len(a.b) < MinLength {
		return nil
	}
	return []byte(a.b[:MinLength])
}

// PIX returns the proprietary extension (may be empty).
func (a AID) PIX() []byte {
	if len(a.b) <= MinLength {
		return nil
	}
	return []byte(a.b[MinLength:])
}

// Equal reports byte-exact equality.
func (a AID) Equal(other AID) bool {
	return a.b == other.b
}

// EqualBytes compares a against n bytes of buf at off.
func (a AID) EqualBytes(buf []byte, off, n int) bool {
	if off < 0 || n < 0 || off+n > len(buf) {
		return false
	}
	return a.b == string(buf[off:off+n])
}

// PartialEqual reports whether a begins with the given bytes. An empty prefix
// matches every AID, which is how an empty SELECT picks the first application.
func (a AID) PartialEqual(prefix []byte) bool {
	return strings.HasPrefix(a.b, string(prefix))
}

// RIDEqual reports whether both identifiers share the same RID.
func (a AID) RIDEqual(other AID) bool {
	return bytes.Equal(a.RID(), other.RID())
}

// Compare orders AIDs lexicographically; a strict prefix sorts first.
func Compare(a, b AID) int {
	return strings.Compare(a.b, b.b)
}

// String returns the upper-case hex form.
func (a AID) String() string {
	return strings.ToUpper(hex.EncodeToString([]byte(a.b)))
}
