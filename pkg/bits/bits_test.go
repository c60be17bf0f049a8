package bits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSingleBits(t *testing.T) {
	tests := []struct {
		name    string
		b       byte
		n       uint
		mask    byte
		set     bool
		raised  byte
		lowered byte
	}{
		{"b1 of 0xA5", 0xA5, 1, 0x01, true, 0xA5, 0xA4},
		{"b7 of 0xA5", 0xA5, 7, 0x40, false, 0xE5, 0xA5},
		{"b8 of 0x7F", 0x7F, 8, 0x80, false, 0xFF, 0x7F},
		{"b5 of zero", 0x00, 5, 0x10, false, 0x10, 0x00},
		{"Position 0", 0xFF, 0, 0x00, false, 0xFF, 0xFF},
		{"Position 9", 0xFF, 9, 0x00, false, 0xFF, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []any{Bit(tt.n), IsSet(tt.b, tt.n), Set(tt.b, tt.n), Clear(tt.b, tt.n)}
			want := []any{tt.mask, tt.set, tt.raised, tt.lowered}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Bit, IsSet, Set, Clear mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name      string
		b         byte
		high, low uint
		want      byte
	}{
		{"SELECT occurrence", 0x0E, 2, 1, 2},
		{"SELECT control", 0x0C, 4, 3, 3},
		{"READ RECORD SFI", 0x0C, 8, 4, 1},
		{"Secure messaging", 0x6C, 4, 3, 3},
		{"Single bit", 0x40, 7, 7, 1},
		{"Whole byte", 0xA5, 8, 1, 0xA5},
		{"Reversed", 0xFF, 1, 4, 0},
		{"Out of byte", 0xFF, 9, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRange(tt.b, tt.high, tt.low); got != tt.want {
				t.Errorf("GetRange(%02X, %d, %d) = %d; want %d", tt.b, tt.high, tt.low, got, tt.want)
			}
		})
	}
}

func TestUint16(t *testing.T) {
	buf := make([]byte, 6)
	off := PutUint16(buf, 0, 0x0100)
	off = PutUint16(buf, off, 0x7FFF)
	off = PutUint16(buf, off, 0)

	if off != len(buf) {
		t.Errorf("final offset = %d; want %d", off, len(buf))
	}
	if diff := cmp.Diff([]byte{0x01, 0x00, 0x7F, 0xFF, 0x00, 0x00}, buf); diff != "" {
		t.Errorf("PutUint16 mismatch (-want +got):\n%s", diff)
	}
	got := []int{Uint16(buf, 0), Uint16(buf, 2), Uint16(buf, 1)}
	if diff := cmp.Diff([]int{0x0100, 0x7FFF, 0x007F}, got); diff != "" {
		t.Errorf("Uint16 mismatch (-want +got):\n%s", diff)
	}
}
