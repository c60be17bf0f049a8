package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewInstruction(t *testing.T) {
	tests := []struct {
		name    string
		ins     InsCode
		want    Instruction
		wantErr bool
	}{
		{"SELECT", INS_SELECT, Instruction{Raw: INS_SELECT}, false},
		{"READ BINARY with TLV", INS_READ_BINARY_BER, Instruction{Raw: INS_READ_BINARY_BER, IsBERTLV: true}, false},
		{"Proprietary odd", 0x11, Instruction{Raw: 0x11, IsBERTLV: true}, false},
		{"Lowest", 0x00, Instruction{Raw: 0x00}, false},
		{"Highest", 0xFF, Instruction{Raw: 0xFF, IsBERTLV: true}, false},
		{"Procedure byte range", 0x61, Instruction{}, true},
		{"Status word range", 0x9F, Instruction{}, true},
		{"6X low edge", 0x60, Instruction{}, true},
		{"Below 9X", 0x8F, Instruction{Raw: 0x8F, IsBERTLV: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInstruction(tt.ins)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewInstruction(%02X) error = %v, wantErr %v", byte(tt.ins), err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NewInstruction(%02X) mismatch (-want +got):\n%s", byte(tt.ins), diff)
			}
		})
	}
}

func TestInsCode_String(t *testing.T) {
	got := []string{
		INS_SELECT.String(),
		INS_GET_RESPONSE.String(),
		INS_READ_BINARY_BER.String(),
		INS_CREATE_APPLET.String(),
		InsCode(0x3C).String(),
	}
	want := []string{"SELECT", "GET RESPONSE", "READ BINARY (BER-TLV)", "CREATE APPLET", "InsCode(3C)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}
}

func TestInstruction_Verbose(t *testing.T) {
	sel, _ := NewInstruction(INS_SELECT)
	read, _ := NewInstruction(INS_READ_BINARY_BER)

	got := []string{sel.Verbose(), read.Verbose()}
	want := []string{"INS A4 SELECT", "INS B1 READ BINARY (BER-TLV), TLV data"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Verbose() mismatch (-want +got):\n%s", diff)
	}
}
