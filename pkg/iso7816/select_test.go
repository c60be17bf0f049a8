package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/cardsim/pkg/tlv"
)

func TestNewSelectCommand(t *testing.T) {
	cls, _ := NewClass(0x00)
	ch2, _ := NewClass(0x02)

	tests := []struct {
		name string
		cmd  *CommandAPDU
		want []byte
	}{
		{"By AID, data without Le", SelectByAID(cls, tlv.Hex("A0 00 00 00 62 03 01")), tlv.Hex("00 A4 04 00 07 A0 00 00 00 62 03 01")},
		{"On channel 2", SelectByAID(ch2, tlv.Hex("A0 00 00 00 62")), tlv.Hex("02 A4 04 00 05 A0 00 00 00 62")},
		{"Master file", SelectMF(cls), tlv.Hex("00 A4 00 00 00")},
		{"Next FCP", NewSelectCommand(cls, SelectByFileID, NextOccurrence, ReturnFCP, tlv.Hex("3F 00")), tlv.Hex("00 A4 00 06 02 3F 00")},
		{"No data, no Le", NewSelectCommand(cls, SelectParentDF, FirstOrOnlyOccurrence, ReturnNoData, nil), tlv.Hex("00 A4 03 0C")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("encoding mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSelectP2(t *testing.T) {
	tests := []struct {
		p2       byte
		wantCtrl SelectionControl
		wantOcc  FileOccurrence
		wantText string
	}{
		{0x00, ReturnFCI, FirstOrOnlyOccurrence, "FCI/first"},
		{0x0C, ReturnNoData, FirstOrOnlyOccurrence, "no data/first"},
		{0x06, ReturnFCP, NextOccurrence, "FCP/next"},
		{0xFB, ReturnFMD, LastOccurrence, "FMD/last"},
	}

	for _, tt := range tests {
		t.Run(tt.wantText, func(t *testing.T) {
			ctrl, occ := DecodeSelectP2(tt.p2)
			if ctrl != tt.wantCtrl || occ != tt.wantOcc {
				t.Errorf("DecodeSelectP2(%02X) = %v, %v; want %v, %v", tt.p2, ctrl, occ, tt.wantCtrl, tt.wantOcc)
			}
			if got := ctrl.String() + "/" + occ.String(); got != tt.wantText {
				t.Errorf("String() = %q; want %q", got, tt.wantText)
			}
		})
	}
}

func TestSelectionMethod_String(t *testing.T) {
	if got := SelectByDFName.String(); got != "by DF name" {
		t.Errorf("SelectByDFName = %q", got)
	}
	if got := SelectionMethod(0x7F).String(); got != "SelectionMethod(7F)" {
		t.Errorf("unknown method = %q", got)
	}
}
