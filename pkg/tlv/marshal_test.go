package tlv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type fciProprietary struct {
	Label []byte `tlv:"50" fmt:"ascii"`
	SFI   []byte `tlv:"88"`
}

type fciBody struct {
	DFName      []byte          `tlv:"84"`
	Proprietary *fciProprietary `tlv:"A5"`
	Unknown     []bertlv.TLV    `tlv:",unknown"`
}

type fciTemplate struct {
	FCI fciBody `tlv:"6F"`
}

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want []byte
	}{
		{
			name: "Nested FCI",
			src: fciTemplate{FCI: fciBody{
				DFName:      Hex("A0 00 00 00 03 10 10"),
				Proprietary: &fciProprietary{Label: []byte("VISA"), SFI: []byte{0x01}},
			}},
			want: Hex(
				"6F 14",
				"84 07 A0000000031010",
				"A5 09",
				"50 04 56495341",
				"88 01 01",
			),
		},
		{
			name: "Empty fields and nil pointers are omitted",
			src:  fciTemplate{FCI: fciBody{DFName: Hex("A0 00 00 00 03")}},
			want: Hex("6F 07", "84 05 A000000003"),
		},
		{
			name: "Unknown packets are appended",
			src: &fciBody{
				DFName:  []byte{0x01},
				Unknown: []bertlv.TLV{{Tag: "9F01", Value: []byte{0xAA}}},
			},
			want: Hex("84 01 01", "9F01 01 AA"),
		},
		{
			name: "Nothing to encode",
			src:  fciBody{},
			want: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.src)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshal_UnmarshalAgree(t *testing.T) {
	src := fciBody{
		DFName:      Hex("A0 00 00 00 04 10 10"),
		Proprietary: &fciProprietary{Label: []byte("MasterCard")},
	}

	raw, err := Marshal(src)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back fciBody
	if err := Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(src, back); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshal_Errors(t *testing.T) {
	if _, err := Marshal(42); err == nil || !strings.Contains(err.Error(), "struct") {
		t.Errorf("expected struct error, got %v", err)
	}

	bad := struct {
		Label string `tlv:"50"`
	}{Label: "not hex"}
	if _, err := Marshal(bad); err == nil {
		t.Error("expected hex error for string field")
	}
}
