package tlv

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type upperHex struct {
	Val string
}

func (c *upperHex) UnmarshalTLV(data []byte) error {
	c.Val = strings.ToUpper(hex.EncodeToString(data))
	return nil
}

type appEntry struct {
	AID   []byte `tlv:"4F"`
	Label []byte `tlv:"50"`
}

type record struct {
	Entries []appEntry   `tlv:"61"`
	Serial  string       `tlv:"5A"`
	Custom  upperHex     `tlv:"9F02"`
	Other   []bertlv.TLV `tlv:",unknown"`
}

type recordTemplate struct {
	Record *record `tlv:"70"`
}

func TestUnmarshal(t *testing.T) {
	raw := Hex(
		"70 24",
		"61 0A", "4F 05 A000000001", "50 01 41",
		"61 0A", "4F 05 A000000002", "50 01 42",
		"5A 02 1234",
		"9F02 01 AA",
		"DF01 01 BB",
	)

	var got recordTemplate
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	want := recordTemplate{Record: &record{
		Entries: []appEntry{
			{AID: Hex("A0 00 00 00 01"), Label: []byte("A")},
			{AID: Hex("A0 00 00 00 02"), Label: []byte("B")},
		},
		Serial: "1234",
		Custom: upperHex{Val: "AA"},
	}}
	if got.Record == nil {
		t.Fatal("template 70 not decoded")
	}
	other := got.Record.Other
	got.Record.Other = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unmarshal mismatch (-want +got):\n%s", diff)
	}
	if len(other) != 1 || !strings.EqualFold(other[0].Tag, "DF01") || !bytes.Equal(other[0].Value, []byte{0xBB}) {
		t.Errorf("unknown tags = %+v; want DF01 BB", other)
	}
}

func TestGetValue(t *testing.T) {
	fci := Hex(
		"6F 14",
		"84 07 A0000000031010",
		"A5 09", "50 04 56495341", "88 01 01",
	)

	tests := []struct {
		name string
		tag  uint
		path []uint
		want []byte
		err  error
	}{
		{"Top level", 0x6F, nil, fci[2:], nil},
		{"Nested", 0x6F, []uint{0x84}, Hex("A0 00 00 00 03 10 10"), nil},
		{"Two levels", 0x6F, []uint{0xA5, 0x50}, []byte("VISA"), nil},
		{"Missing", 0x6F, []uint{0x9F38}, nil, ErrTagNotFound},
		{"Missing at top", 0x70, nil, nil, ErrTagNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetValue(fci, tt.tag, tt.path...)
			if !errors.Is(err, tt.err) {
				t.Fatalf("GetValue error = %v; want %v", err, tt.err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetValue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	if err := Unmarshal(Hex("84 00"), record{}); err == nil || !strings.Contains(err.Error(), "pointer") {
		t.Errorf("expected pointer error, got %v", err)
	}
	var n int
	if err := Unmarshal(Hex("84 00"), &n); err == nil {
		t.Error("expected error for a non-struct target")
	}
	if err := Unmarshal(Hex("84 05 01"), &record{}); err == nil {
		t.Error("expected error for truncated data")
	}
}
