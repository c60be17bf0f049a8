package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDescribe(t *testing.T) {
	fci := Hex(
		"6F 19",
		"84 07 A0 00 00 00 62 00 01",
		"A5 0E",
		"50 09", "4449524543544F5259",
		"88 01 01",
	)
	want := "6F\n" +
		"  84 A0000000620001\n" +
		"  A5\n" +
		"    50 4449524543544F5259 \"DIRECTORY\"\n" +
		"    88 01"

	got, err := Describe(fci)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Describe mismatch (-want +got):\n%s", diff)
	}

	if _, err := Describe(Hex("6F 10 84")); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestMakeSafeASCII(t *testing.T) {
	got := MakeSafeASCII([]byte{'V', 'I', 'S', 'A', 0x00, 0x7F, ' '})
	if want := "VISA.. "; got != want {
		t.Errorf("MakeSafeASCII() = %q; want %q", got, want)
	}
}
