package applets

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/cardsim/internal/testutil/testlog"
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/tlv"
)

func newCard(t *testing.T) *card.Dispatcher {
	t.Helper()
	return card.New(card.DefaultConfig(), testlog.Start(t))
}

func install(t *testing.T, d *card.Dispatcher, kind, hexAID string, params []byte) aid.AID {
	t.Helper()
	f, err := Factory(kind)
	if err != nil {
		t.Fatal(err)
	}
	a := aid.MustParseHex(hexAID)
	if err := d.Load(a, f); err != nil {
		t.Fatalf("Load(%s) failed: %v", a, err)
	}
	inst, err := d.Install(a, card.InstallParams{Data: params})
	if err != nil {
		t.Fatalf("Install(%s) failed: %v", a, err)
	}
	return inst
}

func selectAPDU(a aid.AID) []byte {
	raw := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(a.Len())}, a.Bytes()...)
	return append(raw, 0x00)
}

func exchange(t *testing.T, d *card.Dispatcher, raw []byte, want []byte) {
	t.Helper()
	if diff := cmp.Diff(want, d.Transmit(raw)); diff != "" {
		t.Errorf("%X: response mismatch (-want +got):\n%s", raw, diff)
	}
}

func TestFactory(t *testing.T) {
	want := []string{"counter", "directory", "echo", "purse", "wallet"}
	if diff := cmp.Diff(want, Kinds()); diff != "" {
		t.Errorf("Kinds() mismatch (-want +got):\n%s", diff)
	}
	if _, err := Factory("ECHO"); err != nil {
		t.Errorf("Factory is case-insensitive: %v", err)
	}
	if _, err := Factory("tetris"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEcho(t *testing.T) {
	d := newCard(t)
	a := install(t, d, "echo", "A0 00 00 00 40 01", nil)

	exchange(t, d, selectAPDU(a), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 10 00 00 03 01 02 03 00"), tlv.Hex("01 02 03 90 00"))
	exchange(t, d, tlv.Hex("80 10 00 00 00"), tlv.Hex("90 00"))

	data := bytes.Repeat([]byte{0xC3}, 1000)
	raw := append(tlv.Hex("80 10 00 00 00 03 E8"), data...)
	raw = append(raw, 0x03, 0xE8)
	exchange(t, d, raw, append(bytes.Clone(data), 0x90, 0x00))
}

func TestCounter(t *testing.T) {
	d := newCard(t)
	c := install(t, d, "counter", "A0 00 00 00 41 01", tlv.Hex("00 10"))
	other := install(t, d, "echo", "A0 00 00 00 41 02", nil)

	exchange(t, d, selectAPDU(c), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 02 00 05"), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 06 00 00 04"), tlv.Hex("00 15 00 01 90 00"))

	exchange(t, d, tlv.Hex("80 04 00 30"), tlv.Hex("69 85"))
	exchange(t, d, tlv.Hex("80 02 7F FF"), tlv.Hex("6A 80"))
	exchange(t, d, tlv.Hex("80 06 00 00 04"), tlv.Hex("00 15 00 01 90 00"))

	exchange(t, d, tlv.Hex("00 06 00 00 04"), tlv.Hex("6E 00"))
	exchange(t, d, tlv.Hex("80 FF 00 00"), tlv.Hex("6D 00"))

	d.Select(other)
	d.Select(c)
	exchange(t, d, tlv.Hex("80 06 00 00 04"), tlv.Hex("00 15 00 00 90 00"))
	if d.TransactionDepth() != 0 {
		t.Error("counter left a transaction open")
	}
}

func TestDirectory(t *testing.T) {
	d := newCard(t)
	dir := install(t, d, "directory", "A0 00 00 00 42 00 01", nil)
	install(t, d, "echo", "A0 00 00 00 42 01", nil)
	install(t, d, "counter", "A0 00 00 00 42 02", nil)

	fci := tlv.Hex(
		"6F 19",
		"84 07 A0 00 00 00 42 00 01",
		"A5 0E",
		"50 09", "4449524543544F5259",
		"88 01 01",
	)
	exchange(t, d, selectAPDU(dir), append(fci, 0x90, 0x00))

	noData := append([]byte{0x00, 0xA4, 0x04, 0x0C, 0x07}, dir.Bytes()...)
	exchange(t, d, noData, tlv.Hex("90 00"))

	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{"First record", tlv.Hex("00 B2 01 0C 00"), tlv.Hex("70 0A 61 08 4F 06 A0 00 00 00 42 01 90 00")},
		{"Second record, current file", tlv.Hex("00 B2 02 04 00"), tlv.Hex("70 0A 61 08 4F 06 A0 00 00 00 42 02 90 00")},
		{"Past the end", tlv.Hex("00 B2 03 0C 00"), tlv.Hex("6A 83")},
		{"Record zero", tlv.Hex("00 B2 00 0C 00"), tlv.Hex("6A 86")},
		{"Read all mode", tlv.Hex("00 B2 01 0D 00"), tlv.Hex("6A 86")},
		{"Other SFI", tlv.Hex("00 B2 01 14 00"), tlv.Hex("6A 82")},
		{"Unknown instruction", tlv.Hex("00 CA 00 00 00"), tlv.Hex("6D 00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchange(t, d, tt.raw, tt.want)
		})
	}

	resp := d.Transmit(tlv.Hex("00 B2 01 0C 00"))
	var rec dirRecordTemplate
	if err := tlv.Unmarshal(resp[:len(resp)-2], &rec); err != nil {
		t.Fatalf("record is not a 70 template: %v", err)
	}
	if n := len(rec.Record.Entries); n != 1 || !bytes.Equal(rec.Record.Entries[0].AID, tlv.Hex("A0 00 00 00 42 01")) {
		t.Errorf("record entries = %+v", rec.Record.Entries)
	}
}

func TestDirectory_Client(t *testing.T) {
	d := newCard(t)
	dir := install(t, d, "directory", "A0 00 00 00 45 00 01", nil)
	echo := install(t, d, "echo", "A0 00 00 00 45 01", nil)

	client := iso7816.NewClient(card.NewRouter(d))
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectByAID(cls, dir.RID()))
	if err != nil {
		t.Fatalf("SELECT failed: %v", err)
	}
	fci, sw := trace.Result()
	if sw != iso7816.SW_NO_ERROR {
		t.Fatalf("SELECT status = %v", sw)
	}
	if name, _ := tlv.GetValue(fci, 0x6F, 0x84); !bytes.Equal(name, dir.Bytes()) {
		t.Errorf("DF name = %X; want %X", name, dir.Bytes())
	}

	var found [][]byte
	for n := byte(1); n < 10; n++ {
		trace, err := client.Send(iso7816.ReadRecord(cls, DirectorySFI, n))
		if err != nil {
			t.Fatalf("READ RECORD %d failed: %v", n, err)
		}
		data, sw := trace.Result()
		if sw == iso7816.SW_ERR_RECORD_NOT_FOUND {
			break
		}
		a, _ := tlv.GetValue(data, 0x70, 0x61, 0x4F)
		found = append(found, a)
	}
	if diff := cmp.Diff([][]byte{echo.Bytes()}, found); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}

	trace, _ = client.Send(iso7816.ReadAllRecords(cls, DirectorySFI, 1))
	if _, sw := trace.Result(); sw != iso7816.SW_ERR_INCORRECT_PARAMS_P1P2 {
		t.Errorf("read all = %v; want 6A86", sw)
	}
}

func TestPurseAndWallet(t *testing.T) {
	d := newCard(t)
	purse := install(t, d, "purse", "A0 00 00 00 43 01", tlv.Hex("01 00"))
	wallet := install(t, d, "wallet", "A0 00 00 00 43 02", purse.Bytes())
	stranger := install(t, d, "wallet", "A0 00 00 00 99 01", purse.Bytes())

	exchange(t, d, selectAPDU(wallet), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 54 00 10 02"), tlv.Hex("00 F0 90 00"))
	exchange(t, d, tlv.Hex("80 54 10 00 02"), tlv.Hex("69 85"))
	if !d.Current().Equal(wallet) {
		t.Errorf("Current() = %s after a proxied call; want %s", d.Current(), wallet)
	}

	exchange(t, d, selectAPDU(stranger), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 54 00 01 02"), tlv.Hex("69 85"))

	exchange(t, d, selectAPDU(purse), tlv.Hex("90 00"))
	exchange(t, d, tlv.Hex("80 50 00 00 02"), tlv.Hex("00 F0 90 00"))
	exchange(t, d, tlv.Hex("80 52 00 10 02"), tlv.Hex("01 00 90 00"))
	exchange(t, d, tlv.Hex("80 52 FF FF 02"), tlv.Hex("6A 80"))

	if d.TransactionDepth() != 0 {
		t.Error("wallet left a transaction open")
	}
}

func TestWallet_BadParams(t *testing.T) {
	d := newCard(t)
	f, _ := Factory("wallet")
	a := aid.MustParseHex("A0 00 00 00 44 01")
	d.Load(a, f)

	if _, err := d.Install(a, card.InstallParams{Data: []byte{0x01}}); err == nil {
		t.Error("wallet without a purse AID must not install")
	}
}
