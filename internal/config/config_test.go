package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/cardsim/internal/testutil/testlog"
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/tlv"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg, cmp.AllowUnexported(aid.AID{})); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
protocol = "T=CL"
buffer_size = 512
warning_status_keeps_data = true

[[applet]]
kind = "directory"
aid = "A0 00 00 00 62 00 01"
select = true

[[applet]]
kind = "Wallet"
aid = "A0:00:00:00:62:01"
instance_aid = "A0 00 00 00 62 01 01"
params = "A0 00 00 00 62 02"

[[applet]]
kind = "purse"
aid = "A0 00 00 00 62 02"
install = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Protocol != apdu.ProtocolTCL {
		t.Errorf("protocol = %v; want T=CL", cfg.Protocol)
	}
	if cfg.BufferSize != 512 {
		t.Errorf("buffer_size = %d; want 512", cfg.BufferSize)
	}
	if !cfg.WarningStatusKeepsData {
		t.Error("warning_status_keeps_data not applied")
	}

	want := []Applet{
		{Kind: "directory", AID: aid.MustParseHex("A0 00 00 00 62 00 01"), Install: true, Select: true},
		{
			Kind:        "wallet",
			AID:         aid.MustParseHex("A0 00 00 00 62 01"),
			InstanceAID: aid.MustParseHex("A0 00 00 00 62 01 01"),
			Params:      tlv.Hex("A0 00 00 00 62 02"),
			Install:     true,
		},
		{Kind: "purse", AID: aid.MustParseHex("A0 00 00 00 62 02")},
	}
	if diff := cmp.Diff(want, cfg.Applets, cmp.AllowUnexported(aid.AID{})); diff != "" {
		t.Errorf("applets mismatch (-want +got):\n%s", diff)
	}

	cc := cfg.CardConfig()
	if cc.NonAbortingStatus == nil || !cc.NonAbortingStatus(0x6283) {
		t.Error("CardConfig should keep data on warnings")
	}
	if cc.Transfer.BufferSize != 512 || cc.Transfer.Protocol != apdu.ProtocolTCL {
		t.Errorf("transfer config = %+v", cc.Transfer)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Syntax", `protocol = `, "load card config"},
		{"Unknown key", `speed = 9600`, "unknown config key"},
		{"Bad protocol", `protocol = "T=2"`, "parse protocol"},
		{"Small buffer", `buffer_size = 64`, "below minimum"},
		{"Unknown kind", "[[applet]]\nkind = \"tetris\"\naid = \"A0 00 00 00 01\"", "unknown kind"},
		{"Missing aid", "[[applet]]\nkind = \"echo\"", "missing aid"},
		{"Short aid", "[[applet]]\nkind = \"echo\"\naid = \"A0 00\"", "aid"},
		{"Bad params", "[[applet]]\nkind = \"echo\"\naid = \"A0 00 00 00 01\"\nparams = \"ZZ\"", "params"},
		{"Duplicate", "[[applet]]\nkind = \"echo\"\naid = \"A0 00 00 00 01\"\n[[applet]]\nkind = \"echo\"\naid = \"A0 00 00 00 01\"", "duplicate aid"},
		{"Select without install", "[[applet]]\nkind = \"echo\"\naid = \"A0 00 00 00 01\"\ninstall = false\nselect = true", "select requires install"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestProvision(t *testing.T) {
	cfg, err := Parse(`
[[applet]]
kind = "purse"
aid = "A0 00 00 00 62 02"
params = "00 20"

[[applet]]
kind = "wallet"
aid = "A0 00 00 00 62 01"
params = "A0 00 00 00 62 02"
select = true

[[applet]]
kind = "echo"
aid = "A0 00 00 00 62 03"
install = false
`)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	d := card.New(cfg.CardConfig(), testlog.Start(t))
	if err := cfg.Provision(d); err != nil {
		t.Fatalf("provision: %v", err)
	}

	if want := aid.MustParseHex("A0 00 00 00 62 01"); !d.Current().Equal(want) {
		t.Errorf("Current() = %s; want %s", d.Current(), want)
	}
	if diff := cmp.Diff(tlv.Hex("00 1F 90 00"), d.Transmit(tlv.Hex("80 54 00 01 02"))); diff != "" {
		t.Errorf("pay mismatch (-want +got):\n%s", diff)
	}

	rec, ok := d.Lookup(aid.MustParseHex("A0 00 00 00 62 03"))
	if !ok || rec.State != card.LifeCycleLoaded {
		t.Errorf("echo record = %+v, %v; want loaded only", rec, ok)
	}

	if err := cfg.Provision(d); err == nil {
		t.Error("provisioning twice must fail on duplicate load")
	}
}
