// Package config loads the TOML description of a simulated card: transport,
// buffer size and the applets to load, install and select at power up.
//
//	protocol = "T=1"
//	buffer_size = 261
//	warning_status_keeps_data = true
//
//	[[applet]]
//	kind = "directory"
//	aid = "A0 00 00 00 62 00 01"
//	select = true
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/applets"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/tlv"
)

// Applet describes one load record and, optionally, its instance.
type Applet struct {
	Kind        string
	AID         aid.AID
	InstanceAID aid.AID
	Params      []byte
	Install     bool
	Select      bool
}

// Config is a validated card description.
type Config struct {
	Protocol               apdu.Protocol
	BufferSize             int
	WarningStatusKeepsData bool
	Applets                []Applet
}

type fileApplet struct {
	Kind        string `toml:"kind"`
	AID         string `toml:"aid"`
	InstanceAID string `toml:"instance_aid"`
	Params      string `toml:"params"`
	Install     *bool  `toml:"install"`
	Select      bool   `toml:"select"`
}

type fileConfig struct {
	Protocol               string       `toml:"protocol"`
	BufferSize             int          `toml:"buffer_size"`
	WarningStatusKeepsData bool         `toml:"warning_status_keeps_data"`
	Applets                []fileApplet `toml:"applet"`
}

// Default is a T=1 card with the default buffer and no applets.
func Default() Config {
	return Config{
		Protocol:   apdu.ProtocolT1,
		BufferSize: apdu.DefaultBufferSize,
	}
}

// Load reads the TOML file at path over the defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load card config: %w", err)
	}
	return build(raw, meta)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse card config: %w", err)
	}
	return build(raw, meta)
}

func build(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("protocol") {
		p, err := apdu.ParseProtocol(raw.Protocol)
		if err != nil {
			return Config{}, fmt.Errorf("parse protocol: %w", err)
		}
		cfg.Protocol = p
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("warning_status_keeps_data") {
		cfg.WarningStatusKeepsData = raw.WarningStatusKeepsData
	}

	for i, fa := range raw.Applets {
		a, err := buildApplet(fa)
		if err != nil {
			return Config{}, fmt.Errorf("applet %d: %w", i, err)
		}
		cfg.Applets = append(cfg.Applets, a)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func buildApplet(fa fileApplet) (Applet, error) {
	a := Applet{
		Kind:    strings.ToLower(strings.TrimSpace(fa.Kind)),
		Install: true,
		Select:  fa.Select,
	}
	if fa.Install != nil {
		a.Install = *fa.Install
	}

	if strings.TrimSpace(fa.AID) == "" {
		return Applet{}, errors.New("missing aid")
	}
	var err error
	if a.AID, err = aid.ParseHex(fa.AID); err != nil {
		return Applet{}, fmt.Errorf("aid: %w", err)
	}
	if strings.TrimSpace(fa.InstanceAID) != "" {
		if a.InstanceAID, err = aid.ParseHex(fa.InstanceAID); err != nil {
			return Applet{}, fmt.Errorf("instance_aid: %w", err)
		}
	}
	if strings.TrimSpace(fa.Params) != "" {
		if a.Params, err = tlv.ParseHex(fa.Params); err != nil {
			return Applet{}, fmt.Errorf("params: %w", err)
		}
	}
	return a, nil
}

// Validate checks the values Load cannot check while decoding.
func (c Config) Validate() error {
	if c.BufferSize < apdu.MinBufferSize {
		return fmt.Errorf("buffer_size %d below minimum %d", c.BufferSize, apdu.MinBufferSize)
	}

	seen := make(map[aid.AID]bool)
	for i, a := range c.Applets {
		if _, err := applets.Factory(a.Kind); err != nil {
			return fmt.Errorf("applet %d: %w", i, err)
		}
		if a.AID.IsZero() {
			return fmt.Errorf("applet %d: missing aid", i)
		}
		if seen[a.AID] {
			return fmt.Errorf("applet %d: duplicate aid %s", i, a.AID)
		}
		seen[a.AID] = true
		if a.Select && !a.Install {
			return fmt.Errorf("applet %d: select requires install", i)
		}
	}
	return nil
}

// CardConfig returns the dispatcher settings.
func (c Config) CardConfig() card.Config {
	cc := card.Config{Transfer: apdu.Config{BufferSize: c.BufferSize, Protocol: c.Protocol}}
	if c.WarningStatusKeepsData {
		cc.NonAbortingStatus = card.WarningStatus
	}
	return cc
}

// Provision loads every applet into d, installs those marked install and selects
// the last one marked select.
func (c Config) Provision(d *card.Dispatcher) error {
	var errs []error
	for _, a := range c.Applets {
		f, err := applets.Factory(a.Kind)
		if err != nil {
			return err
		}
		if err := d.Load(a.AID, f); err != nil {
			return fmt.Errorf("load %s: %w", a.AID, err)
		}
		if !a.Install {
			continue
		}
		inst, err := d.Install(a.AID, card.InstallParams{InstanceAID: a.InstanceAID, Data: a.Params})
		if err != nil {
			return fmt.Errorf("install %s: %w", a.AID, err)
		}
		if a.Select && !d.Select(inst) {
			errs = append(errs, fmt.Errorf("select %s: refused", inst))
		}
	}
	return errors.Join(errs...)
}
