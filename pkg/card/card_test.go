package card

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
)

// testApplet is a configurable applet. A nil process answers 9000 with no data.
type testApplet struct {
	rt        Runtime
	process   func(rt Runtime, t *apdu.Transfer) error
	onSelect  func() bool
	deselects int
	uninstall int
	last      *apdu.Transfer
	shared    any
}

func (a *testApplet) Process(t *apdu.Transfer) error {
	a.last = t
	if a.process == nil {
		return nil
	}
	return a.process(a.rt, t)
}

func (a *testApplet) Select() bool {
	if a.onSelect == nil {
		return true
	}
	return a.onSelect()
}

func (a *testApplet) Deselect() { a.deselects++ }

func (a *testApplet) Uninstall() error {
	a.uninstall++
	return nil
}

func (a *testApplet) Shareable(client aid.AID, param byte) any {
	return a.shared
}

// factoryFor registers app under the instance AID of the install parameters.
func factoryFor(app *testApplet) Factory {
	return FactoryFunc(func(rt Runtime, p InstallParams) (Applet, error) {
		app.rt = rt
		if _, err := rt.Register(p.InstanceAID, app); err != nil {
			return nil, err
		}
		return app, nil
	})
}

func newTestCard() *Dispatcher {
	return New(DefaultConfig(), zerolog.Nop())
}

func mustInstall(t *testing.T, d *Dispatcher, hexAID string, app *testApplet) aid.AID {
	t.Helper()
	a := aid.MustParseHex(hexAID)
	if err := d.Load(a, factoryFor(app)); err != nil {
		t.Fatalf("Load(%s) failed: %v", a, err)
	}
	if _, err := d.Install(a, InstallParams{}); err != nil {
		t.Fatalf("Install(%s) failed: %v", a, err)
	}
	return a
}

// echo returns everything it receives, pulling extended bodies with ReceiveBytes.
func echo(_ Runtime, t *apdu.Transfer) error {
	n, err := t.SetIncomingAndReceive()
	if err != nil {
		return err
	}
	off, _ := t.OffsetCdata()

	var data []byte
	for n > 0 {
		data = append(data, t.Buffer()[off:off+n]...)
		if n, err = t.ReceiveBytes(off); err != nil {
			return err
		}
	}

	if _, err := t.SetOutgoing(); err != nil {
		return err
	}
	if err := t.SetOutgoingLength(len(data)); err != nil {
		return err
	}
	return t.SendBytesLong(data, 0, len(data))
}
