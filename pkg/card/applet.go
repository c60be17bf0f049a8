package card

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
)

// Applet is an installed application instance.
//
// Process handles one command. Returning an *iso7816.Error (for instance from
// iso7816.Throw) answers the command with the carried status word; any other error
// is answered SW_ERR_UNKNOWN.
type Applet interface {
	Process(t *apdu.Transfer) error
	// Select is called when the applet becomes current. Returning false refuses
	// the selection.
	Select() bool
	// Deselect is called when another applet is selected or the applet is deleted.
	Deselect()
}

// Uninstaller is implemented by applets that release resources when deleted.
type Uninstaller interface {
	Uninstall() error
}

// ShareableProvider is implemented by applets exposing an object to other
// applets. The returned value is invoked through a Proxy; nil refuses the request.
type ShareableProvider interface {
	Shareable(client aid.AID, param byte) any
}

// InstallParams is handed to a factory's install hook.
type InstallParams struct {
	// InstanceAID is the AID the instance should register under. The zero value
	// registers under the AID of the load record.
	InstanceAID aid.AID
	// Data is the application specific parameter block.
	Data []byte
}

// Factory creates applet instances from a load record. Install either calls
// rt.Register itself, to pick the instance AID, or returns the instance and
// lets the registry register it under params.InstanceAID.
type Factory interface {
	Install(rt Runtime, params InstallParams) (Applet, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(rt Runtime, params InstallParams) (Applet, error)

func (f FactoryFunc) Install(rt Runtime, params InstallParams) (Applet, error) {
	return f(rt, params)
}
