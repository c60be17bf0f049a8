package card

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/transient"
)

// Runtime is the view of the card an applet gets during install and command
// processing. Its methods run inside the Dispatcher's critical section and must
// not be called from other goroutines.
type Runtime interface {
	// Register makes the instance being installed selectable under a, or under the
	// load record AID when a is zero.
	Register(a aid.AID, app Applet) (aid.AID, error)

	// SelectingApplet reports whether the current command is the SELECT that made
	// the applet current.
	SelectingApplet() bool
	CurrentAID() aid.AID
	PreviousAID() aid.AID
	RegisteredAIDs() []aid.AID

	MakeTransient(kind transient.Kind, n int, event transient.Event) (*transient.Array, error)
	MakeTransientBytes(n int, event transient.Event) ([]byte, error)
	TransientEvent(h *transient.Array) transient.Event

	BeginTransaction() error
	CommitTransaction() error
	AbortTransaction() error
	TransactionDepth() int
	// OnAbort records an undo step replayed, most recent first, if the open
	// transaction is aborted.
	OnAbort(undo func()) error

	// Shareable asks the applet registered under server for its shared object.
	Shareable(server aid.AID, param byte) (*Proxy, error)
}

type cardRuntime struct {
	d *Dispatcher
}

func (r cardRuntime) Register(a aid.AID, app Applet) (aid.AID, error) {
	return r.d.registry.Register(a, app)
}

func (r cardRuntime) SelectingApplet() bool { return r.d.selecting }
func (r cardRuntime) CurrentAID() aid.AID   { return r.d.current }
func (r cardRuntime) PreviousAID() aid.AID  { return r.d.previous }

func (r cardRuntime) RegisteredAIDs() []aid.AID {
	return r.d.registry.Registered()
}

func (r cardRuntime) MakeTransient(kind transient.Kind, n int, event transient.Event) (*transient.Array, error) {
	return r.d.transient.Allocate(kind, n, event)
}

func (r cardRuntime) MakeTransientBytes(n int, event transient.Event) ([]byte, error) {
	buf, _, err := r.d.transient.MakeBytes(n, event)
	return buf, err
}

func (r cardRuntime) TransientEvent(h *transient.Array) transient.Event {
	return r.d.transient.Event(h)
}

func (r cardRuntime) BeginTransaction() error  { return r.d.beginTransaction() }
func (r cardRuntime) CommitTransaction() error { return r.d.commitTransaction() }
func (r cardRuntime) AbortTransaction() error  { return r.d.abortTransaction() }
func (r cardRuntime) TransactionDepth() int    { return r.d.depth }

func (r cardRuntime) OnAbort(undo func()) error {
	if r.d.depth == 0 {
		return iso7816.NewError(iso7816.KindNotInProgress, 0, "undo step outside a transaction")
	}
	r.d.journal = append(r.d.journal, undo)
	return nil
}

func (r cardRuntime) Shareable(server aid.AID, param byte) (*Proxy, error) {
	return r.d.shareable(server, param)
}
