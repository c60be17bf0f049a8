package card

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// Proxy forwards calls to an object shared by another applet. Each Invoke runs with
// the server applet as the current context and the caller as the previous one.
type Proxy struct {
	d      *Dispatcher
	server aid.AID
	object any
}

// Server returns the AID of the applet owning the shared object.
func (p *Proxy) Server() aid.AID { return p.server }

// Invoke calls fn with the shared object in the server's context. The context
// captured on entry is restored on exit, including when fn panics.
func (p *Proxy) Invoke(fn func(object any) error) error {
	prev, cur := p.d.previous, p.d.current
	p.d.previous, p.d.current = cur, p.server
	defer func() {
		p.d.previous, p.d.current = prev, cur
	}()
	return fn(p.object)
}

// Call invokes fn on the shared object asserted to T.
func Call[T any, R any](p *Proxy, fn func(T) (R, error)) (R, error) {
	var out R
	err := p.Invoke(func(object any) error {
		obj, ok := object.(T)
		if !ok {
			return iso7816.NewError(iso7816.KindIllegalUse, iso7816.SW_ERR_CMD_INCOMPATIBLE_FILE,
				"shared object of %s is %T", p.server, object)
		}
		var err error
		out, err = fn(obj)
		return err
	})
	return out, err
}

func (d *Dispatcher) shareable(server aid.AID, param byte) (*Proxy, error) {
	rec, ok := d.registry.Lookup(server)
	if !ok || rec.State != LifeCycleRegistered {
		return nil, unknownAID(server)
	}
	provider, ok := rec.Applet.(ShareableProvider)
	if !ok {
		return nil, iso7816.NewError(iso7816.KindIllegalUse, iso7816.SW_ERR_COND_OF_USE_NOT_SAT,
			"applet %s shares nothing", server)
	}

	client := d.current
	p := &Proxy{d: d, server: server}
	err := p.Invoke(func(any) error {
		p.object = provider.Shareable(client, param)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.object == nil {
		return nil, iso7816.NewError(iso7816.KindIllegalUse, iso7816.SW_ERR_COND_OF_USE_NOT_SAT,
			"applet %s refused param %02X", server, param)
	}
	return p, nil
}
