package applets

import (
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/card"
)

// Echo answers every command with its data field.
type Echo struct {
	rt card.Runtime
}

func NewEcho() card.Factory {
	return card.FactoryFunc(func(rt card.Runtime, _ card.InstallParams) (card.Applet, error) {
		return &Echo{rt: rt}, nil
	})
}

func (e *Echo) Select() bool { return true }
func (e *Echo) Deselect()    {}

func (e *Echo) Process(t *apdu.Transfer) error {
	if isSelect(e.rt, t) {
		return nil
	}

	n, err := t.SetIncomingAndReceive()
	if err != nil {
		return err
	}
	off, err := t.OffsetCdata()
	if err != nil {
		return err
	}

	data := make([]byte, 0, t.IncomingRemaining()+n)
	for n > 0 {
		data = append(data, t.Buffer()[off:off+n]...)
		if n, err = t.ReceiveBytes(off); err != nil {
			return err
		}
	}
	return respond(t, data)
}
