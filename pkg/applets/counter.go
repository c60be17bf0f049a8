package applets

import (
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/bits"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/transient"
)

// Counter instructions, CLA 80. P1-P2 carry the amount.
const (
	InsIncrement byte = 0x02
	InsDecrement byte = 0x04
	InsRead      byte = 0x06
)

const counterMax = 0x7FFF

// Counter keeps a persistent value and counts the updates made during the
// current selection. READ answers value || session updates on two bytes each.
type Counter struct {
	rt      card.Runtime
	value   int
	session *transient.Array
}

func NewCounter() card.Factory {
	return card.FactoryFunc(func(rt card.Runtime, p card.InstallParams) (card.Applet, error) {
		session, err := rt.MakeTransient(transient.Short, 1, transient.ClearOnDeselect)
		if err != nil {
			return nil, err
		}
		c := &Counter{rt: rt, session: session}
		if len(p.Data) >= 2 {
			c.value = bits.Uint16(p.Data, 0) & counterMax
		}
		return c, nil
	})
}

func (c *Counter) Select() bool { return true }
func (c *Counter) Deselect()    {}

func (c *Counter) Process(t *apdu.Transfer) error {
	if isSelect(c.rt, t) {
		return nil
	}
	cla, ins, _, _ := header(t)
	if cla&0xF0 != 0x80 {
		return iso7816.Throw(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}
	amount := bits.Uint16(t.Buffer(), iso7816.OffsetP1)

	switch ins {
	case InsIncrement:
		return c.update(amount)
	case InsDecrement:
		return c.update(-amount)
	case InsRead:
		out := make([]byte, 4)
		bits.PutUint16(out, 0, c.value)
		bits.PutUint16(out, 2, int(c.session.Shorts()[0]))
		return respond(t, out)
	default:
		return iso7816.Throw(iso7816.SW_ERR_INS_INVALID)
	}
}

// update changes the value inside a transaction. A result out of range is
// answered with an error, and the runtime rolls the change back.
func (c *Counter) update(delta int) error {
	if err := c.rt.BeginTransaction(); err != nil {
		return err
	}
	old := c.value
	if err := c.rt.OnAbort(func() { c.value = old }); err != nil {
		return err
	}

	c.value += delta
	switch {
	case c.value < 0:
		return iso7816.Throw(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	case c.value > counterMax:
		return iso7816.Throw(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}

	if err := c.rt.CommitTransaction(); err != nil {
		return err
	}
	c.session.Shorts()[0]++
	return nil
}

// Value returns the persistent value.
func (c *Counter) Value() int { return c.value }
