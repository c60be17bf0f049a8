package applets

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/bits"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// Purse and wallet instructions, CLA 80. P1-P2 carry the amount.
const (
	InsBalance byte = 0x50
	InsCredit  byte = 0x52
	InsPay     byte = 0x54
)

const purseMax = 0xFFFF

// PurseAccess is the object a Purse shares with other applets.
type PurseAccess interface {
	Balance() int
	Debit(amount int) (int, error)
}

// Purse holds a balance. It shares PurseAccess with applets of the same RID that
// ask with parameter 0.
type Purse struct {
	rt      card.Runtime
	self    aid.AID
	balance int
}

func NewPurse() card.Factory {
	return card.FactoryFunc(func(rt card.Runtime, p card.InstallParams) (card.Applet, error) {
		ps := &Purse{rt: rt}
		if len(p.Data) >= 2 {
			ps.balance = bits.Uint16(p.Data, 0)
		}
		self, err := rt.Register(p.InstanceAID, ps)
		if err != nil {
			return nil, err
		}
		ps.self = self
		return ps, nil
	})
}

func (ps *Purse) Select() bool { return true }
func (ps *Purse) Deselect()    {}

func (ps *Purse) Shareable(client aid.AID, param byte) any {
	if param != 0 || !client.RIDEqual(ps.self) {
		return nil
	}
	return purseAccess{ps}
}

func (ps *Purse) Process(t *apdu.Transfer) error {
	if isSelect(ps.rt, t) {
		return nil
	}
	_, ins, _, _ := header(t)
	amount := bits.Uint16(t.Buffer(), iso7816.OffsetP1)

	switch ins {
	case InsBalance:
	case InsCredit:
		if ps.balance+amount > purseMax {
			return iso7816.Throw(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
		}
		ps.balance += amount
	default:
		return iso7816.Throw(iso7816.SW_ERR_INS_INVALID)
	}
	return respond(t, balanceBytes(ps.balance))
}

type purseAccess struct {
	ps *Purse
}

func (a purseAccess) Balance() int { return a.ps.balance }

// Debit only runs in the purse's own context, which card.Proxy provides.
func (a purseAccess) Debit(amount int) (int, error) {
	ps := a.ps
	if !ps.rt.CurrentAID().Equal(ps.self) {
		return 0, iso7816.Throw(iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT)
	}
	if amount < 0 || amount > ps.balance {
		return 0, iso7816.Throw(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}

	if ps.rt.TransactionDepth() > 0 {
		old := ps.balance
		if err := ps.rt.OnAbort(func() { ps.balance = old }); err != nil {
			return 0, err
		}
	}
	ps.balance -= amount
	return ps.balance, nil
}

// Wallet pays from a Purse. Its install parameters hold the purse AID.
type Wallet struct {
	rt    card.Runtime
	purse aid.AID
}

func NewWallet() card.Factory {
	return card.FactoryFunc(func(rt card.Runtime, p card.InstallParams) (card.Applet, error) {
		purse, err := aid.New(p.Data)
		if err != nil {
			return nil, err
		}
		return &Wallet{rt: rt, purse: purse}, nil
	})
}

func (w *Wallet) Select() bool { return true }
func (w *Wallet) Deselect()    {}

func (w *Wallet) Process(t *apdu.Transfer) error {
	if isSelect(w.rt, t) {
		return nil
	}
	_, ins, _, _ := header(t)
	if ins != InsPay {
		return iso7816.Throw(iso7816.SW_ERR_INS_INVALID)
	}
	amount := bits.Uint16(t.Buffer(), iso7816.OffsetP1)

	p, err := w.rt.Shareable(w.purse, 0)
	if err != nil {
		return err
	}
	if err := w.rt.BeginTransaction(); err != nil {
		return err
	}
	balance, err := card.Call(p, func(a PurseAccess) (int, error) {
		return a.Debit(amount)
	})
	if err != nil {
		return err
	}
	if err := w.rt.CommitTransaction(); err != nil {
		return err
	}
	return respond(t, balanceBytes(balance))
}

func balanceBytes(v int) []byte {
	out := make([]byte, 2)
	bits.PutUint16(out, 0, v)
	return out
}
