package card

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// Router is the entry point of a simulated card. It answers the CREATE APPLET
// administrative command (CLA 8X, INS B8) itself and forwards everything else to
// the Dispatcher.
//
// The CREATE APPLET body is [AID length][load AID][install parameters]; the
// response is the registered AID followed by 9000, or a bare status word.
type Router struct {
	d *Dispatcher
}

// NewRouter returns a router in front of d.
func NewRouter(d *Dispatcher) *Router {
	return &Router{d: d}
}

// Dispatcher returns the card behind the router.
func (r *Router) Dispatcher() *Dispatcher { return r.d }

// Transmit implements iso7816.Transmitter. The error is always nil: failures are
// answered with a status word.
func (r *Router) Transmit(cmd []byte) ([]byte, error) {
	return r.Route(cmd), nil
}

// Route answers one raw command.
func (r *Router) Route(raw []byte) []byte {
	f, err := iso7816.Classify(raw)
	if err != nil || !isCreateApplet(raw) {
		return r.d.Transmit(raw)
	}

	body := f.Body(raw)
	load, params, ok := parseCreateApplet(body)
	if !ok {
		r.d.log.Debug().Hex("body", body).Msg("undecodable create applet")
		return iso7816.SW_EXCEPTION_OCCURRED.AppendTo(nil)
	}

	installed, err := r.d.Install(load, InstallParams{Data: params})
	if err != nil {
		return StatusOf(err).AppendTo(nil)
	}
	return iso7816.SW_NO_ERROR.AppendTo(installed.Bytes())
}

func isCreateApplet(raw []byte) bool {
	return raw[iso7816.OffsetCLA]&0xF0 == 0x80 && raw[iso7816.OffsetINS] == byte(iso7816.INS_CREATE_APPLET)
}

func parseCreateApplet(body []byte) (aid.AID, []byte, bool) {
	if len(body) < 1 {
		return aid.AID{}, nil, false
	}
	n := int(body[0])
	a, err := aid.FromBytes(body, 1, n)
	if err != nil {
		return aid.AID{}, nil, false
	}
	return a, append([]byte(nil), body[1+n:]...), true
}
