// Package applets holds sample applications for the simulated card.
//
//   - Echo returns the command data, including extended length bodies.
//   - Counter keeps a value updated inside transactions.
//   - Directory answers SELECT with an FCI and lists the registered applets as records.
//   - Purse shares a debit capability that Wallet consumes through a card.Proxy.
package applets

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

var factories = map[string]func() card.Factory{
	"echo":      NewEcho,
	"counter":   NewCounter,
	"directory": NewDirectory,
	"purse":     NewPurse,
	"wallet":    NewWallet,
}

// Factory returns the factory of a sample applet by kind name.
func Factory(kind string) (card.Factory, error) {
	f, ok := factories[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("applets: unknown kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return f(), nil
}

// Kinds lists the known kind names in order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// respond sends data as the whole response.
func respond(t *apdu.Transfer, data []byte) error {
	if _, err := t.SetOutgoing(); err != nil {
		return err
	}
	if err := t.SetOutgoingLength(len(data)); err != nil {
		return err
	}
	return t.SendBytesLong(data, 0, len(data))
}

func header(t *apdu.Transfer) (cla, ins, p1, p2 byte) {
	buf := t.Buffer()
	return buf[iso7816.OffsetCLA], buf[iso7816.OffsetINS], buf[iso7816.OffsetP1], buf[iso7816.OffsetP2]
}

// isSelect matches the SELECT command that made the applet current.
func isSelect(rt card.Runtime, t *apdu.Transfer) bool {
	_, ins, _, _ := header(t)
	return rt.SelectingApplet() && ins == byte(iso7816.INS_SELECT)
}
