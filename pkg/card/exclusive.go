package card

import (
	"errors"
	"fmt"
)

// ErrCardInUse is returned by Acquire when another owner holds the card.
var ErrCardInUse = errors.New("card: card in use")

// Acquire marks the card as held by owner, as a reader holding a card in exclusive
// mode would. The hold is advisory: Transmit does not check it.
func (d *Dispatcher) Acquire(owner string) error {
	if owner == "" {
		return errors.New("card: empty owner")
	}

	d.holdMu.Lock()
	defer d.holdMu.Unlock()

	if d.holder != "" && d.holder != owner {
		return fmt.Errorf("%w by %q", ErrCardInUse, d.holder)
	}
	d.holder = owner
	return nil
}

// Release drops the hold of owner.
func (d *Dispatcher) Release(owner string) error {
	d.holdMu.Lock()
	defer d.holdMu.Unlock()

	if d.holder != owner {
		return fmt.Errorf("card: %q does not hold the card", owner)
	}
	d.holder = ""
	return nil
}

// Holder returns the current owner, empty when the card is free.
func (d *Dispatcher) Holder() string {
	d.holdMu.Lock()
	defer d.holdMu.Unlock()
	return d.holder
}
