// Package transient tracks the arrays whose contents a card runtime must clear
// automatically, either on card reset or when the owning application is deselected.
//
// Arrays are cleared in place: handles stay valid, numeric cells become zero,
// booleans become false and object references become nil.
package transient

import (
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// Event is the clear-on event an array is bound to.
type Event byte

const (
	// NotTransient is reported for arrays the scope does not track.
	NotTransient Event = 0
	// ClearOnReset arrays survive deselection and are cleared on card reset.
	ClearOnReset Event = 1
	// ClearOnDeselect arrays are cleared when the current application is deselected
	// (and on card reset).
	ClearOnDeselect Event = 2
)

func (e Event) String() string {
	switch e {
	case ClearOnReset:
		return "CLEAR_ON_RESET"
	case ClearOnDeselect:
		return "CLEAR_ON_DESELECT"
	default:
		return "NOT_A_TRANSIENT_OBJECT"
	}
}

// Kind is the element type of a transient array.
type Kind byte

const (
	Boolean Kind = iota + 1
	Byte
	Short
	Object
)

// Array is a handle on a transient array. Only the accessor matching its Kind
// returns data; the others return nil.
type Array struct {
	kind    Kind
	event   Event
	bools   []bool
	bytes   []byte
	shorts  []int16
	objects []any
}

func (a *Array) Kind() Kind { return a.kind }

func (a *Array) Len() int {
	switch a.kind {
	case Boolean:
		return len(a.bools)
	case Byte:
		return len(a.bytes)
	case Short:
		return len(a.shorts)
	default:
		return len(a.objects)
	}
}

func (a *Array) Bools() []bool   { return a.bools }
func (a *Array) Bytes() []byte   { return a.bytes }
func (a *Array) Shorts() []int16 { return a.shorts }
func (a *Array) Objects() []any  { return a.objects }

func (a *Array) clear() {
	clear(a.bools)
	clear(a.bytes)
	clear(a.shorts)
	clear(a.objects)
}

// Scope owns the transient arrays of one card.
type Scope struct {
	arrays []*Array
}

// New returns an empty scope.
func New() *Scope {
	return &Scope{}
}

// Allocate creates a tracked array of n elements bound to event.
func (s *Scope) Allocate(kind Kind, n int, event Event) (*Array, error) {
	if event != ClearOnReset && event != ClearOnDeselect {
		return nil, iso7816.NewError(iso7816.KindIllegalValue, 0, "clear event %d", event)
	}
	if n < 0 {
		return nil, iso7816.NewError(iso7816.KindIllegalValue, 0, "negative length %d", n)
	}

	a := &Array{kind: kind, event: event}
	switch kind {
	case Boolean:
		a.bools = make([]bool, n)
	case Byte:
		a.bytes = make([]byte, n)
	case Short:
		a.shorts = make([]int16, n)
	case Object:
		a.objects = make([]any, n)
	default:
		return nil, iso7816.NewError(iso7816.KindIllegalValue, 0, "array kind %d", kind)
	}

	s.arrays = append(s.arrays, a)
	return a, nil
}

// MakeBytes is Allocate for the common byte array case.
func (s *Scope) MakeBytes(n int, event Event) ([]byte, *Array, error) {
	a, err := s.Allocate(Byte, n, event)
	if err != nil {
		return nil, nil, err
	}
	return a.bytes, a, nil
}

// Event reports the clear event of a tracked array, or NotTransient.
func (s *Scope) Event(h *Array) Event {
	for _, a := range s.arrays {
		if a == h {
			return a.event
		}
	}
	return NotTransient
}

// Clear zeroes every array bound to event.
func (s *Scope) Clear(event Event) error {
	if event != ClearOnReset && event != ClearOnDeselect {
		return iso7816.NewError(iso7816.KindIllegalValue, 0, "clear event %d", event)
	}
	for _, a := range s.arrays {
		if a.event == event {
			a.clear()
		}
	}
	return nil
}

// ForgetAll drops tracking of every array without clearing it.
func (s *Scope) ForgetAll() {
	s.arrays = nil
}

// Count returns the number of tracked arrays.
func (s *Scope) Count() int {
	return len(s.arrays)
}
