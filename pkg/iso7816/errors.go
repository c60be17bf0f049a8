package iso7816

import (
	"fmt"
)

// CARD RUNTIME ERRORS:
// Every fault raised inside the card (frame decoding, APDU state machine, registry,
// application code) is an *Error. The Kind says what went wrong; Status is the
// status word the fault is answered with on the wire, or zero when the kind has no
// protocol meaning of its own (the runtime then answers SW_ERR_UNKNOWN).
//
// Applications raise a plain status word with Throw, which is the card side
// counterpart of receiving that word in a ResponseAPDU.

// ErrorKind classifies a card runtime fault.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMalformed
	KindIllegalUse
	KindBadLength
	KindBufferBounds
	KindIllegalAid
	KindAppletCreationFailed
	KindWrongLength
	KindIllegalValue
	KindInProgress
	KindNotInProgress
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed command"
	case KindIllegalUse:
		return "illegal use"
	case KindBadLength:
		return "bad length"
	case KindBufferBounds:
		return "buffer bounds"
	case KindIllegalAid:
		return "illegal AID"
	case KindAppletCreationFailed:
		return "applet creation failed"
	case KindWrongLength:
		return "wrong length"
	case KindIllegalValue:
		return "illegal value"
	case KindInProgress:
		return "transaction in progress"
	case KindNotInProgress:
		return "transaction not in progress"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error is a card runtime fault carrying the status word it maps to.
type Error struct {
	Kind   ErrorKind
	Status StatusWord
	Detail string
	Err    error
}

// Sentinels for errors.Is matching on the kind only.
var (
	ErrMalformed            = &Error{Kind: KindMalformed}
	ErrIllegalUse           = &Error{Kind: KindIllegalUse}
	ErrBadLength            = &Error{Kind: KindBadLength}
	ErrBufferBounds         = &Error{Kind: KindBufferBounds}
	ErrIllegalAid           = &Error{Kind: KindIllegalAid}
	ErrAppletCreationFailed = &Error{Kind: KindAppletCreationFailed}
	ErrWrongLength          = &Error{Kind: KindWrongLength}
	ErrIllegalValue         = &Error{Kind: KindIllegalValue}
	ErrInProgress           = &Error{Kind: KindInProgress}
	ErrNotInProgress        = &Error{Kind: KindNotInProgress}
	ErrStatus               = &Error{Kind: KindStatus}
)

// NewError builds an Error of the given kind with a formatted detail message.
func NewError(kind ErrorKind, sw StatusWord, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: sw, Detail: fmt.Sprintf(format, args...)}
}

// Throw returns the error an application uses to answer a command with sw.
func Throw(sw StatusWord) error {
	return &Error{Kind: KindStatus, Status: sw}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s [%04X]", msg, uint16(e.Status))
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind. A target with a non-zero Status must also
// match the status word, so errors.Is(err, Throw(0x6982)) works as expected.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}
