// Package apdu implements the card side view of one command/response exchange.
//
// TRANSFER STATE MACHINE:
// An application sees the command through a Transfer. The header and as much of the
// data field as fits are already in the APDU buffer; the rest is pulled with
// ReceiveBytes. The response is produced by declaring a length and sending slices of
// the buffer, which the runtime accumulates until the application returns.
//
//	Initial ──SetIncomingAndReceive──> PartialIncoming ⇄ FullIncoming
//	Initial ──SetOutgoing──> Outgoing ──SetOutgoingLength──> OutgoingLengthKnown
//	OutgoingLengthKnown ──SendBytes──> PartialOutgoing ⇄ FullOutgoing
//
// Inbound must be requested before outbound; once outbound has started the inbound
// side is closed. Every out-of-order call fails with iso7816.ErrIllegalUse, and size
// violations with ErrBadLength or ErrBufferBounds.
package apdu

import (
	"fmt"
	"strings"

	"github.com/gregLibert/cardsim/pkg/bits"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// Buffer and length limits.
const (
	// DefaultBufferSize holds a full short command: header, Lc, 255 data bytes and Le.
	DefaultBufferSize = 261
	// MinBufferSize is the smallest buffer a runtime may advertise (header + 128 data bytes).
	MinBufferSize = 133

	// MaxShortOutgoing is the largest response length declarable for a short command.
	MaxShortOutgoing = iso7816.MaxShortLe
	// MaxExtendedOutgoing is the largest response length declarable for an extended command.
	MaxExtendedOutgoing = 32767
)

// State is the position of a Transfer in its state machine.
type State int8

const (
	StateInitial             State = 0
	StatePartialIncoming     State = 1
	StateFullIncoming        State = 2
	StateOutgoing            State = 3
	StateOutgoingLengthKnown State = 4
	StatePartialOutgoing     State = 5
	StateFullOutgoing        State = 6
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StatePartialIncoming:
		return "PARTIAL_INCOMING"
	case StateFullIncoming:
		return "FULL_INCOMING"
	case StateOutgoing:
		return "OUTGOING"
	case StateOutgoingLengthKnown:
		return "OUTGOING_LENGTH_KNOWN"
	case StatePartialOutgoing:
		return "PARTIAL_OUTGOING"
	case StateFullOutgoing:
		return "FULL_OUTGOING"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// Protocol is the transport the command arrived on.
type Protocol byte

const (
	ProtocolT0  Protocol = 0x00
	ProtocolT1  Protocol = 0x01
	ProtocolTCL Protocol = 0x81
)

// ParseProtocol accepts "T=0", "T=1" and "T=CL" (case-insensitive).
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T=0", "T0":
		return ProtocolT0, nil
	case "T=1", "T1":
		return ProtocolT1, nil
	case "T=CL", "TCL":
		return ProtocolTCL, nil
	}
	return 0, fmt.Errorf("apdu: unknown protocol %q", s)
}

func (p Protocol) String() string {
	switch p {
	case ProtocolT0:
		return "T=0"
	case ProtocolT1:
		return "T=1"
	case ProtocolTCL:
		return "T=CL"
	default:
		return fmt.Sprintf("Protocol(%02X)", byte(p))
	}
}

// Config fixes the buffer geometry and transport of the transfers a runtime builds.
type Config struct {
	BufferSize int
	Protocol   Protocol
}

// DefaultConfig is a 261 byte buffer over T=1.
func DefaultConfig() Config {
	return Config{BufferSize: DefaultBufferSize, Protocol: ProtocolT1}
}

type flag uint8

const (
	flagOutgoing flag = 1 << iota
	flagOutgoingLengthSet
	flagNoChaining
	flagIncoming
	flagNoGetResponse
	flagAccessAllowed
)

// Response accumulates the bytes sent during one command cycle. It is owned by the
// runtime and shared with the Transfer of the current cycle.
type Response struct {
	data []byte
}

// Write appends p to the response.
func (r *Response) Write(p []byte) {
	r.data = append(r.data, p...)
}

// Len returns the number of accumulated bytes.
func (r *Response) Len() int {
	return len(r.data)
}

// Bytes returns a copy of the accumulated bytes.
func (r *Response) Bytes() []byte {
	return append([]byte(nil), r.data...)
}

// Reset zeroes the accumulated bytes and empties the response.
func (r *Response) Reset() {
	clear(r.data)
	r.data = r.data[:0]
}

// Transfer holds the buffer and transfer state of one command.
type Transfer struct {
	raw      []byte
	frame    iso7816.Frame
	buffer   []byte
	response *Response
	protocol Protocol

	state State
	flags flag

	// inCursor is the index in raw of the next inbound byte not yet in the buffer.
	inCursor     int
	inRemaining  int
	lr           int
	outRemaining int
}

// New classifies raw and prepares a transfer for it. The returned error is the
// classifier's ErrMalformed; nothing else can fail here.
func New(raw []byte, cfg Config, resp *Response) (*Transfer, error) {
	f, err := iso7816.Classify(raw)
	if err != nil {
		return nil, err
	}

	size := cfg.BufferSize
	if size < MinBufferSize {
		size = MinBufferSize
	}

	t := &Transfer{
		raw:         append([]byte(nil), raw...),
		frame:       f,
		buffer:      make([]byte, size),
		response:    resp,
		protocol:    cfg.Protocol,
		inRemaining: f.Nc,
	}
	copy(t.buffer, raw)
	if f.Shape.HasLe() {
		t.flags |= flagNoGetResponse
	}
	return t, nil
}

// Grant opens the transfer to the application handler.
func (t *Transfer) Grant() { t.flags |= flagAccessAllowed }

// Revoke closes the transfer once the handler has returned.
func (t *Transfer) Revoke() { t.flags &^= flagAccessAllowed }

func (t *Transfer) has(f flag) bool { return t.flags&f != 0 }

func (t *Transfer) checkAccess() error {
	if !t.has(flagAccessAllowed) {
		return iso7816.NewError(iso7816.KindIllegalUse, 0, "APDU accessed outside of its command cycle")
	}
	return nil
}

func illegalUse(format string, args ...any) error {
	return iso7816.NewError(iso7816.KindIllegalUse, 0, format, args...)
}

// Buffer returns the APDU buffer, or nil outside of the command cycle.
func (t *Transfer) Buffer() []byte {
	if !t.has(flagAccessAllowed) {
		return nil
	}
	return t.buffer
}

// State returns the current transfer state.
func (t *Transfer) State() State { return t.state }

// Frame returns the classification of the command.
func (t *Transfer) Frame() iso7816.Frame { return t.frame }

// Ne returns the expected response length sent by the terminal (0 when absent).
func (t *Transfer) Ne() int { return t.frame.Ne }

// IncomingRemaining returns the number of inbound bytes not yet received.
func (t *Transfer) IncomingRemaining() int { return t.inRemaining }

// OutgoingRemaining returns the number of declared outbound bytes not yet sent.
func (t *Transfer) OutgoingRemaining() int { return t.outRemaining }

// OutgoingLength returns the declared response length (Lr), 0 until set.
func (t *Transfer) OutgoingLength() int { return t.lr }

// Protocol returns the transport of the command.
func (t *Transfer) Protocol() Protocol { return t.protocol }

// OutBlockSize returns the largest outbound block of the transport, status word
// included.
func (t *Transfer) OutBlockSize() int {
	if t.protocol == ProtocolT0 {
		return 258
	}
	return 254
}

func (t *Transfer) cla() byte {
	if len(t.raw) == 0 {
		return 0
	}
	return t.raw[iso7816.OffsetCLA]
}

// Channel returns the logical channel encoded in CLA.
func (t *Transfer) Channel() uint8 {
	return iso7816.ChannelOf(t.cla())
}

// IsISOInterindustryCLA reports whether CLA is in the interindustry range (bit 8 clear).
func (t *Transfer) IsISOInterindustryCLA() bool {
	return !bits.IsSet(t.cla(), 8)
}

// IsCommandChainingCLA reports whether CLA announces more chained commands.
func (t *Transfer) IsCommandChainingCLA() bool {
	return bits.IsSet(t.cla(), 5)
}

// IsSecureMessagingCLA reports whether CLA indicates secure messaging. Proprietary
// classes are read with the interindustry layout, as card runtimes do.
func (t *Transfer) IsSecureMessagingCLA() bool {
	cls, err := iso7816.NewClass(bits.Clear(t.cla(), 8))
	if err != nil {
		return false
	}
	return cls.SecureMessaging != iso7816.SMNone
}

// SetIncomingAndReceive opens the inbound side and returns how many data bytes are
// already in the buffer at OffsetCdata.
func (t *Transfer) SetIncomingAndReceive() (int, error) {
	if err := t.checkAccess(); err != nil {
		return 0, err
	}
	if t.has(flagOutgoing) {
		return 0, illegalUse("incoming data requested after outgoing started")
	}
	if t.has(flagIncoming) {
		return 0, illegalUse("incoming data already requested")
	}
	t.flags |= flagIncoming

	off := t.frame.DataOffset
	n := min(t.inRemaining, len(t.buffer)-off)
	t.inCursor = off + n
	t.inRemaining -= n
	t.updateIncomingState()
	return n, nil
}

// ReceiveBytes copies the next inbound bytes into the buffer at off and returns
// how many were copied (0 once everything was received).
func (t *Transfer) ReceiveBytes(off int) (int, error) {
	if err := t.checkAccess(); err != nil {
		return 0, err
	}
	if !t.has(flagIncoming) || t.has(flagOutgoing) {
		return 0, illegalUse("ReceiveBytes outside of the incoming phase")
	}
	if off < 0 || off >= len(t.buffer) {
		return 0, iso7816.NewError(iso7816.KindBufferBounds, 0, "offset %d outside buffer of %d bytes", off, len(t.buffer))
	}
	if t.inRemaining == 0 {
		return 0, nil
	}

	n := min(t.inRemaining, len(t.buffer)-off)
	copy(t.buffer[off:off+n], t.raw[t.inCursor:t.inCursor+n])
	t.inCursor += n
	t.inRemaining -= n
	t.updateIncomingState()
	return n, nil
}

func (t *Transfer) updateIncomingState() {
	if t.inRemaining == 0 {
		t.state = StateFullIncoming
	} else {
		t.state = StatePartialIncoming
	}
}

// IncomingLength returns Lc. It is only available during the incoming phase.
func (t *Transfer) IncomingLength() (int, error) {
	if err := t.checkIncomingPhase(); err != nil {
		return 0, err
	}
	return t.frame.Nc, nil
}

// OffsetCdata returns where the data field starts: 5, or 7 for extended commands.
func (t *Transfer) OffsetCdata() (int, error) {
	if err := t.checkIncomingPhase(); err != nil {
		return 0, err
	}
	return t.frame.DataOffset, nil
}

func (t *Transfer) checkIncomingPhase() error {
	if err := t.checkAccess(); err != nil {
		return err
	}
	if !t.has(flagIncoming) || t.has(flagOutgoing) {
		return illegalUse("incoming length is only known during the incoming phase")
	}
	return nil
}

// SetOutgoing opens the outbound side and returns Ne (0 when the command had no Le).
func (t *Transfer) SetOutgoing() (int, error) {
	return t.setOutgoing(0)
}

// SetOutgoingNoChaining is SetOutgoing for applications that cannot tolerate the
// response being split into several transport exchanges.
func (t *Transfer) SetOutgoingNoChaining() (int, error) {
	return t.setOutgoing(flagNoChaining | flagNoGetResponse)
}

func (t *Transfer) setOutgoing(extra flag) (int, error) {
	if err := t.checkAccess(); err != nil {
		return 0, err
	}
	if t.has(flagOutgoing) {
		return 0, illegalUse("outgoing already started")
	}
	t.flags |= flagOutgoing | extra
	t.state = StateOutgoing
	return t.frame.Ne, nil
}

// MaxOutgoingLength is the cap SetOutgoingLength enforces for this command:
// 32767 for extended commands and 256 for short ones. Without chaining the data
// and the status word must fit one outbound block, and on T=0 the data must also
// fit the Le the terminal sent.
func (t *Transfer) MaxOutgoingLength() int {
	limit := MaxShortOutgoing
	if t.frame.Shape.IsExtended() {
		limit = MaxExtendedOutgoing
	}
	if !t.has(flagNoChaining) {
		return limit
	}
	limit = min(limit, t.OutBlockSize()-2)
	if t.protocol == ProtocolT0 && t.frame.Ne > 0 {
		limit = min(limit, t.frame.Ne)
	}
	return limit
}

// SetOutgoingLength declares the total response length (Lr). Zero is a valid,
// empty response.
func (t *Transfer) SetOutgoingLength(n int) error {
	if err := t.checkAccess(); err != nil {
		return err
	}
	if !t.has(flagOutgoing) {
		return illegalUse("SetOutgoingLength before SetOutgoing")
	}
	if t.has(flagOutgoingLengthSet) {
		return illegalUse("outgoing length already set")
	}
	if n < 0 || n > t.MaxOutgoingLength() {
		return iso7816.NewError(iso7816.KindBadLength, 0, "outgoing length %d outside 0..%d", n, t.MaxOutgoingLength())
	}

	t.flags |= flagOutgoingLengthSet
	t.lr = n
	t.outRemaining = n
	t.state = StateOutgoingLengthKnown
	return nil
}

// SendBytes sends n bytes of the buffer starting at off.
func (t *Transfer) SendBytes(off, n int) error {
	if err := t.checkAccess(); err != nil {
		return err
	}
	if !t.has(flagOutgoingLengthSet) {
		return illegalUse("SendBytes before SetOutgoingLength")
	}
	if t.state == StateFullOutgoing {
		return illegalUse("all %d declared bytes already sent", t.lr)
	}
	if off < 0 || n < 0 || off+n > len(t.buffer) {
		return iso7816.NewError(iso7816.KindBufferBounds, 0, "range [%d:%d] outside buffer of %d bytes", off, off+n, len(t.buffer))
	}
	if n > t.outRemaining {
		return illegalUse("sending %d bytes, only %d declared bytes remain", n, t.outRemaining)
	}

	t.response.Write(t.buffer[off : off+n])
	t.outRemaining -= n
	if t.outRemaining == 0 {
		t.state = StateFullOutgoing
	} else {
		t.state = StatePartialOutgoing
	}
	return nil
}

// SendBytesLong sends n bytes of src starting at off, staging them through the
// APDU buffer in chunks no larger than the buffer.
func (t *Transfer) SendBytesLong(src []byte, off, n int) error {
	if err := t.checkAccess(); err != nil {
		return err
	}
	if !t.has(flagOutgoingLengthSet) {
		return illegalUse("SendBytesLong before SetOutgoingLength")
	}
	if off < 0 || n < 0 || off+n > len(src) {
		return iso7816.NewError(iso7816.KindBufferBounds, 0, "range [%d:%d] outside source of %d bytes", off, off+n, len(src))
	}
	if n > t.outRemaining {
		return illegalUse("sending %d bytes, only %d declared bytes remain", n, t.outRemaining)
	}

	for n > 0 {
		chunk := min(n, len(t.buffer))
		copy(t.buffer, src[off:off+chunk])
		if err := t.SendBytes(0, chunk); err != nil {
			return err
		}
		off += chunk
		n -= chunk
	}
	return nil
}

// SetOutgoingAndSend is SetOutgoing, SetOutgoingLength(n) and SendBytes(off, n) in
// one call. No further outgoing call is possible afterwards.
func (t *Transfer) SetOutgoingAndSend(off, n int) error {
	if _, err := t.SetOutgoing(); err != nil {
		return err
	}
	if err := t.SetOutgoingLength(n); err != nil {
		return err
	}
	return t.SendBytes(off, n)
}

// Reset zeroes the buffer and every counter. The runtime calls it at the end of
// each command cycle, whatever the outcome.
func (t *Transfer) Reset() {
	clear(t.buffer)
	clear(t.raw)
	t.raw = nil
	t.state = StateInitial
	t.flags = 0
	t.inCursor = 0
	t.inRemaining = 0
	t.lr = 0
	t.outRemaining = 0
}
