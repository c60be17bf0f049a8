package iso7816

import (
	"errors"
	"fmt"
)

// Transmitter abstracts the card connection. A PC/SC card handle satisfies it,
// and so does card.Router, so the same host code drives a reader or the
// simulator.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// DefaultMaxFollowUps bounds the GET RESPONSE and resend commands one Send may
// issue.
const DefaultMaxFollowUps = 16

// ErrTooManyFollowUps is returned when a card keeps answering 61XX or 6CXX.
var ErrTooManyFollowUps = errors.New("iso7816: too many follow-up commands")

// Client sends commands and completes the T=0 style exchanges the transport
// leaves to the application:
//
//   - 61XX: XX bytes wait on the card. The client fetches them with GET RESPONSE
//     on the channel of the original command.
//   - 6CXX: Le was wrong. The client resends the command with Le = XX.
//
// Every exchange ends up in the returned Trace.
type Client struct {
	Card         Transmitter
	MaxFollowUps int
}

func NewClient(card Transmitter) *Client {
	return &Client{Card: card, MaxFollowUps: DefaultMaxFollowUps}
}

// Send transmits cmd and any follow-up it calls for. On error the trace holds
// the exchanges completed so far.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	for {
		resp, err := c.exchange(cmd)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		next := followUp(cmd, resp.Status)
		if next == nil {
			return trace, nil
		}
		if len(trace) > c.MaxFollowUps {
			return trace, fmt.Errorf("%w: last status %04X", ErrTooManyFollowUps, uint16(resp.Status))
		}
		cmd = next
	}
}

// SendRaw decodes a raw command, as found in APDU scripts, and sends it
// through Send.
func (c *Client) SendRaw(raw []byte) (Trace, error) {
	cmd, _, err := ParseCommandAPDU(raw)
	if err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return c.Send(cmd)
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	out, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	return ParseResponseAPDU(out)
}

// followUp returns the command a 61XX or 6CXX status asks for, or nil.
func followUp(cmd *CommandAPDU, sw StatusWord) *CommandAPDU {
	ne := int(sw.SW2())
	if ne == 0 {
		ne = MaxShortLe
	}

	switch sw.SW1() {
	case 0x61:
		cls := cmd.Class
		cls.IsChained = false
		ins, _ := NewInstruction(INS_GET_RESPONSE)
		return NewCommandAPDU(cls, ins, 0x00, 0x00, nil, ne)
	case 0x6C:
		resend := *cmd
		resend.Ne = ne
		return &resend
	}
	return nil
}
