// Package transcript records the exchanges of a session and stores them as
// canonical CBOR, so equal sessions always encode to the same bytes.
package transcript

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gregLibert/cardsim/pkg/iso7816"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("transcript: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Exchange is one command and the card's answer. Err holds the transport
// error text when the transmitter failed.
type Exchange struct {
	Seq      int    `cbor:"1,keyasint"`
	Command  []byte `cbor:"2,keyasint"`
	Response []byte `cbor:"3,keyasint,omitempty"`
	Err      string `cbor:"4,keyasint,omitempty"`
}

// Transcript is a recorded session.
type Transcript struct {
	Reader    string     `cbor:"1,keyasint"`
	Protocol  string     `cbor:"2,keyasint,omitempty"`
	Started   time.Time  `cbor:"3,keyasint"`
	Exchanges []Exchange `cbor:"4,keyasint"`
}

// Marshal serializes t to canonical CBOR.
func Marshal(t *Transcript) ([]byte, error) {
	return encMode.Marshal(t)
}

// Unmarshal deserializes a Transcript from CBOR bytes.
func Unmarshal(data []byte) (*Transcript, error) {
	var t Transcript
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("transcript: unmarshal: %w", err)
	}
	return &t, nil
}

// Recorder is an iso7816.Transmitter that forwards to another transmitter and
// keeps a copy of every exchange.
type Recorder struct {
	next iso7816.Transmitter

	mu sync.Mutex
	t  Transcript
}

var _ iso7816.Transmitter = (*Recorder)(nil)

// NewRecorder wraps next. reader names the card or simulator in the transcript.
func NewRecorder(next iso7816.Transmitter, reader, protocol string, started time.Time) *Recorder {
	return &Recorder{
		next: next,
		t: Transcript{
			Reader:   reader,
			Protocol: protocol,
			Started:  started.UTC().Truncate(time.Second),
		},
	}
}

func (r *Recorder) Transmit(cmd []byte) ([]byte, error) {
	resp, err := r.next.Transmit(cmd)

	ex := Exchange{Command: bytes.Clone(cmd), Response: bytes.Clone(resp)}
	if err != nil {
		ex.Err = err.Error()
	}

	r.mu.Lock()
	ex.Seq = len(r.t.Exchanges) + 1
	r.t.Exchanges = append(r.t.Exchanges, ex)
	r.mu.Unlock()

	return resp, err
}

// Len returns the number of recorded exchanges.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.t.Exchanges)
}

// Transcript returns a copy of the session recorded so far.
func (r *Recorder) Transcript() *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.t
	out.Exchanges = append([]Exchange(nil), r.t.Exchanges...)
	return &out
}

// Bytes returns the recorded session as canonical CBOR.
func (r *Recorder) Bytes() ([]byte, error) {
	return Marshal(r.Transcript())
}
