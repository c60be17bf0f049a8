// Package card implements the simulated card runtime: the application registry, the
// dispatcher that drives one command cycle at a time, the context proxy used for
// cross-application calls, and the router that answers administrative commands.
//
// COMMAND CYCLE:
// Dispatcher.Transmit classifies the raw frame, builds an apdu.Transfer, resolves the
// current applet (handling SELECT by DF name on the way), runs the applet's Process
// and turns the outcome into response bytes followed by a status word. Errors never
// leave Transmit: StatusOf converts them to the status word they carry.
//
// Whatever the outcome, the transfer and the response accumulator are zeroed before
// Transmit returns.
package card

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/transient"
)

// Config tunes a Dispatcher.
type Config struct {
	Transfer apdu.Config
	// NonAbortingStatus reports status words that keep an open transaction and the
	// accumulated response data when a handler exits with them. Nil means none.
	NonAbortingStatus func(sw iso7816.StatusWord) bool
}

// DefaultConfig returns a T=1 card with a 261 byte APDU buffer.
func DefaultConfig() Config {
	return Config{Transfer: apdu.DefaultConfig()}
}

// WarningStatus is a NonAbortingStatus hook for the 61XX, 62XX and 63XX ranges.
func WarningStatus(sw iso7816.StatusWord) bool {
	switch sw.SW1() {
	case 0x61, 0x62, 0x63:
		return true
	}
	return false
}

// StatusOf returns the status word an error is answered with: the status it
// carries, or SW_ERR_UNKNOWN.
func StatusOf(err error) iso7816.StatusWord {
	if err == nil {
		return iso7816.SW_NO_ERROR
	}
	var e *iso7816.Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return iso7816.SW_ERR_UNKNOWN
}

// Dispatcher is the runtime of one simulated card. Its exported methods are safe
// for concurrent use; each holds the card for the whole operation.
type Dispatcher struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	registry  *Registry
	transient *transient.Scope
	response  apdu.Response

	current   aid.AID
	previous  aid.AID
	selecting bool

	depth   int
	journal []func()

	holdMu sync.Mutex
	holder string
}

// New returns a card with an empty registry.
func New(cfg Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		log:       log,
		registry:  NewRegistry(),
		transient: transient.New(),
	}
}

func (d *Dispatcher) runtime() Runtime {
	return cardRuntime{d: d}
}

func (d *Dispatcher) nonAborting(sw iso7816.StatusWord) bool {
	return d.cfg.NonAbortingStatus != nil && d.cfg.NonAbortingStatus(sw)
}

// Load adds a load record for f under a.
func (d *Dispatcher) Load(a aid.AID, f Factory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.registry.Load(a, f); err != nil {
		return err
	}
	d.log.Info().Stringer("aid", a).Msg("loaded")
	return nil
}

// Install runs the install hook of load record a and returns the registered AID.
func (d *Dispatcher) Install(a aid.AID, params InstallParams) (aid.AID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.install(a, params)
}

func (d *Dispatcher) install(a aid.AID, params InstallParams) (aid.AID, error) {
	installed, err := d.registry.Install(a, d.runtime(), params)
	if err != nil {
		d.log.Warn().Err(err).Stringer("aid", a).Msg("install failed")
		return aid.AID{}, err
	}
	d.log.Info().Stringer("aid", a).Stringer("instance", installed).Msg("installed")
	return installed, nil
}

// Delete removes record a, deselecting and uninstalling its applet first.
func (d *Dispatcher) Delete(a aid.AID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.registry.Lookup(a)
	if !ok {
		return unknownAID(a)
	}
	if d.current.Equal(a) {
		d.deselectCurrent()
	}
	if d.previous.Equal(a) {
		d.previous = aid.AID{}
	}
	if u, ok := rec.Applet.(Uninstaller); ok {
		if err := d.guard(u.Uninstall); err != nil {
			d.log.Warn().Err(err).Stringer("aid", a).Msg("uninstall failed, ignored")
		}
	}
	if err := d.registry.Delete(a); err != nil {
		return err
	}
	d.log.Info().Stringer("aid", a).Msg("deleted")
	return nil
}

// Records returns a snapshot of the registry in AID order.
func (d *Dispatcher) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Records()
}

// Lookup reports whether a record exists for a.
func (d *Dispatcher) Lookup(a aid.AID) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.registry.Lookup(a)
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// GenerateAID returns an unused AID for a load record.
func (d *Dispatcher) GenerateAID() (aid.AID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Generate()
}

// Current returns the selected AID, zero when none.
func (d *Dispatcher) Current() aid.AID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Previous returns the AID that was current before the last context change.
func (d *Dispatcher) Previous() aid.AID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.previous
}

// TransactionDepth returns 1 while a transaction is open, else 0.
func (d *Dispatcher) TransactionDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}

// Select makes the registered applet current. It returns false when no such
// applet exists (the context is then unchanged) or when it refused selection.
func (d *Dispatcher) Select(a aid.AID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.registry.Lookup(a)
	if !ok || rec.State != LifeCycleRegistered {
		return false
	}
	return d.selectRecord(rec)
}

// SelectWithResult is Select answering SW_NO_ERROR or SW_APPLET_SELECT_FAILED.
func (d *Dispatcher) SelectWithResult(a aid.AID) []byte {
	sw := iso7816.SW_NO_ERROR
	if !d.Select(a) {
		sw = iso7816.SW_APPLET_SELECT_FAILED
	}
	return sw.AppendTo(nil)
}

func (d *Dispatcher) selectRecord(rec *Record) bool {
	old := d.current
	d.deselectCurrent()

	d.selecting = true
	ok := d.callSelect(rec)
	d.selecting = false

	if !ok {
		d.current, d.previous = aid.AID{}, aid.AID{}
		d.abortOpenTransaction()
		d.log.Warn().Stringer("aid", rec.AID).Msg("selection refused")
		return false
	}

	d.previous = old
	d.current = rec.AID
	d.log.Debug().Stringer("aid", rec.AID).Msg("selected")
	return true
}

func (d *Dispatcher) callSelect(rec *Record) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Interface("panic", r).Stringer("aid", rec.AID).Msg("select hook panicked")
			ok = false
		}
	}()
	return rec.Applet.Select()
}

// deselectCurrent runs the deselect hook of the current applet, ignoring whatever
// it raises, then aborts any open transaction and clears CLEAR_ON_DESELECT arrays.
func (d *Dispatcher) deselectCurrent() {
	if d.current.IsZero() {
		return
	}
	if rec, ok := d.registry.Lookup(d.current); ok && rec.Applet != nil {
		err := d.guard(func() error {
			rec.Applet.Deselect()
			return nil
		})
		if err != nil {
			d.log.Warn().Err(err).Stringer("aid", rec.AID).Msg("deselect failed, ignored")
		}
	}
	d.abortOpenTransaction()
	_ = d.transient.Clear(transient.ClearOnDeselect)
	d.current = aid.AID{}
}

// guard runs fn and converts a panic into an error.
func (d *Dispatcher) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = iso7816.NewError(iso7816.KindUnknown, iso7816.SW_ERR_UNKNOWN, "panic: %v", r)
		}
	}()
	return fn()
}

// Transmit runs one command cycle and returns the response data followed by the
// status word. It never fails: every error is mapped to a status word.
func (d *Dispatcher) Transmit(raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transmit(raw)
}

func (d *Dispatcher) transmit(raw []byte) []byte {
	d.response.Reset()

	t, err := apdu.New(raw, d.cfg.Transfer, &d.response)
	if err != nil {
		d.log.Debug().Err(err).Hex("cmd", raw).Msg("rejected")
		return StatusOf(err).AppendTo(nil)
	}
	defer func() {
		t.Reset()
		d.response.Reset()
	}()

	sw, data := d.dispatchSafely(raw, t)

	d.log.Debug().
		Uint8("cla", raw[iso7816.OffsetCLA]).
		Uint8("ins", raw[iso7816.OffsetINS]).
		Stringer("sw", sw).
		Int("len", len(data)).
		Msg("command")
	return sw.AppendTo(data)
}

// dispatchSafely answers SW_ERR_UNKNOWN when dispatch panics outside an applet
// handler, so that Transmit always returns a status word.
func (d *Dispatcher) dispatchSafely(raw []byte, t *apdu.Transfer) (sw iso7816.StatusWord, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Hex("cmd", raw).Msg("command cycle panicked")
			d.selecting = false
			d.abortOpenTransaction()
			sw, data = iso7816.SW_ERR_UNKNOWN, nil
		}
	}()
	return d.dispatch(raw, t)
}

func (d *Dispatcher) dispatch(raw []byte, t *apdu.Transfer) (iso7816.StatusWord, []byte) {
	f := t.Frame()
	selecting := false

	if isSelectByName(raw) {
		name := f.Body(raw)
		if rec, ok := d.registry.LookupPrefix(name); ok {
			if !d.selectRecord(rec) {
				return iso7816.SW_APPLET_SELECT_FAILED, nil
			}
			selecting = true
		} else if d.current.IsZero() {
			return iso7816.SW_ERR_FILE_NOT_FOUND, nil
		}
	}

	rec, ok := d.registry.Lookup(d.current)
	if d.current.IsZero() || !ok || rec.Applet == nil {
		return iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF, nil
	}

	d.selecting = selecting
	err := d.process(rec, t)
	d.selecting = false

	if err == nil && f.Shape.HasLe() && d.response.Len() > f.Ne {
		err = iso7816.NewError(iso7816.KindWrongLength, iso7816.SW_ERR_WRONG_LENGTH,
			"sent %d bytes, terminal expects %d", d.response.Len(), f.Ne)
	}

	sw := StatusOf(err)
	keep := err == nil || d.nonAborting(sw)
	if d.depth > 0 && !d.nonAborting(sw) {
		d.abortOpenTransaction()
		d.log.Debug().Stringer("aid", rec.AID).Msg("open transaction aborted")
	}
	if !keep {
		return sw, nil
	}
	return sw, d.response.Bytes()
}

func (d *Dispatcher) process(rec *Record, t *apdu.Transfer) (err error) {
	t.Grant()
	defer t.Revoke()
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Interface("panic", r).Stringer("aid", rec.AID).Msg("handler panicked")
			err = iso7816.NewError(iso7816.KindUnknown, iso7816.SW_ERR_UNKNOWN, "handler panic: %v", r)
		}
	}()
	return rec.Applet.Process(t)
}

// isSelectByName matches an interindustry SELECT with P1 = 04.
func isSelectByName(raw []byte) bool {
	cla := raw[iso7816.OffsetCLA]
	if cla&0x80 != 0 || cla == 0xFF {
		return false
	}
	return raw[iso7816.OffsetINS] == byte(iso7816.INS_SELECT) && raw[iso7816.OffsetP1] == byte(iso7816.SelectByDFName)
}

// Reset emulates a card reset: incomplete installs are discarded, the context is
// cleared, open transactions are rolled back and every transient array is zeroed.
// Registered applets survive and their deselect hooks are not called.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := d.registry.discardIncomplete()
	d.abortOpenTransaction()
	d.response.Reset()
	_ = d.transient.Clear(transient.ClearOnDeselect)
	_ = d.transient.Clear(transient.ClearOnReset)
	d.current, d.previous = aid.AID{}, aid.AID{}
	d.selecting = false

	d.log.Info().Int("discarded", len(dropped)).Msg("card reset")
}

// ResetRuntime returns the card to its factory state: every record is removed and
// transient arrays are no longer tracked.
func (d *Dispatcher) ResetRuntime() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.registry.clear()
	d.response.Reset()
	d.depth = 0
	d.journal = nil
	d.current, d.previous = aid.AID{}, aid.AID{}
	d.selecting = false
	d.transient.ForgetAll()

	d.log.Info().Msg("runtime reset")
}

func (d *Dispatcher) beginTransaction() error {
	if d.depth != 0 {
		return iso7816.NewError(iso7816.KindInProgress, 0, "transaction already open")
	}
	d.depth = 1
	d.journal = nil
	return nil
}

func (d *Dispatcher) commitTransaction() error {
	if d.depth == 0 {
		return iso7816.NewError(iso7816.KindNotInProgress, 0, "commit without transaction")
	}
	d.depth = 0
	d.journal = nil
	return nil
}

func (d *Dispatcher) abortTransaction() error {
	if d.depth == 0 {
		return iso7816.NewError(iso7816.KindNotInProgress, 0, "abort without transaction")
	}
	for i := len(d.journal) - 1; i >= 0; i-- {
		if err := d.guard(func() error { d.journal[i](); return nil }); err != nil {
			d.log.Warn().Err(err).Msg("undo step failed, ignored")
		}
	}
	d.depth = 0
	d.journal = nil
	return nil
}

func (d *Dispatcher) abortOpenTransaction() {
	if d.depth != 0 {
		_ = d.abortTransaction()
	}
}
