package card

import (
	"fmt"
	"slices"

	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/bits"
	"github.com/gregLibert/cardsim/pkg/iso7816"
)

// LifeCycle is the state of a registry record.
type LifeCycle uint8

const (
	// LifeCycleLoaded records hold a factory and no instance.
	LifeCycleLoaded LifeCycle = iota + 1
	// LifeCycleInstalled records ran their install hook but never registered.
	LifeCycleInstalled
	// LifeCycleRegistered records hold a selectable instance.
	LifeCycleRegistered
)

func (l LifeCycle) String() string {
	switch l {
	case LifeCycleLoaded:
		return "LOADED"
	case LifeCycleInstalled:
		return "INSTALLED"
	case LifeCycleRegistered:
		return "REGISTERED"
	default:
		return fmt.Sprintf("LifeCycle(%d)", uint8(l))
	}
}

// Record is one entry of the registry.
type Record struct {
	AID     aid.AID
	State   LifeCycle
	Applet  Applet
	Factory Factory
}

// generatedRID prefixes the AIDs handed out by Registry.Generate.
var generatedRID = []byte{0xF0, 0x00, 0x00, 0x00, 0x01}

// Registry maps AIDs to records and enforces their uniqueness.
// It is not safe for concurrent use; the Dispatcher serializes access.
type Registry struct {
	records map[aid.AID]*Record
	pending *Record
	// registered is the AID the pending install ended up registered under.
	registered aid.AID
	created    *Record
	generated  uint16
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[aid.AID]*Record)}
}

func duplicateAID(a aid.AID) error {
	return iso7816.NewError(iso7816.KindIllegalAid, iso7816.SW_ERR_FILE_ALREADY_EXISTS, "AID %s already present", a)
}

func unknownAID(a aid.AID) error {
	return iso7816.NewError(iso7816.KindIllegalAid, iso7816.SW_ERR_FILE_NOT_FOUND, "AID %s not found", a)
}

// Load creates a record in the Loaded state.
func (r *Registry) Load(a aid.AID, f Factory) error {
	if a.IsZero() {
		return iso7816.NewError(iso7816.KindIllegalAid, iso7816.SW_ERR_INCORRECT_PARAMS_DATA, "empty AID")
	}
	if f == nil {
		return iso7816.NewError(iso7816.KindIllegalValue, 0, "nil factory for %s", a)
	}
	if _, ok := r.records[a]; ok {
		return duplicateAID(a)
	}
	r.records[a] = &Record{AID: a, State: LifeCycleLoaded, Factory: f}
	return nil
}

// Install runs the install hook of the Loaded record a and returns the AID the
// instance registered under. On failure everything the hook registered is rolled
// back and the record is Loaded again.
//
// A hook that returns its instance without registering it gets it registered
// under params.InstanceAID. A hook that returns neither leaves the record
// Installed; Reset discards such records.
func (r *Registry) Install(a aid.AID, rt Runtime, params InstallParams) (aid.AID, error) {
	rec, ok := r.records[a]
	if !ok || rec.State != LifeCycleLoaded {
		return aid.AID{}, unknownAID(a)
	}

	r.pending = rec
	r.registered = aid.AID{}
	r.created = nil
	rec.State = LifeCycleInstalled

	app, err := rec.Factory.Install(rt, params)
	if err == nil && app != nil && r.registered.IsZero() {
		_, err = r.Register(params.InstanceAID, app)
	}
	if err != nil {
		r.rollback(rec)
		return aid.AID{}, &iso7816.Error{
			Kind:   iso7816.KindAppletCreationFailed,
			Status: iso7816.SW_APPLET_CREATION_FAILED,
			Detail: fmt.Sprintf("install %s", a),
			Err:    err,
		}
	}

	installed := r.registered
	if installed.IsZero() {
		installed = rec.AID
	}
	r.pending = nil
	r.created = nil
	return installed, nil
}

func (r *Registry) rollback(rec *Record) {
	if r.created != nil {
		delete(r.records, r.created.AID)
	}
	rec.State = LifeCycleLoaded
	rec.Applet = nil
	r.pending = nil
	r.created = nil
	r.registered = aid.AID{}
}

// Register binds app to the record being installed. A zero explicit AID (or the
// pending AID itself) registers the pending record; any other AID creates a new
// Registered record sharing the factory and returns the pending record to Loaded.
func (r *Registry) Register(explicit aid.AID, app Applet) (aid.AID, error) {
	rec := r.pending
	if rec == nil || rec.State != LifeCycleInstalled {
		return aid.AID{}, iso7816.NewError(iso7816.KindIllegalAid, iso7816.SW_ERR_COND_OF_USE_NOT_SAT, "no install in progress")
	}
	if app == nil {
		return aid.AID{}, iso7816.NewError(iso7816.KindIllegalValue, 0, "nil applet")
	}

	if explicit.IsZero() || explicit.Equal(rec.AID) {
		rec.Applet = app
		rec.State = LifeCycleRegistered
		r.registered = rec.AID
		return rec.AID, nil
	}

	if _, ok := r.records[explicit]; ok {
		return aid.AID{}, duplicateAID(explicit)
	}
	inst := &Record{AID: explicit, State: LifeCycleRegistered, Applet: app, Factory: rec.Factory}
	r.records[explicit] = inst
	r.created = inst
	r.registered = explicit
	rec.State = LifeCycleLoaded
	return explicit, nil
}

// Lookup returns the record for a in any state.
func (r *Registry) Lookup(a aid.AID) (*Record, bool) {
	rec, ok := r.records[a]
	return rec, ok
}

// LookupBytes is Lookup on n raw bytes of buf at off.
func (r *Registry) LookupBytes(buf []byte, off, n int) (*Record, bool) {
	a, err := aid.FromBytes(buf, off, n)
	if err != nil {
		return nil, false
	}
	return r.Lookup(a)
}

// LookupPrefix returns the first Registered record, in AID order, whose AID starts
// with prefix. An empty prefix returns the first Registered record.
func (r *Registry) LookupPrefix(prefix []byte) (*Record, bool) {
	var best *Record
	for _, rec := range r.records {
		if rec.State != LifeCycleRegistered || !rec.AID.PartialEqual(prefix) {
			continue
		}
		if best == nil || aid.Compare(rec.AID, best.AID) < 0 {
			best = rec
		}
	}
	return best, best != nil
}

// Delete removes the record for a.
func (r *Registry) Delete(a aid.AID) error {
	if _, ok := r.records[a]; !ok {
		return unknownAID(a)
	}
	delete(r.records, a)
	return nil
}

// Records returns a snapshot of every record ordered by AID.
func (r *Registry) Records() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return aid.Compare(a.AID, b.AID) })
	return out
}

// Registered returns the AIDs of every Registered record in AID order.
func (r *Registry) Registered() []aid.AID {
	var out []aid.AID
	for _, rec := range r.Records() {
		if rec.State == LifeCycleRegistered {
			out = append(out, rec.AID)
		}
	}
	return out
}

// Generate returns an unused AID made of a fixed RID and a two byte counter.
func (r *Registry) Generate() (aid.AID, error) {
	raw := make([]byte, len(generatedRID)+2)
	copy(raw, generatedRID)

	for range 1 << 16 {
		r.generated++
		bits.PutUint16(raw, len(generatedRID), int(r.generated))
		a, err := aid.New(raw)
		if err != nil {
			return aid.AID{}, err
		}
		if _, taken := r.records[a]; !taken {
			return a, nil
		}
	}
	return aid.AID{}, iso7816.NewError(iso7816.KindIllegalAid, iso7816.SW_ERR_NOT_ENOUGH_MEMORY, "generated AID space exhausted")
}

// discardIncomplete drops every record stuck in the Installed state and returns
// their AIDs.
func (r *Registry) discardIncomplete() []aid.AID {
	var dropped []aid.AID
	for a, rec := range r.records {
		if rec.State == LifeCycleInstalled {
			delete(r.records, a)
			dropped = append(dropped, a)
		}
	}
	r.pending = nil
	r.created = nil
	r.registered = aid.AID{}
	return dropped
}

// clear drops every record and the generated AID counter.
func (r *Registry) clear() {
	clear(r.records)
	r.pending = nil
	r.created = nil
	r.registered = aid.AID{}
	r.generated = 0
}
