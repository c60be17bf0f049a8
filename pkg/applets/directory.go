package applets

import (
	"github.com/gregLibert/cardsim/pkg/aid"
	"github.com/gregLibert/cardsim/pkg/apdu"
	"github.com/gregLibert/cardsim/pkg/card"
	"github.com/gregLibert/cardsim/pkg/iso7816"
	"github.com/gregLibert/cardsim/pkg/tlv"
)

// DirectorySFI is the short file identifier READ RECORD uses for the directory.
const DirectorySFI = 0x01

const directoryLabel = "DIRECTORY"

type dirProprietary struct {
	Label []byte `tlv:"50"`
	SFI   []byte `tlv:"88"`
}

type dirFCI struct {
	DFName      []byte          `tlv:"84"`
	Proprietary *dirProprietary `tlv:"A5"`
}

type dirFCITemplate struct {
	FCI dirFCI `tlv:"6F"`
}

type dirEntry struct {
	AID []byte `tlv:"4F"`
}

type dirRecord struct {
	Entries []dirEntry `tlv:"61"`
}

type dirRecordTemplate struct {
	Record dirRecord `tlv:"70"`
}

// Directory answers SELECT with an FCI (6F / 84 / A5 / 50, 88) and READ RECORD n
// with a 70 template holding the n-th other registered applet.
type Directory struct {
	rt   card.Runtime
	self aid.AID
}

func NewDirectory() card.Factory {
	return card.FactoryFunc(func(rt card.Runtime, p card.InstallParams) (card.Applet, error) {
		d := &Directory{rt: rt}
		self, err := rt.Register(p.InstanceAID, d)
		if err != nil {
			return nil, err
		}
		d.self = self
		return d, nil
	})
}

func (d *Directory) Select() bool { return true }
func (d *Directory) Deselect()    {}

func (d *Directory) Process(t *apdu.Transfer) error {
	_, ins, p1, p2 := header(t)

	if isSelect(d.rt, t) {
		if ctrl, _ := iso7816.DecodeSelectP2(p2); ctrl == iso7816.ReturnNoData {
			return nil
		}
		return d.sendFCI(t)
	}

	switch iso7816.InsCode(ins) {
	case iso7816.INS_READ_RECORD:
		return d.readRecord(t, p1, p2)
	default:
		return iso7816.Throw(iso7816.SW_ERR_INS_INVALID)
	}
}

func (d *Directory) sendFCI(t *apdu.Transfer) error {
	out, err := tlv.Marshal(dirFCITemplate{FCI: dirFCI{
		DFName: d.self.Bytes(),
		Proprietary: &dirProprietary{
			Label: []byte(directoryLabel),
			SFI:   []byte{DirectorySFI},
		},
	}})
	if err != nil {
		return err
	}
	return respond(t, out)
}

func (d *Directory) readRecord(t *apdu.Transfer, p1, p2 byte) error {
	sfi, mode := iso7816.DecodeReadRecordP2(p2)
	if sfi != 0 && sfi != DirectorySFI {
		return iso7816.Throw(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	if mode != iso7816.RefByNum_ReadP1 || p1 == 0 {
		return iso7816.Throw(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}

	entries := d.entries()
	n := int(p1)
	if n > len(entries) {
		return iso7816.Throw(iso7816.SW_ERR_RECORD_NOT_FOUND)
	}

	out, err := tlv.Marshal(dirRecordTemplate{Record: dirRecord{
		Entries: []dirEntry{{AID: entries[n-1].Bytes()}},
	}})
	if err != nil {
		return err
	}
	return respond(t, out)
}

// entries lists the registered applets other than the directory, in AID order.
func (d *Directory) entries() []aid.AID {
	var out []aid.AID
	for _, a := range d.rt.RegisteredAIDs() {
		if !a.Equal(d.self) {
			out = append(out, a)
		}
	}
	return out
}
