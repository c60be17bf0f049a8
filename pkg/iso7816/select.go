package iso7816

import "fmt"

// SELECT (INS A4): P1 is the selection method. P2 bits 4-3 choose the response
// template and bits 2-1 the occurrence. A card decodes P2 with DecodeSelectP2;
// a terminal builds the command with NewSelectCommand.

// SelectionMethod is P1 of a SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:          "by file ID",
	SelectChildDF:           "child DF",
	SelectEFUnderCurrentDF:  "EF under current DF",
	SelectParentDF:          "parent DF",
	SelectByDFName:          "by DF name",
	SelectPathFromMF:        "path from MF",
	SelectPathFromCurrentDF: "path from current DF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SelectionMethod(%02X)", byte(s))
}

// FileOccurrence is P2 bits 2-1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0x00
	LastOccurrence        FileOccurrence = 0x01
	NextOccurrence        FileOccurrence = 0x02
	PreviousOccurrence    FileOccurrence = 0x03
)

func (f FileOccurrence) String() string {
	return [...]string{"first", "last", "next", "previous"}[f&occurrenceMask]
}

// SelectionControl is P2 bits 4-3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0x00
	ReturnFCP    SelectionControl = 0x04
	ReturnFMD    SelectionControl = 0x08
	ReturnNoData SelectionControl = 0x0C
)

func (s SelectionControl) String() string {
	return [...]string{"FCI", "FCP", "FMD", "no data"}[(s&selectionControlMask)>>2]
}

const (
	selectionControlMask = 0x0C
	occurrenceMask       = 0x03
)

// DecodeSelectP2 splits P2 of a received SELECT.
func DecodeSelectP2(p2 byte) (SelectionControl, FileOccurrence) {
	return SelectionControl(p2 & selectionControlMask), FileOccurrence(p2 & occurrenceMask)
}

// NewSelectCommand builds a SELECT. A command with data carries no Le so that it
// stays case 3 under T=0, where the card answers 61XX and the Client fetches the
// data with GET RESPONSE.
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_SELECT)
	p2 := byte(ctrl&selectionControlMask) | byte(occurrence&occurrenceMask)

	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, ins, byte(method), p2, data, ne)
}

// SelectByAID selects the first application whose AID starts with aid.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectMF selects the master file.
func SelectMF(cla Class) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil)
}
