package iso7816

import "fmt"

// ReadRecordMode is P2 bits 3-1 of READ RECORD (INS B2). With bit 3 set, P1 is
// a record number; otherwise it is a record identifier. Bits 8-4 hold the SFI,
// 0 meaning the current EF.
type ReadRecordMode byte

const (
	RefByID_FirstOccurrence    ReadRecordMode = 0b000
	RefByID_LastOccurrence     ReadRecordMode = 0b001
	RefByID_NextOccurrence     ReadRecordMode = 0b010
	RefByID_PreviousOccurrence ReadRecordMode = 0b011

	RefByNum_ReadP1              ReadRecordMode = 0b100
	RefByNum_ReadAllFromP1       ReadRecordMode = 0b101
	RefByNum_ReadAllFromLastToP1 ReadRecordMode = 0b110
)

// ByNumber reports whether P1 is a record number.
func (m ReadRecordMode) ByNumber() bool {
	return m&0b100 != 0
}

func (m ReadRecordMode) String() string {
	switch m {
	case RefByID_FirstOccurrence:
		return "id, first"
	case RefByID_LastOccurrence:
		return "id, last"
	case RefByID_NextOccurrence:
		return "id, next"
	case RefByID_PreviousOccurrence:
		return "id, previous"
	case RefByNum_ReadP1:
		return "record P1"
	case RefByNum_ReadAllFromP1:
		return "records P1 to last"
	case RefByNum_ReadAllFromLastToP1:
		return "records last to P1"
	}
	return fmt.Sprintf("ReadRecordMode(%03b)", byte(m))
}

// DecodeReadRecordP2 splits P2 of a received READ RECORD.
func DecodeReadRecordP2(p2 byte) (sfi byte, mode ReadRecordMode) {
	return p2 >> 3, ReadRecordMode(p2 & 0x07)
}

// NewReadRecordCommand builds a READ RECORD. It is always case 2 with Le 00.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode ReadRecordMode) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_RECORD)
	return NewCommandAPDU(cla, ins, p1, sfi<<3|byte(mode&0x07), nil, MaxShortLe)
}

// ReadRecord reads record n of the file sfi.
func ReadRecord(cla Class, sfi, n byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, n, RefByNum_ReadP1)
}

// ReadAllRecords reads the records of sfi from n to the last one.
func ReadAllRecords(cla Class, sfi, n byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, n, RefByNum_ReadAllFromP1)
}
