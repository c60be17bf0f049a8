package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardsim/pkg/bits"
)

// InsCode is the INS byte. In the interindustry class an odd INS announces a
// BER-TLV data field (READ BINARY B0, B1 with TLV). INS values 6X and 9X are
// invalid: a T=0 reader would take them for a procedure byte or a status word.
type InsCode byte

// IsValid reports whether the code is outside the 6X and 9X ranges.
func (c InsCode) IsValid() bool {
	hi := byte(c) & 0xF0
	return hi != 0x60 && hi != 0x90
}

// String returns the ISO command name, or the hex value of an unknown code.
func (c InsCode) String() string {
	if name, ok := insCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(%02X)", byte(c))
}

// Interindustry instructions of ISO/IEC 7816-4.
const (
	INS_DEACTIVATE_FILE              InsCode = 0x04
	INS_ERASE_RECORD                 InsCode = 0x0C
	INS_ERASE_BINARY                 InsCode = 0x0E
	INS_ERASE_BINARY_BER             InsCode = 0x0F
	INS_PERFORM_SCQL_OPERATION       InsCode = 0x10
	INS_PERFORM_TRANSACTION_OPER     InsCode = 0x12
	INS_PERFORM_USER_OPERATION       InsCode = 0x14
	INS_VERIFY                       InsCode = 0x20
	INS_VERIFY_BER                   InsCode = 0x21
	INS_MANAGE_SECURITY_ENVIRONMENT  InsCode = 0x22
	INS_CHANGE_REFERENCE_DATA        InsCode = 0x24
	INS_DISABLE_VERIF_REQ            InsCode = 0x26
	INS_ENABLE_VERIF_REQ             InsCode = 0x28
	INS_PERFORM_SECURITY_OPERATION   InsCode = 0x2A
	INS_RESET_RETRY_COUNTER          InsCode = 0x2C
	INS_ACTIVATE_FILE                InsCode = 0x44
	INS_GENERATE_ASYMMETRIC_KEY_PAIR InsCode = 0x46
	INS_MANAGE_CHANNEL               InsCode = 0x70
	INS_EXTERNAL_AUTHENTICATE        InsCode = 0x82
	INS_GET_CHALLENGE                InsCode = 0x84
	INS_GENERAL_AUTHENTICATE         InsCode = 0x86
	INS_GENERAL_AUTHENTICATE_BER     InsCode = 0x87
	INS_INTERNAL_AUTHENTICATE        InsCode = 0x88
	INS_SEARCH_BINARY                InsCode = 0xA0
	INS_SEARCH_BINARY_BER            InsCode = 0xA1
	INS_SEARCH_RECORD                InsCode = 0xA2
	INS_SELECT                       InsCode = 0xA4
	INS_READ_BINARY                  InsCode = 0xB0
	INS_READ_BINARY_BER              InsCode = 0xB1
	INS_READ_RECORD                  InsCode = 0xB2
	INS_READ_RECORD_BER              InsCode = 0xB3
	INS_GET_RESPONSE                 InsCode = 0xC0
	INS_ENVELOPE                     InsCode = 0xC2
	INS_ENVELOPE_BER                 InsCode = 0xC3
	INS_GET_DATA                     InsCode = 0xCA
	INS_GET_DATA_BER                 InsCode = 0xCB
	INS_WRITE_BINARY                 InsCode = 0xD0
	INS_WRITE_BINARY_BER             InsCode = 0xD1
	INS_WRITE_RECORD                 InsCode = 0xD2
	INS_UPDATE_BINARY                InsCode = 0xD6
	INS_UPDATE_BINARY_BER            InsCode = 0xD7
	INS_PUT_DATA                     InsCode = 0xDA
	INS_PUT_DATA_BER                 InsCode = 0xDB
	INS_UPDATE_RECORD                InsCode = 0xDC
	INS_UPDATE_RECORD_BER            InsCode = 0xDD
	INS_CREATE_FILE                  InsCode = 0xE0
	INS_APPEND_RECORD                InsCode = 0xE2
	INS_DELETE_FILE                  InsCode = 0xE4
	INS_TERMINATE_DF                 InsCode = 0xE6
	INS_TERMINATE_EF                 InsCode = 0xE8
	INS_TERMINATE_CARD_USAGE         InsCode = 0xFE
)

// INS_CREATE_APPLET is the administrative instruction the card runtime reserves,
// under a proprietary class (0x8X), for creating an application instance.
const INS_CREATE_APPLET InsCode = 0xB8

var insCodeNames = map[InsCode]string{
	INS_DEACTIVATE_FILE:              "DEACTIVATE FILE",
	INS_ERASE_RECORD:                 "ERASE RECORD",
	INS_ERASE_BINARY:                 "ERASE BINARY",
	INS_ERASE_BINARY_BER:             "ERASE BINARY (BER-TLV)",
	INS_PERFORM_SCQL_OPERATION:       "PERFORM SCQL OPERATION",
	INS_PERFORM_TRANSACTION_OPER:     "PERFORM TRANSACTION OPERATION",
	INS_PERFORM_USER_OPERATION:       "PERFORM USER OPERATION",
	INS_VERIFY:                       "VERIFY",
	INS_VERIFY_BER:                   "VERIFY (BER-TLV)",
	INS_MANAGE_SECURITY_ENVIRONMENT:  "MANAGE SECURITY ENVIRONMENT",
	INS_CHANGE_REFERENCE_DATA:        "CHANGE REFERENCE DATA",
	INS_DISABLE_VERIF_REQ:            "DISABLE VERIFICATION REQUIREMENT",
	INS_ENABLE_VERIF_REQ:             "ENABLE VERIFICATION REQUIREMENT",
	INS_PERFORM_SECURITY_OPERATION:   "PERFORM SECURITY OPERATION",
	INS_RESET_RETRY_COUNTER:          "RESET RETRY COUNTER",
	INS_ACTIVATE_FILE:                "ACTIVATE FILE",
	INS_GENERATE_ASYMMETRIC_KEY_PAIR: "GENERATE ASYMMETRIC KEY PAIR",
	INS_MANAGE_CHANNEL:               "MANAGE CHANNEL",
	INS_EXTERNAL_AUTHENTICATE:        "EXTERNAL AUTHENTICATE",
	INS_GET_CHALLENGE:                "GET CHALLENGE",
	INS_GENERAL_AUTHENTICATE:         "GENERAL AUTHENTICATE",
	INS_GENERAL_AUTHENTICATE_BER:     "GENERAL AUTHENTICATE (BER-TLV)",
	INS_INTERNAL_AUTHENTICATE:        "INTERNAL AUTHENTICATE",
	INS_SEARCH_BINARY:                "SEARCH BINARY",
	INS_SEARCH_BINARY_BER:            "SEARCH BINARY (BER-TLV)",
	INS_SEARCH_RECORD:                "SEARCH RECORD",
	INS_SELECT:                       "SELECT",
	INS_READ_BINARY:                  "READ BINARY",
	INS_READ_BINARY_BER:              "READ BINARY (BER-TLV)",
	INS_READ_RECORD:                  "READ RECORD",
	INS_READ_RECORD_BER:              "READ RECORD (BER-TLV)",
	INS_GET_RESPONSE:                 "GET RESPONSE",
	INS_ENVELOPE:                     "ENVELOPE",
	INS_ENVELOPE_BER:                 "ENVELOPE (BER-TLV)",
	INS_GET_DATA:                     "GET DATA",
	INS_GET_DATA_BER:                 "GET DATA (BER-TLV)",
	INS_WRITE_BINARY:                 "WRITE BINARY",
	INS_WRITE_BINARY_BER:             "WRITE BINARY (BER-TLV)",
	INS_WRITE_RECORD:                 "WRITE RECORD",
	INS_UPDATE_BINARY:                "UPDATE BINARY",
	INS_UPDATE_BINARY_BER:            "UPDATE BINARY (BER-TLV)",
	INS_PUT_DATA:                     "PUT DATA",
	INS_PUT_DATA_BER:                 "PUT DATA (BER-TLV)",
	INS_UPDATE_RECORD:                "UPDATE RECORD",
	INS_UPDATE_RECORD_BER:            "UPDATE RECORD (BER-TLV)",
	INS_CREATE_FILE:                  "CREATE FILE",
	INS_APPEND_RECORD:                "APPEND RECORD",
	INS_DELETE_FILE:                  "DELETE FILE",
	INS_TERMINATE_DF:                 "TERMINATE DF",
	INS_TERMINATE_EF:                 "TERMINATE EF",
	INS_TERMINATE_CARD_USAGE:         "TERMINATE CARD USAGE",
}

// Instruction is a validated INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction rejects the 6X and 9X ranges.
func NewInstruction(ins InsCode) (Instruction, error) {
	if !ins.IsValid() {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}
	return Instruction{Raw: ins, IsBERTLV: bits.IsSet(byte(ins), 1)}, nil
}

// Verbose reads like "INS A4 SELECT" or "INS B1 READ BINARY (BER-TLV), TLV data".
func (i Instruction) Verbose() string {
	s := fmt.Sprintf("INS %02X %s", byte(i.Raw), i.Raw)
	if i.IsBERTLV {
		s += ", TLV data"
	}
	return s
}
