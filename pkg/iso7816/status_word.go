package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardsim/pkg/bits"
)

// StatusWord is SW1 SW2, the trailer of every response.
//
// A few ranges carry a value in SW2 instead of a fixed meaning: 61XX (XX bytes
// wait for GET RESPONSE), 6CXX (the right Le is XX), 62XX and 64XX with XX in
// 02..80 (the card asks to be queried for XX bytes) and 63CX (counter X).
type StatusWord uint16

func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsTriggeringByCard matches 6202..6280 and 6402..6480.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	return (sw1 == 0x62 || sw1 == 0x64) && sw2 >= 0x02 && sw2 <= 0x80
}

// IsCounter matches 63C0..63CF.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess is true for 9000 and 61XX.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning is true for 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError is true for 64XX through 6FXX.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose describes the status word for a human. Dynamic ranges are decoded
// before the fixed table is consulted.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	switch {
	case sw.IsTriggeringByCard() && sw1 == 0x62:
		return fmt.Sprintf("Warning (Triggering): Card expects query of %d bytes", sw2)
	case sw.IsTriggeringByCard():
		return fmt.Sprintf("Error/Abort (Triggering): Card expects query of %d bytes", sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.GetRange(sw2, 4, 1))
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	if info, ok := statusWordInfo[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), info.text)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.category())
}

// String returns the constant name of a known status word, or its hex value.
func (sw StatusWord) String() string {
	if info, ok := statusWordInfo[sw]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusWord(%04X)", uint16(sw))
}

// AppendTo appends SW1 SW2 to a response body, producing a complete R-APDU.
func (sw StatusWord) AppendTo(data []byte) []byte {
	return append(data, sw.SW1(), sw.SW2())
}

func (sw StatusWord) category() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x67, 0x6B, 0x6D, 0x6E, 0x6F:
		return "Checking Error"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	case 0x90:
		return "Success, proprietary qualifier"
	}
	return "Unknown Status"
}

// Standard Status Word codes defined in ISO/IEC 7816-4.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO              StatusWord = 0x6200
	SW_WARN_TRIGGERING_BY_CARD   StatusWord = 0x6202
	SW_WARN_DATA_CORRUPTED       StatusWord = 0x6281
	SW_WARN_EOF_REACHED          StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED     StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT       StatusWord = 0x6284
	SW_WARN_TERMINATION_STATE    StatusWord = 0x6285
	SW_WARN_NO_INPUT_FROM_SENSOR StatusWord = 0x6286

	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_EXEC_NO_INFO            StatusWord = 0x6400
	SW_ERR_EXEC_IMMEDIATE_RESPONSE StatusWord = 0x6401
	SW_ERR_EXEC_TRIGGERING_BY_CARD StatusWord = 0x6402

	SW_ERR_NV_CHANGED_NO_INFO StatusWord = 0x6500
	SW_ERR_MEMORY_FAILURE     StatusWord = 0x6581
	SW_ERR_SECURITY_ISSUE     StatusWord = 0x6600

	SW_ERR_WRONG_LENGTH              StatusWord = 0x6700
	SW_ERR_CHECKING_NO_INFO          StatusWord = 0x6800
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882
	SW_ERR_LAST_COMMAND_EXPECTED     StatusWord = 0x6883
	SW_ERR_CHAINING_NOT_SUPP         StatusWord = 0x6884

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986
	SW_ERR_SM_OBJ_MISSING          StatusWord = 0x6987
	SW_ERR_SM_OBJ_INCORRECT        StatusWord = 0x6988

	SW_ERR_WRONG_PARAMS_NO_INFO   StatusWord = 0x6A00
	SW_ERR_INCORRECT_PARAMS_DATA  StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED     StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND         StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND       StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY      StatusWord = 0x6A84
	SW_ERR_NC_INCONSISTENT_TLV    StatusWord = 0x6A85
	SW_ERR_INCORRECT_PARAMS_P1P2  StatusWord = 0x6A86
	SW_ERR_NC_INCONSISTENT_P1P2   StatusWord = 0x6A87
	SW_ERR_REF_DATA_NOT_FOUND     StatusWord = 0x6A88
	SW_ERR_FILE_ALREADY_EXISTS    StatusWord = 0x6A89
	SW_ERR_DF_NAME_ALREADY_EXISTS StatusWord = 0x6A8A

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

// Card runtime status words. They sit in ranges ISO 7816-4 leaves to the card issuer
// and are only produced by the runtime itself, never by well behaved applications.
const (
	// SW_APPLET_CREATION_FAILED answers an install request whose factory failed.
	SW_APPLET_CREATION_FAILED StatusWord = 0x6443
	// SW_EXCEPTION_OCCURRED answers an administrative request the runtime could not decode.
	SW_EXCEPTION_OCCURRED StatusWord = 0x6444
	// SW_APPLET_SELECT_FAILED answers a SELECT whose target refused selection.
	SW_APPLET_SELECT_FAILED StatusWord = 0x6999
)

var statusWordInfo = map[StatusWord]struct{ name, text string }{
	SW_NO_ERROR:                      {"SW_NO_ERROR", "Success"},
	SW_WARN_NO_INFO:                  {"SW_WARN_NO_INFO", "Warning, NV memory unchanged"},
	SW_WARN_TRIGGERING_BY_CARD:       {"SW_WARN_TRIGGERING_BY_CARD", "Triggering by the card"},
	SW_WARN_DATA_CORRUPTED:           {"SW_WARN_DATA_CORRUPTED", "Part of the returned data may be corrupted"},
	SW_WARN_EOF_REACHED:              {"SW_WARN_EOF_REACHED", "End of file or record reached before reading Ne bytes"},
	SW_WARN_FILE_DEACTIVATED:         {"SW_WARN_FILE_DEACTIVATED", "Selected file deactivated"},
	SW_WARN_FCI_BAD_FORMAT:           {"SW_WARN_FCI_BAD_FORMAT", "File control information not formatted per ISO 7816-4"},
	SW_WARN_TERMINATION_STATE:        {"SW_WARN_TERMINATION_STATE", "Selected file in termination state"},
	SW_WARN_NO_INPUT_FROM_SENSOR:     {"SW_WARN_NO_INPUT_FROM_SENSOR", "No input data available from a sensor"},
	SW_WARN_NV_CHANGED_NO_INFO:       {"SW_WARN_NV_CHANGED_NO_INFO", "Warning, NV memory changed"},
	SW_WARN_FILE_FILLED:              {"SW_WARN_FILE_FILLED", "File filled up by the last write"},
	SW_WARN_COUNTER_0:                {"SW_WARN_COUNTER_0", "Counter at 0"},
	SW_ERR_EXEC_NO_INFO:              {"SW_ERR_EXEC_NO_INFO", "Execution error, NV memory unchanged"},
	SW_ERR_EXEC_IMMEDIATE_RESPONSE:   {"SW_ERR_EXEC_IMMEDIATE_RESPONSE", "Immediate response required by the card"},
	SW_ERR_EXEC_TRIGGERING_BY_CARD:   {"SW_ERR_EXEC_TRIGGERING_BY_CARD", "Execution error, triggering by the card"},
	SW_ERR_NV_CHANGED_NO_INFO:        {"SW_ERR_NV_CHANGED_NO_INFO", "Execution error, NV memory changed"},
	SW_ERR_MEMORY_FAILURE:            {"SW_ERR_MEMORY_FAILURE", "Memory failure"},
	SW_ERR_SECURITY_ISSUE:            {"SW_ERR_SECURITY_ISSUE", "Security-related issue"},
	SW_ERR_WRONG_LENGTH:              {"SW_ERR_WRONG_LENGTH", "Wrong length"},
	SW_ERR_CHECKING_NO_INFO:          {"SW_ERR_CHECKING_NO_INFO", "Functions in CLA not supported"},
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP:  {"SW_ERR_LOGICAL_CHANNEL_NOT_SUPP", "Logical channel not supported"},
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: {"SW_ERR_SECURE_MESSAGING_NOT_SUPP", "Secure messaging not supported"},
	SW_ERR_LAST_COMMAND_EXPECTED:     {"SW_ERR_LAST_COMMAND_EXPECTED", "Last command of the chain expected"},
	SW_ERR_CHAINING_NOT_SUPP:         {"SW_ERR_CHAINING_NOT_SUPP", "Command chaining not supported"},
	SW_ERR_CMD_NOT_ALLOWED_NO_INFO:   {"SW_ERR_CMD_NOT_ALLOWED_NO_INFO", "Command not allowed"},
	SW_ERR_CMD_INCOMPATIBLE_FILE:     {"SW_ERR_CMD_INCOMPATIBLE_FILE", "Command incompatible with file structure"},
	SW_ERR_SECURITY_STATUS_NOT_SAT:   {"SW_ERR_SECURITY_STATUS_NOT_SAT", "Security status not satisfied"},
	SW_ERR_AUTH_METHOD_BLOCKED:       {"SW_ERR_AUTH_METHOD_BLOCKED", "Authentication method blocked"},
	SW_ERR_REF_DATA_NOT_USABLE:       {"SW_ERR_REF_DATA_NOT_USABLE", "Reference data not usable"},
	SW_ERR_COND_OF_USE_NOT_SAT:       {"SW_ERR_COND_OF_USE_NOT_SAT", "Conditions of use not satisfied"},
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:     {"SW_ERR_CMD_NOT_ALLOWED_NO_EF", "Command not allowed, no current EF"},
	SW_ERR_SM_OBJ_MISSING:            {"SW_ERR_SM_OBJ_MISSING", "Expected secure messaging data objects missing"},
	SW_ERR_SM_OBJ_INCORRECT:          {"SW_ERR_SM_OBJ_INCORRECT", "Incorrect secure messaging data objects"},
	SW_ERR_WRONG_PARAMS_NO_INFO:      {"SW_ERR_WRONG_PARAMS_NO_INFO", "Wrong parameters P1-P2"},
	SW_ERR_INCORRECT_PARAMS_DATA:     {"SW_ERR_INCORRECT_PARAMS_DATA", "Incorrect parameters in the data field"},
	SW_ERR_FUNC_NOT_SUPPORTED:        {"SW_ERR_FUNC_NOT_SUPPORTED", "Function not supported"},
	SW_ERR_FILE_NOT_FOUND:            {"SW_ERR_FILE_NOT_FOUND", "File or application not found"},
	SW_ERR_RECORD_NOT_FOUND:          {"SW_ERR_RECORD_NOT_FOUND", "Record not found"},
	SW_ERR_NOT_ENOUGH_MEMORY:         {"SW_ERR_NOT_ENOUGH_MEMORY", "Not enough memory space in the file"},
	SW_ERR_NC_INCONSISTENT_TLV:       {"SW_ERR_NC_INCONSISTENT_TLV", "Nc inconsistent with TLV structure"},
	SW_ERR_INCORRECT_PARAMS_P1P2:     {"SW_ERR_INCORRECT_PARAMS_P1P2", "Incorrect parameters P1-P2"},
	SW_ERR_NC_INCONSISTENT_P1P2:      {"SW_ERR_NC_INCONSISTENT_P1P2", "Nc inconsistent with parameters P1-P2"},
	SW_ERR_REF_DATA_NOT_FOUND:        {"SW_ERR_REF_DATA_NOT_FOUND", "Referenced data or reference data not found"},
	SW_ERR_FILE_ALREADY_EXISTS:       {"SW_ERR_FILE_ALREADY_EXISTS", "File already exists"},
	SW_ERR_DF_NAME_ALREADY_EXISTS:    {"SW_ERR_DF_NAME_ALREADY_EXISTS", "DF name already exists"},
	SW_ERR_WRONG_P1P2:                {"SW_ERR_WRONG_P1P2", "Wrong parameters P1-P2"},
	SW_ERR_INS_INVALID:               {"SW_ERR_INS_INVALID", "Instruction code not supported or invalid"},
	SW_ERR_CLA_NOT_SUPPORTED:         {"SW_ERR_CLA_NOT_SUPPORTED", "Class not supported"},
	SW_ERR_UNKNOWN:                   {"SW_ERR_UNKNOWN", "No precise diagnosis"},
	SW_APPLET_CREATION_FAILED:        {"SW_APPLET_CREATION_FAILED", "Applet creation failed"},
	SW_EXCEPTION_OCCURRED:            {"SW_EXCEPTION_OCCURRED", "Runtime exception"},
	SW_APPLET_SELECT_FAILED:          {"SW_APPLET_SELECT_FAILED", "Applet refused selection"},
}
