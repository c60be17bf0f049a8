package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func makeTx(data []byte, sw StatusWord) Transaction {
	return Transaction{
		Command:  &CommandAPDU{},
		Response: &ResponseAPDU{Data: data, Status: sw},
	}
}

func TestTransaction_IsSuccess(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{"9000", makeTx(nil, SW_NO_ERROR), true},
		{"61XX counts as success", makeTx(nil, NewStatusWord(0x61, 0x10)), true},
		{"6A82", makeTx(nil, SW_ERR_FILE_NOT_FOUND), false},
		{"No response", Transaction{Command: &CommandAPDU{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.IsSuccess(); got != tt.want {
				t.Errorf("IsSuccess() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestTrace(t *testing.T) {
	tests := []struct {
		name     string
		trace    Trace
		wantOK   bool
		wantData []byte
		wantSW   StatusWord
	}{
		{"Empty", nil, false, nil, SW_ERR_UNKNOWN},
		{"Single", Trace{makeTx([]byte{0x01}, SW_NO_ERROR)}, true, []byte{0x01}, SW_NO_ERROR},
		{
			"GET RESPONSE after 61XX",
			Trace{makeTx(nil, NewStatusWord(0x61, 0x02)), makeTx([]byte{0xCA, 0xFE}, SW_NO_ERROR)},
			true, []byte{0xCA, 0xFE}, SW_NO_ERROR,
		},
		{
			"Failure at the end",
			Trace{makeTx(nil, SW_NO_ERROR), makeTx(nil, SW_ERR_FILE_NOT_FOUND)},
			false, nil, SW_ERR_FILE_NOT_FOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trace.IsSuccess(); got != tt.wantOK {
				t.Errorf("IsSuccess() = %v; want %v", got, tt.wantOK)
			}
			data, sw := tt.trace.Result()
			if sw != tt.wantSW {
				t.Errorf("Result() status = %v; want %v", sw, tt.wantSW)
			}
			if diff := cmp.Diff(tt.wantData, data); diff != "" {
				t.Errorf("Result() data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
