package iso7816

// Transaction is one C-APDU and the R-APDU that answered it.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess is false when the response is missing.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace is the list of transactions a Client made for one logical command,
// including the GET RESPONSE or re-sent command that 61XX and 6CXX trigger.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess judges the trace by its final transaction.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Result returns the data and status of the final response. An empty trace
// yields SW_ERR_UNKNOWN.
func (t Trace) Result() ([]byte, StatusWord) {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil, SW_ERR_UNKNOWN
	}
	return last.Response.Data, last.Response.Status
}
