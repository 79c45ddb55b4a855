package iso7816

// TRANSACTION:
// One Command APDU sent by the terminal, followed by one Response APDU.
//
// TRACE:
// A chronological sequence of Transactions capturing a full logical operation.
// A single logical intent (e.g. "Select File") may take several physical
// transactions when the card answers 61XX (GET RESPONSE follows) or 6CXX
// (the command is re-sent with the suggested Le).

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace, or nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the status word of the final transaction.
// An empty trace reports SW_COMMAND_ABORTED.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return SW_COMMAND_ABORTED
	}
	return last.Response.Status
}
