/*
Package iso7816 holds the ISO/IEC 7816-4 vocabulary shared by both ends of a card session: command and response APDUs, class and instruction bytes, status words, and the errors a card answers with.

# Fundamentals

The exchange is strictly synchronous:
 1. The terminal sends a command APDU (header, then an optional body).
 2. The card answers with a response APDU (optional data, then SW1 SW2).

A command is one of four cases, each short or extended. Classify reads the case, Nc, Ne and the data offset from a raw command without copying it; ParseCommandAPDU also decodes the header into a CommandAPDU.

# Status Words

Every response ends with a 2-byte status word.
  - 0x9000: success.
  - 0x61XX: success, XX more bytes are waiting for GET RESPONSE.
  - 0x62XX, 0x63XX: warnings.
  - 0x6CXX: wrong Le, XX is the right one.
  - Other: errors.

# Errors

Card code reports failures as *Error values carrying a Kind and the status word to answer with. Throw builds one from a status word alone:

	if p1 == 0 {
	    return iso7816.Throw(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}

errors.Is matches on the kind, and also on the status word when the target carries one.

# Terminal Side

Client drives any Transmitter, a PC/SC card or the simulated card alike, and follows 61XX and 6CXX on its own. Each call returns the Trace of the transactions it took:

	client := iso7816.NewClient(card)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
	    log.Fatal(err)
	}
	data, sw := trace.Result()
*/
package iso7816
