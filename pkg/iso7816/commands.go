package iso7816

// Command builders used by terminal-side tooling (demo flow, oracle probes).
//
// SELECT (INS 'A4'):
//   P1 is the selection method, P2 combines the response type (bits 4-3) and
//   the occurrence (bits 2-1). Selecting by DF name (AID) is P1=04, P2=00.
//   A SELECT carrying data is sent without Le for T=0 compatibility: the card
//   answers 61XX and the Client fetches the data with GET RESPONSE.
//
// READ RECORD (INS 'B2'):
//   P2 = (SFI << 3) | 0b100 reads record number P1 of the given SFI.
//
// GET PROCESSING OPTIONS (INS 'A8', CLA '80'):
//   Data is the PDOL related data wrapped in tag '83'.

// Selection methods (P1 of SELECT).
const (
	SelectByFileID byte = 0x00
	SelectByDFName byte = 0x04
)

// P2 of READ RECORD when P1 is a record number.
const readRecordByNumber byte = 0b100

var emvProprietaryClass = Class{Raw: 0x80, IsProprietary: true}

func mustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// SelectByAID creates a SELECT command targeting an application by its name (AID).
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), SelectByDFName, 0x00, aid, 0)
}

// SelectMF creates a command to select the Master File.
func SelectMF(cla Class) *CommandAPDU {
	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), SelectByFileID, 0x00, nil, MaxShortLe)
}

// ReadRecord reads a specific record by its number from the given SFI (0 = current EF).
func ReadRecord(cla Class, sfi byte, recordNumber byte) *CommandAPDU {
	p2 := (sfi << 3) | readRecordByNumber
	return NewCommandAPDU(cla, mustInstruction(INS_READ_RECORD), recordNumber, p2, nil, MaxShortLe)
}

// ReadBinary reads ne bytes from the current transparent EF starting at offset.
func ReadBinary(cla Class, offset uint16, ne int) *CommandAPDU {
	return NewCommandAPDU(cla, mustInstruction(INS_READ_BINARY), byte(offset>>8), byte(offset), nil, ne)
}

// GetData retrieves the data object identified by the two-byte tag in P1-P2.
func GetData(cla Class, tag uint16) *CommandAPDU {
	return NewCommandAPDU(cla, mustInstruction(INS_GET_DATA), byte(tag>>8), byte(tag), nil, MaxShortLe)
}

// GetProcessingOptions creates the EMV GPO command (CLA 80) for the given PDOL related data.
func GetProcessingOptions(pdolData []byte) *CommandAPDU {
	data := make([]byte, 0, len(pdolData)+2)
	data = append(data, 0x83, byte(len(pdolData)))
	data = append(data, pdolData...)
	return NewCommandAPDU(emvProprietaryClass, mustInstruction(INS_GET_PROCESSING_OPTIONS), 0x00, 0x00, data, MaxShortLe)
}
