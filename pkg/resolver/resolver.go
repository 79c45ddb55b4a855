// Package resolver answers validated command APDUs from a lookup table.
//
// Commands are classified by instruction code. Commands carrying a selector or
// payload that must match precisely (SELECT, GET PROCESSING OPTIONS, READ
// RECORD) are looked up by their full hex form; every other supported
// instruction answers with the first table entry sharing its instruction code.
// A miss is answered with an instruction-specific status word, never an error.
package resolver

import (
	"github.com/gregLibert/cardemu/pkg/apdutable"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

// Advisory labels describing which case handled the last command.
const (
	LabelSelect                 = "SELECT"
	LabelReadBinary             = "READ BINARY"
	LabelWriteBinary            = "WRITE BINARY"
	LabelUpdateBinary           = "UPDATE BINARY"
	LabelReadRecord             = "READ RECORD"
	LabelReadNDEF               = "READ NDEF"
	LabelPerformSecurity        = "PERFORM SECURITY OPERATION"
	LabelGetProcessingOptions   = "GET PROCESSING OPTIONS"
	LabelGenerateAC             = "GENERATE APPLICATION CRYPTOGRAM"
	LabelGetData                = "GET DATA"
	LabelInstructionUnsupported = "Instruction not supported"
)

type matchMode int

const (
	matchExact matchMode = iota
	matchInstruction
)

// rule describes how one instruction is answered.
type rule struct {
	label  string
	match  matchMode
	onMiss iso7816.StatusWord
}

var rules = map[iso7816.InsCode]rule{
	iso7816.INS_SELECT:                          {LabelSelect, matchExact, iso7816.SW_ERR_FILE_NOT_FOUND},
	iso7816.INS_GET_PROCESSING_OPTIONS:          {LabelGetProcessingOptions, matchExact, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_READ_RECORD:                     {LabelReadRecord, matchExact, iso7816.SW_ERR_RECORD_NOT_FOUND},
	iso7816.INS_READ_BINARY:                     {LabelReadBinary, matchInstruction, iso7816.SW_ERR_RECORD_NOT_FOUND},
	iso7816.INS_WRITE_BINARY:                    {LabelWriteBinary, matchInstruction, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_UPDATE_BINARY:                   {LabelUpdateBinary, matchInstruction, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_READ_NDEF:                       {LabelReadNDEF, matchInstruction, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_PERFORM_SECURITY_OPERATION:      {LabelPerformSecurity, matchInstruction, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_GENERATE_APPLICATION_CRYPTOGRAM: {LabelGenerateAC, matchInstruction, iso7816.SW_COMMAND_ABORTED},
	iso7816.INS_GET_DATA:                        {LabelGetData, matchInstruction, iso7816.SW_COMMAND_ABORTED},
}

// Supported reports whether the resolver has a case for the instruction.
func Supported(ins iso7816.InsCode) bool {
	_, ok := rules[ins]
	return ok
}

// Label returns the advisory label the resolver uses for an instruction.
func Label(ins iso7816.InsCode) string {
	if rl, ok := rules[ins]; ok {
		return rl.label
	}
	return LabelInstructionUnsupported
}

// Resolver answers commands from a read-only table. It is safe for concurrent use.
type Resolver struct {
	table *apdutable.Table
}

// New creates a resolver over the given table. A nil table answers every
// supported instruction with its miss status.
func New(table *apdutable.Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the response for an already validated command and the label
// of the case that handled it. It never blocks and never fails.
func (r *Resolver) Resolve(commandHex string) ([]byte, string) {
	ins, ok := iso7816.ParseInsCode(commandHex)
	if !ok {
		return iso7816.SW_INS_NOT_SUPPORTED.Bytes(), LabelInstructionUnsupported
	}

	rl, ok := rules[ins]
	if !ok {
		return iso7816.SW_INS_NOT_SUPPORTED.Bytes(), LabelInstructionUnsupported
	}

	var (
		resp  []byte
		found bool
	)
	switch rl.match {
	case matchExact:
		resp, found = r.table.FindExact(commandHex)
	case matchInstruction:
		resp, found = r.table.FindByInstruction(ins)
	}

	if !found {
		return rl.onMiss.Bytes(), rl.label
	}
	return resp, rl.label
}
