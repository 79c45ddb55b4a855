package iso7816

import (
	"encoding/hex"
	"fmt"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the command to be performed by the card. The emulator
// never interprets the command beyond this byte: INS is a pure dispatch key.
//
// 1. Data Encoding (Bit 1):
//    When using the interindustry class, bit 1 indicates the format of the data field.
//    - 0: Standard or no specific formatting.
//    - 1: BER-TLV encoded data structure.
//    The NDEF read of an NFC Forum Type 4 tag uses the odd READ BINARY code (0xB1).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    These values are reserved for Status Words (SW1) or transport layer control
//    procedures (ISO/IEC 7816-3).
//
// 3. Position:
//    INS is the second byte of every command, i.e. the third and fourth characters
//    of the command's hexadecimal form.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction (INS) codes known to the emulator.
const (
	INS_PERFORM_SECURITY_OPERATION      InsCode = 0x2A
	INS_VERIFY                          InsCode = 0x20
	INS_INTERNAL_AUTHENTICATE           InsCode = 0x88
	INS_GET_CHALLENGE                   InsCode = 0x84
	INS_SELECT                          InsCode = 0xA4
	INS_GET_PROCESSING_OPTIONS          InsCode = 0xA8
	INS_GENERATE_APPLICATION_CRYPTOGRAM InsCode = 0xAE
	INS_READ_BINARY                     InsCode = 0xB0
	INS_READ_NDEF                       InsCode = 0xB1
	INS_READ_RECORD                     InsCode = 0xB2
	INS_GET_RESPONSE                    InsCode = 0xC0
	INS_GET_DATA                        InsCode = 0xCA
	INS_WRITE_BINARY                    InsCode = 0xD0
	INS_UPDATE_BINARY                   InsCode = 0xD6
)

var insCodeNames = map[InsCode]string{
	INS_PERFORM_SECURITY_OPERATION:      "INS_PERFORM_SECURITY_OPERATION",
	INS_VERIFY:                          "INS_VERIFY",
	INS_INTERNAL_AUTHENTICATE:           "INS_INTERNAL_AUTHENTICATE",
	INS_GET_CHALLENGE:                   "INS_GET_CHALLENGE",
	INS_SELECT:                          "INS_SELECT",
	INS_GET_PROCESSING_OPTIONS:          "INS_GET_PROCESSING_OPTIONS",
	INS_GENERATE_APPLICATION_CRYPTOGRAM: "INS_GENERATE_APPLICATION_CRYPTOGRAM",
	INS_READ_BINARY:                     "INS_READ_BINARY",
	INS_READ_NDEF:                       "INS_READ_NDEF",
	INS_READ_RECORD:                     "INS_READ_RECORD",
	INS_GET_RESPONSE:                    "INS_GET_RESPONSE",
	INS_GET_DATA:                        "INS_GET_DATA",
	INS_WRITE_BINARY:                    "INS_WRITE_BINARY",
	INS_UPDATE_BINARY:                   "INS_UPDATE_BINARY",
}

// String returns the constant name of a known instruction code.
func (c InsCode) String() string {
	if name, ok := insCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(%d)", byte(c))
}

// Hex returns the 2-digit upper-case form used in table patterns (e.g. "A4").
func (c InsCode) Hex() string {
	return fmt.Sprintf("%02X", byte(c))
}

// ParseInsCode extracts the instruction code from a hexadecimal command.
// The second return is false if the command is too short or the INS slice is not hex.
func ParseInsCode(commandHex string) (InsCode, bool) {
	if len(commandHex) < 4 {
		return 0, false
	}
	b, err := hex.DecodeString(commandHex[2:4])
	if err != nil {
		return 0, false
	}
	return InsCode(b[0]), true
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: byte(ins)&0x01 != 0,
	}, nil
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
