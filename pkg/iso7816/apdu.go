package iso7816

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A mandatory Header (CLA, INS, P1, P2) and an optional Body (Lc, Data, Le).
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.
//
// RESPONSE APDU (R-APDU):
// An optional Body followed by the mandatory Trailer SW1 SW2.
//
// The emulator only accepts commands carrying at least the header and one
// length byte, which is MinAPDUHexLength hexadecimal digits.

const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	// MinAPDUHexLength is CLA + INS + P1 + P2 + one length byte, in hex digits.
	MinAPDUHexLength = 10
)

// EncodeHex returns the upper-case hexadecimal form used for pattern matching.
func EncodeHex(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// ParseCommandAPDU decodes a raw C-APDU in short or extended encoding.
// Class and Instruction are taken as-is: a reserved INS is not an error here,
// since an emulated card must still be able to answer it.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	ins := InsCode(raw[1])
	cmd := &CommandAPDU{
		Class:       DecodeClass(raw[0]),
		Instruction: Instruction{Raw: ins, IsBERTLV: raw[1]&0x01 != 0},
		P1:          raw[2],
		P2:          raw[3],
	}

	body := raw[4:]
	switch {
	case len(body) == 0:
		// Case 1
		return cmd, nil

	case len(body) == 1:
		// Case 2 Short
		cmd.Ne = shortLe(body[0])
		return cmd, nil

	case body[0] != 0x00:
		// Case 3/4 Short
		nc := int(body[0])
		switch len(body) {
		case 1 + nc:
		case 1 + nc + 1:
			cmd.Ne = shortLe(body[1+nc])
		default:
			return nil, fmt.Errorf("short Lc %d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = body[1 : 1+nc]
		return cmd, nil

	case len(body) == 3:
		// Case 2 Extended: 00 + Le (2 bytes)
		cmd.Ne = extendedLe(body[1], body[2])
		return cmd, nil

	default:
		// Case 3/4 Extended: 00 + Lc (2 bytes) + Data [+ Le (2 bytes)]
		if len(body) < 3 {
			return nil, fmt.Errorf("truncated extended Lc")
		}
		nc := int(body[1])<<8 | int(body[2])
		switch len(body) {
		case 3 + nc:
		case 3 + nc + 2:
			cmd.Ne = extendedLe(body[3+nc], body[4+nc])
		default:
			return nil, fmt.Errorf("extended Lc %d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = body[3 : 3+nc]
		return cmd, nil
	}
}

func shortLe(b byte) int {
	if b == 0x00 {
		return MaxShortLe
	}
	return int(b)
}

func extendedLe(hi, lo byte) int {
	ne := int(hi)<<8 | int(lo)
	if ne == 0 {
		return MaxExtendedLe
	}
	return ne
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// It automatically handles the selection between Short and Extended encoding
// based on the length of Data (Nc) and the expected response length (Ne).
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data length %d exceeds extended Lc", nc)
	}

	isExtended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !isExtended {
			buf.WriteByte(byte(nc))
		} else {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			// 0x00 represents 256
			buf.WriteByte(byte(ne))
		} else {
			// Case 2 Extended needs a leading 00 to distinguish Le from Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			// 0x0000 represents 65536
			buf.WriteByte(byte(ne >> 8))
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	sw, ok := ResponseStatus(raw)
	if !ok {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	return &ResponseAPDU{
		Data:   raw[:len(raw)-2],
		Status: sw,
	}, nil
}

// Bytes encodes the response as Data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
