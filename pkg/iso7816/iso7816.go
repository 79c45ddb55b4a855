/*
Package iso7816 implements the ISO/IEC 7816-4 vocabulary shared by the card emulator, the relay oracle and the terminal-side demo.

It provides Command and Response APDU structures, Status Word (SW) analysis, the Instruction (INS) dispatch keys and a terminal-side Client that drives any Transmitter.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Terminal sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

An emulated card sits on the other side of that exchange. It receives the raw command bytes, matches them through their upper-case hexadecimal form, and answers with a response whose last two bytes are a Status Word.

# Status Words

Every response ends with a 2-byte Status Word (SW). The emulator relies on:
  - 0x9000: Success (OK).
  - 0x6A82: File or application not found (SELECT miss).
  - 0x6A83: Record not found (READ RECORD / READ BINARY miss).
  - 0x6D00: Instruction not supported.
  - 0x6F00: Command aborted (malformed command, or no definition for it).

# Usage Example: Inspecting an inbound command

	raw := []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

	commandHex := iso7816.EncodeHex(raw)
	if len(commandHex) < iso7816.MinAPDUHexLength {
	    return iso7816.SW_COMMAND_ABORTED.Bytes()
	}

	ins, _ := iso7816.ParseInsCode(commandHex)
	fmt.Println(ins) // INS_SELECT

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err == nil {
	    fmt.Println(cmd) // INS: 0xA4 | Command: INS_SELECT | ...
	}
*/
package iso7816
