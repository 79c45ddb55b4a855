package iso7816

import (
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client is the terminal side of an exchange. It drives any Transmitter:
// a PC/SC card, the emulator's loopback, or a relay connection.
// It implements the ISO 7816-3 transport behaviours usually exposed to the
// application layer in T=0:
//
// 1. "61 XX" (Response Available):
//    The client sends GET RESPONSE with Le = XX.
//
// 2. "6C XX" (Wrong Length):
//    The client re-sends the original command with Le = XX.
//
// Send() returns a Trace of every atomic transaction performed.

// Transmitter abstracts the physical or emulated card connection.
// *scard.Card satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter

	// MaxSteps bounds the 61XX/6CXX chain. Zero means 8.
	MaxSteps int
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	maxSteps := c.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}
	return c.send(cmd, maxSteps)
}

func (c *Client) send(cmd *CommandAPDU, budget int) (Trace, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	trace := Trace{{Command: cmd, Response: resp}}

	budget--
	if budget <= 0 {
		return trace, nil
	}

	var next *CommandAPDU
	switch resp.Status.SW1() {
	case 0x61:
		// GET RESPONSE must use the same logical channel as the original command.
		respCls := cmd.Class
		respCls.IsChained = false
		next = NewCommandAPDU(respCls, mustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, shortLe(resp.Status.SW2()))
	case 0x6C:
		retry := *cmd
		retry.Ne = shortLe(resp.Status.SW2())
		next = &retry
	default:
		return trace, nil
	}

	subTrace, err := c.send(next, budget)
	if err != nil {
		return trace, err
	}
	return append(trace, subTrace...), nil
}

// Exchange relays one raw command and returns the final raw response.
// Commands that parse as well-formed APDUs go through Send, so the caller sees
// the data fetched by GET RESPONSE instead of a bare 61XX. Anything else is
// transmitted untouched.
func (c *Client) Exchange(raw []byte) ([]byte, error) {
	cmd, err := ParseCommandAPDU(raw)
	if err != nil {
		return c.Card.Transmit(raw)
	}

	if encoded, err := cmd.Bytes(); err != nil || EncodeHex(encoded) != EncodeHex(raw) {
		// Non-canonical encoding: do not rewrite the terminal's bytes.
		return c.Card.Transmit(raw)
	}

	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Last().Response.Bytes(), nil
}
