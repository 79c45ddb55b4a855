// Package hce is the host-side card emulation service: it accepts raw command
// APDUs from a card-emulation host, answers malformed frames immediately and
// resolves everything else on a single background worker.
package hce

import (
	"errors"
	"fmt"

	"github.com/gregLibert/cardemu/pkg/iso7816"
)

var (
	ErrNoCommand        = errors.New("no command APDU")
	ErrMalformedCommand = errors.New("malformed command APDU")
)

// Validate checks the framing of a raw command. It accepts any buffer whose
// hex form is at least iso7816.MinAPDUHexLength digits (five bytes). A byte
// buffer always has an even hex length; header and body consistency are left
// to the resolver.
func Validate(cmd []byte) error {
	if cmd == nil {
		return ErrNoCommand
	}
	if 2*len(cmd) < iso7816.MinAPDUHexLength {
		return fmt.Errorf("%w: %d bytes", ErrMalformedCommand, len(cmd))
	}
	return nil
}

// ValidateHex applies the same framing rules to a command written in hex,
// where an odd number of digits is also malformed.
func ValidateHex(commandHex string) error {
	if n := len(commandHex); n < iso7816.MinAPDUHexLength || n%2 != 0 {
		return fmt.Errorf("%w: %d hex digits", ErrMalformedCommand, n)
	}
	return nil
}

// abortLabel names the reason a command was answered with SW_COMMAND_ABORTED.
func abortLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoCommand):
		return "Command aborted: " + ErrNoCommand.Error()
	case errors.Is(err, ErrMalformedCommand):
		return "Command aborted: " + ErrMalformedCommand.Error()
	default:
		return "Command aborted: " + err.Error()
	}
}
