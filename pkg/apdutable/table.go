// Package apdutable holds the ordered command->response definitions an emulated card answers from.
//
// A Table is two parallel sequences: patterns[i] (a full command in hex, or any
// command sharing the instruction code it should answer) and responses[i] (the
// response in hex). Order is significant: every query returns the first match.
// The table is filled once and is read-only afterwards, so concurrent lookups
// need no locking.
package apdutable

import (
	"encoding/hex"
	"strings"

	"github.com/gregLibert/cardemu/pkg/iso7816"
)

// Entry is one command/response definition as written by the user.
type Entry struct {
	Command  string `toml:"command" yaml:"command"`
	Response string `toml:"response" yaml:"response"`
}

// Table is an ordered, immutable command->response lookup.
type Table struct {
	patterns  []string
	responses []string
}

// New builds a table from definitions, keeping their order.
// Hex is normalized (upper case, no spaces) but not validated: a malformed
// entry surfaces later as a lookup miss rather than as a load error.
func New(entries []Entry) *Table {
	t := &Table{
		patterns:  make([]string, 0, len(entries)),
		responses: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		t.patterns = append(t.patterns, normalize(e.Command))
		t.responses = append(t.responses, normalize(e.Response))
	}
	return t
}

func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// Len returns the number of definitions.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.patterns)
}

// Entries returns a copy of the normalized definitions, in order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, t.Len())
	for i := range out {
		out[i] = Entry{Command: t.patterns[i], Response: t.responses[i]}
	}
	return out
}

// FindExact returns the response paired with the first pattern equal to the full command.
func (t *Table) FindExact(commandHex string) ([]byte, bool) {
	want := normalize(commandHex)
	for i := 0; i < t.Len(); i++ {
		if t.patterns[i] == want {
			return t.response(i)
		}
	}
	return nil, false
}

// FindByInstruction returns the response paired with the first pattern whose
// instruction code (third and fourth hex characters) equals code.
func (t *Table) FindByInstruction(code iso7816.InsCode) ([]byte, bool) {
	want := code.Hex()
	for i := 0; i < t.Len(); i++ {
		p := t.patterns[i]
		if len(p) >= 4 && p[2:4] == want {
			return t.response(i)
		}
	}
	return nil, false
}

// response decodes responses[i]. The first matching entry owns the answer:
// an undecodable response is a miss, the scan does not continue past it.
func (t *Table) response(i int) ([]byte, bool) {
	b, err := hex.DecodeString(t.responses[i])
	if err != nil {
		return nil, false
	}
	return b, true
}
