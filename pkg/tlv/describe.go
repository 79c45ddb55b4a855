package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Value formats selected with the `fmt` struct tag. Every format prints the raw
// hex first and its reading in parentheses.
var formatters = map[string]func([]byte) (string, bool){
	"ascii": func(b []byte) (string, bool) { return fmt.Sprintf("%q", MakeSafeASCII(b)), true },
	"int":   func(b []byte) (string, bool) { return fmt.Sprintf("Dec: %d", bigEndian(b)), true },
	"bcd":   func(b []byte) (string, bool) { return BCD(b) },
	"date":  formatDate,
}

// WriteStructFields writes one line per populated []byte field of s, followed by
// its unknown tags, as "    - <prefix>.<Field> (<tag>): <value>".
// Lines are joined with newlines without a trailing one; when sb already holds
// text the block is separated from it by a newline.
func WriteStructFields(sb *strings.Builder, prefix string, s any) {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	typ := val.Type()

	var lines []string
	for i := 0; i < val.NumField(); i++ {
		field, fieldType := val.Field(i), typ.Field(i)

		switch {
		case field.Type() == tlvSlice:
			lines = append(lines, formatUnknownField(prefix, field)...)
		case isByteSlice(field) && field.Len() > 0:
			lines = append(lines, formatByteSliceField(prefix, field.Bytes(), fieldType))
		}
	}

	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

func formatByteSliceField(prefix string, data []byte, fieldType reflect.StructField) string {
	name := fieldType.Name
	if tag, _, _ := strings.Cut(fieldType.Tag.Get("tlv"), ","); tag != "" {
		name = fmt.Sprintf("%s (%s)", name, tag)
	}
	return fmt.Sprintf("    - %s.%s: %s", prefix, name, FormatValue(data, fieldType.Tag.Get("fmt")))
}

func formatUnknownField(prefix string, field reflect.Value) []string {
	var lines []string
	for _, t := range field.Interface().([]bertlv.TLV) {
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, strings.ToUpper(t.Tag), Upper(rawValue(t))))
	}
	return lines
}

// FormatValue renders data as hex followed by its reading in the named format.
// Unknown formats, and values the format cannot read, print as bare hex.
func FormatValue(data []byte, format string) string {
	if f, ok := formatters[format]; ok {
		if reading, ok := f(data); ok {
			return fmt.Sprintf("%s (%s)", Upper(data), reading)
		}
	}
	return Upper(data)
}

// BCD reads packed decimal digits, dropping the 'F' padding nibbles EMV uses
// for odd-length numbers (PAN, country codes). It reports false on any other
// non-decimal nibble.
func BCD(data []byte) (string, bool) {
	var sb strings.Builder
	for _, b := range data {
		for _, nibble := range [2]byte{b >> 4, b & 0x0F} {
			switch {
			case nibble <= 9:
				sb.WriteByte('0' + nibble)
			case nibble == 0x0F:
			default:
				return "", false
			}
		}
	}
	return sb.String(), true
}

// formatDate reads an EMV YYMMDD date (n 6).
func formatDate(data []byte) (string, bool) {
	digits, ok := BCD(data)
	if !ok || len(digits) != 6 {
		return "", false
	}
	return fmt.Sprintf("20%s-%s-%s", digits[0:2], digits[2:4], digits[4:6]), true
}

func bigEndian(data []byte) uint64 {
	var n uint64
	for _, b := range data {
		n = n<<8 | uint64(b)
	}
	return n
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
