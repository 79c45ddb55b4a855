package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex decodes hex literals such as "6F 1A" or "84 07 A0000000041010" into
// bytes. Fragments are concatenated and all whitespace is ignored, so a
// template can be written one tag per argument or one tag per line.
// It panics on malformed input: it is meant for literals, not for wire data.
func Hex(parts ...string) []byte {
	clean := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid hex literal %q: %v", clean, err))
	}
	return data
}

// Upper encodes data as upper-case hex, the notation of APDU logs and tables.
func Upper(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
