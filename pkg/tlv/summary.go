package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Summarize renders raw BER-TLV data as an indented tag tree, one tag per line.
// Constructed tags print their tag only; primitive tags print their value in hex.
// Data that is not valid BER-TLV returns an error.
func Summarize(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty data cannot be summarized")
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return "", fmt.Errorf("bertlv decode failed: %w", err)
	}

	var lines []string
	walk(&lines, packets, 0)
	return strings.Join(lines, "\n"), nil
}

func walk(lines *[]string, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		tag := strings.ToUpper(p.Tag)
		if len(p.TLVs) > 0 {
			*lines = append(*lines, indent+tag)
			walk(lines, p.TLVs, depth+1)
			continue
		}
		*lines = append(*lines, fmt.Sprintf("%s%s: %X", indent, tag, p.Value))
	}
}
