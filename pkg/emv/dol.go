package emv

import "fmt"

// DOLEntry is one tag/length pair of a Data Object List (PDOL, CDOL...).
// A DOL carries no values, so it cannot be decoded as BER-TLV.
type DOLEntry struct {
	Tag    []byte
	Length int
}

// ParseDOL splits a Data Object List into its entries.
func ParseDOL(dol []byte) ([]DOLEntry, error) {
	var entries []DOLEntry
	for i := 0; i < len(dol); {
		start := i
		// Multi-byte tags: low five bits all set, then continue while b8 is set.
		if dol[i]&0x1F == 0x1F {
			i++
			for i < len(dol) && dol[i]&0x80 != 0 {
				i++
			}
		}
		i++
		if i >= len(dol) {
			return nil, fmt.Errorf("DOL truncated after tag %X", dol[start:min(i, len(dol))])
		}
		entries = append(entries, DOLEntry{Tag: dol[start:i], Length: int(dol[i])})
		i++
	}
	return entries, nil
}

// DOLLength is the number of value bytes the terminal must supply for entries.
func DOLLength(entries []DOLEntry) int {
	n := 0
	for _, e := range entries {
		n += e.Length
	}
	return n
}
