package emv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/cardemu/pkg/tlv"
)

// ProcessingOptions is the answer to GET PROCESSING OPTIONS. Cards reply in
// format 1 (tag '80', AIP followed by AFL) or format 2 (template '77').
type ProcessingOptions struct {
	ApplicationInterchangeProfile []byte `tlv:"82"`
	ApplicationFileLocator        []byte `tlv:"94"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// AFLEntry names a range of records to read from one short file.
type AFLEntry struct {
	SFI                byte
	FirstRecord        byte
	LastRecord         byte
	OfflineAuthRecords byte
}

// ParseProcessingOptions decodes a GPO response body (status word removed).
func ParseProcessingOptions(data []byte) (*ProcessingOptions, error) {
	packets, err := decodeBody(data)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.EqualFold(packets[0].Tag, tagGPOFormat1):
		v := packets[0].Value
		if len(v) < 2 {
			return nil, fmt.Errorf("format 1 response too short: %d bytes", len(v))
		}
		return &ProcessingOptions{
			ApplicationInterchangeProfile: v[:2],
			ApplicationFileLocator:        v[2:],
		}, nil

	case strings.EqualFold(packets[0].Tag, tagGPOFormat2):
		po := &ProcessingOptions{}
		if err := tlv.UnmarshalFromPackets(packets[0].TLVs, po); err != nil {
			return nil, fmt.Errorf("failed to map processing options: %w", err)
		}
		return po, nil

	default:
		return nil, fmt.Errorf("unexpected response template %s", packets[0].Tag)
	}
}

// Locators splits the AFL into its four-byte entries.
func (p *ProcessingOptions) Locators() ([]AFLEntry, error) {
	afl := p.ApplicationFileLocator
	if len(afl)%4 != 0 {
		return nil, fmt.Errorf("AFL length %d is not a multiple of 4", len(afl))
	}

	entries := make([]AFLEntry, 0, len(afl)/4)
	for i := 0; i < len(afl); i += 4 {
		e := AFLEntry{
			SFI:                afl[i] >> 3,
			FirstRecord:        afl[i+1],
			LastRecord:         afl[i+2],
			OfflineAuthRecords: afl[i+3],
		}
		if e.SFI == 0 || e.FirstRecord == 0 || e.LastRecord < e.FirstRecord {
			return nil, fmt.Errorf("invalid AFL entry %X", afl[i:i+4])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (p *ProcessingOptions) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV PROCESSING OPTIONS ===")

	tlv.WriteStructFields(&sb, "GPO", p)

	if entries, err := p.Locators(); err == nil {
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n    - AFL: SFI %d records %d-%d (%d for offline auth)",
				e.SFI, e.FirstRecord, e.LastRecord, e.OfflineAuthRecords)
		}
	}

	return sb.String()
}
