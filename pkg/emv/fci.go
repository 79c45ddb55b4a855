package emv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/cardemu/pkg/tlv"
)

// FILE CONTROL INFORMATION (FCI):
// The answer to SELECT. For the PSE it names the directory SFI ('88'); for an
// application it carries the label, priority and the PDOL the terminal must
// fill before GET PROCESSING OPTIONS.

// FCI represents the EMV-specific File Control Information returned in response to a SELECT command.
type FCI struct {
	DFName              []byte                 `tlv:"84" fmt:"ascii"`
	ProprietaryTemplate FCIProprietaryTemplate `tlv:"A5"`
}

// FCIProprietaryTemplate contains the issuer-specific data found in tag 'A5'.
type FCIProprietaryTemplate struct {
	ApplicationLabel []byte `tlv:"50" fmt:"ascii"`

	// Optional EMV fields
	ApplicationPriorityIndicator []byte `tlv:"87" fmt:"int"`
	SFI                          []byte `tlv:"88"`
	PDOL                         []byte `tlv:"9F38"`
	LanguagePreference           []byte `tlv:"5F2D" fmt:"ascii"`
	IssuerCodeTableIndex         []byte `tlv:"9F11" fmt:"int"`
	ApplicationPreferredName     []byte `tlv:"9F12" fmt:"ascii"`

	IssuerDiscretionaryData *FCIIssuerDiscretionaryData `tlv:"BF0C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FCIIssuerDiscretionaryData represents the discretionary data (Tag 'BF0C') which often contains specific bank or country information.
type FCIIssuerDiscretionaryData struct {
	LogEntry                           []byte `tlv:"9F4D"`
	IssuerIdentificationNumberExtended []byte `tlv:"9F0C"`
	IssuerCountryCodeAlpha3            []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2            []byte `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                 []byte `tlv:"5F54" fmt:"ascii"`
	IBAN                               []byte `tlv:"5F53" fmt:"ascii"`
	IssuerURL                          []byte `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber         []byte `tlv:"42"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseFCI interprets raw byte data as an EMV FCI structure. The '6F' wrapper
// is optional: some emulated tables answer with its content only.
func ParseFCI(data []byte) (*FCI, error) {
	fci := &FCI{}
	if err := unwrap(data, tagFCITemplate, true, fci); err != nil {
		return nil, err
	}
	return fci, nil
}

// DirectorySFI returns the short file identifier of the directory elementary
// file announced by a PSE FCI (tag '88').
func (f *FCI) DirectorySFI() (byte, bool) {
	sfi := f.ProprietaryTemplate.SFI
	if len(sfi) != 1 || sfi[0] == 0 || sfi[0] > 30 {
		return 0, false
	}
	return sfi[0], true
}

// ProcessingDOL decodes the PDOL (tag '9F38'). An application without a PDOL
// yields no entries and GET PROCESSING OPTIONS is sent with empty data.
func (f *FCI) ProcessingDOL() ([]DOLEntry, error) {
	return ParseDOL(f.ProprietaryTemplate.PDOL)
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)
	tlv.WriteStructFields(&sb, "Proprietary", f.ProprietaryTemplate)
	tlv.WriteStructFields(&sb, "Discretionary", f.ProprietaryTemplate.IssuerDiscretionaryData)

	if pdol, err := f.ProcessingDOL(); err == nil {
		for _, e := range pdol {
			fmt.Fprintf(&sb, "\n    - PDOL: tag %X, %d bytes", e.Tag, e.Length)
		}
	}

	return sb.String()
}
