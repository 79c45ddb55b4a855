package emv

import (
	"fmt"
	"slices"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/cardemu/pkg/tlv"
)

// DirectoryDiscretionaryTemplate (Tag '73') carries issuer data attached to a directory entry.
type DirectoryDiscretionaryTemplate struct {
	ApplicationSelectionRegisteredProprietaryData []byte `tlv:"9F0A"`
	IssuerCountryCodeAlpha3                       []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2                       []byte `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                            []byte `tlv:"5F54" fmt:"ascii"`
	IBAN                                          []byte `tlv:"5F53" fmt:"ascii"`
	IssuerURL                                     []byte `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber                    []byte `tlv:"42"`
	IssuerIdentificationNumberExtended            []byte `tlv:"9F0C"`
	LogEntry                                      []byte `tlv:"9F4D"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ApplicationTemplate (Tag '61') represents an entry in the Payment System Directory.
// It contains the necessary information to select a specific application.
type ApplicationTemplate struct {
	AID                          []byte                         `tlv:"4F"`             // Mandatory
	ApplicationLabel             []byte                         `tlv:"50" fmt:"ascii"` // Mandatory
	ApplicationPriorityIndicator []byte                         `tlv:"87" fmt:"int"`
	DirectoryDiscretionaryData   DirectoryDiscretionaryTemplate `tlv:"73"`
	ApplicationPreferredName     []byte                         `tlv:"9F12" fmt:"ascii"`
	DDFName                      []byte                         `tlv:"9D" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// DirectoryRecord represents the content of a record read from the PSE SFI.
// It is wrapped in a Record Template (Tag '70').
type DirectoryRecord struct {
	// A record can technically contain multiple application templates
	Applications []ApplicationTemplate `tlv:"61"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseDirectoryRecord interprets raw bytes from a READ RECORD command as EMV
// directory data. The record must be wrapped in a Record Template (tag '70').
func ParseDirectoryRecord(data []byte) (*DirectoryRecord, error) {
	record := &DirectoryRecord{}
	if err := unwrap(data, tagRecordTemplate, false, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Priority returns the selection priority from tag '87' (1 is highest) and
// false when the issuer assigned none.
func (a ApplicationTemplate) Priority() (int, bool) {
	if len(a.ApplicationPriorityIndicator) == 0 {
		return 0, false
	}
	p := int(a.ApplicationPriorityIndicator[0] & 0x0F)
	return p, p != 0
}

// Candidates returns the selectable applications of the record (those with an
// AID), highest priority first. Applications without a priority keep their
// record order after the prioritized ones.
func (r *DirectoryRecord) Candidates() []ApplicationTemplate {
	var apps []ApplicationTemplate
	for _, app := range r.Applications {
		if len(app.AID) > 0 {
			apps = append(apps, app)
		}
	}

	slices.SortStableFunc(apps, func(a, b ApplicationTemplate) int {
		pa, okA := a.Priority()
		pb, okB := b.Priority()
		switch {
		case okA && okB:
			return pa - pb
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return apps
}

// Describe generates a report for all applications found in the record.
func (r *DirectoryRecord) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV DIRECTORY RECORD ===")

	tlv.WriteStructFields(&sb, "Record", r)

	for i, app := range r.Applications {
		prefix := fmt.Sprintf("App[%d]", i+1)
		tlv.WriteStructFields(&sb, prefix, app)
		tlv.WriteStructFields(&sb, prefix+".Discretionary", app.DirectoryDiscretionaryData)
	}

	return sb.String()
}
