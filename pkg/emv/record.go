package emv

import (
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/cardemu/pkg/tlv"
)

// ApplicationRecord is a record of an application elementary file, read at the
// locations the AFL lists. It holds the card data used for the rest of the
// transaction: PAN, expiry, CVM list and the DOLs of GENERATE AC.
type ApplicationRecord struct {
	Track2EquivalentData     []byte `tlv:"57"`
	PAN                      []byte `tlv:"5A" fmt:"bcd"`
	CardholderName           []byte `tlv:"5F20" fmt:"ascii"`
	ExpirationDate           []byte `tlv:"5F24" fmt:"date"`
	EffectiveDate            []byte `tlv:"5F25" fmt:"date"`
	IssuerCountryCode        []byte `tlv:"5F28" fmt:"bcd"`
	PANSequenceNumber        []byte `tlv:"5F34" fmt:"int"`
	CDOL1                    []byte `tlv:"8C"`
	CDOL2                    []byte `tlv:"8D"`
	CVMList                  []byte `tlv:"8E"`
	CAPublicKeyIndex         []byte `tlv:"8F" fmt:"int"`
	ApplicationUsageControl  []byte `tlv:"9F07"`
	ApplicationVersionNumber []byte `tlv:"9F08"`
	StaticDataTagList        []byte `tlv:"9F4A"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseApplicationRecord decodes a READ RECORD body wrapped in tag '70'.
func ParseApplicationRecord(data []byte) (*ApplicationRecord, error) {
	rec := &ApplicationRecord{}
	if err := unwrap(data, tagRecordTemplate, false, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *ApplicationRecord) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV APPLICATION RECORD ===")
	tlv.WriteStructFields(&sb, "Record", r)
	return sb.String()
}
