package emv

import (
	"github.com/gregLibert/cardemu/pkg/iso7816"
	"github.com/gregLibert/cardemu/pkg/tlv"
)

// Annotate decodes the body of a successful response into a readable report,
// choosing the template from the command's instruction. It reports false when
// the exchange failed, carried no data or could not be decoded.
func Annotate(command, response []byte) (string, bool) {
	if len(command) < 2 {
		return "", false
	}
	sw, ok := iso7816.ResponseStatus(response)
	if !ok || !sw.IsSuccess() || len(response) == 2 {
		return "", false
	}
	body := response[:len(response)-2]

	switch iso7816.InsCode(command[1]) {
	case iso7816.INS_SELECT:
		if fci, err := ParseFCI(body); err == nil {
			return fci.Describe(), true
		}
	case iso7816.INS_READ_RECORD:
		if dir, err := ParseDirectoryRecord(body); err == nil && len(dir.Applications) > 0 {
			return dir.Describe(), true
		}
		if rec, err := ParseApplicationRecord(body); err == nil {
			return rec.Describe(), true
		}
	case iso7816.INS_GET_PROCESSING_OPTIONS:
		if po, err := ParseProcessingOptions(body); err == nil {
			return po.Describe(), true
		}
	}

	// Anything else that happens to be BER-TLV still gets a tag tree.
	summary, err := tlv.Summarize(body)
	if err != nil {
		return "", false
	}
	return summary, true
}
