// Package emv decodes the EMV payment templates exchanged during application
// selection and initiation (FCI, PSE directory records, GPO responses and
// application records) and renders them as readable reports.
package emv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/cardemu/pkg/tlv"
)

// Template tags wrapping a response body.
const (
	tagFCITemplate    = "6F"
	tagRecordTemplate = "70"
	tagGPOFormat1     = "80"
	tagGPOFormat2     = "77"
)

var errEmptyData = errors.New("empty data cannot be parsed")

// decodeBody decodes a response body that must not be empty.
func decodeBody(data []byte) ([]bertlv.TLV, error) {
	if len(data) == 0 {
		return nil, errEmptyData
	}
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("no TLV in response")
	}
	return packets, nil
}

// unwrap maps the content of the outer template tag onto target. When the
// wrapper is optional a body without it is mapped as is.
func unwrap(data []byte, tag string, optional bool, target any) error {
	packets, err := decodeBody(data)
	if err != nil {
		return err
	}

	switch {
	case strings.EqualFold(packets[0].Tag, tag):
		packets = packets[0].TLVs
	case !optional:
		return fmt.Errorf("missing mandatory template (tag %s), found %s", tag, packets[0].Tag)
	}

	if err := tlv.UnmarshalFromPackets(packets, target); err != nil {
		return fmt.Errorf("failed to map template %s: %w", tag, err)
	}
	return nil
}
