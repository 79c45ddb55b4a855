package emv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/cardemu/pkg/tlv"
)

func TestParseDOL(t *testing.T) {
	tests := []struct {
		name    string
		dol     []byte
		want    []DOLEntry
		wantLen int
		wantErr bool
	}{
		{
			name:    "Terminal country code",
			dol:     tlv.Hex("9F1A02"),
			want:    []DOLEntry{{Tag: tlv.Hex("9F1A"), Length: 2}},
			wantLen: 2,
		},
		{
			name: "Mixed tag sizes",
			dol:  tlv.Hex("9F6604 9F0206 5F2A02 9A03 9C01"),
			want: []DOLEntry{
				{Tag: tlv.Hex("9F66"), Length: 4},
				{Tag: tlv.Hex("9F02"), Length: 6},
				{Tag: tlv.Hex("5F2A"), Length: 2},
				{Tag: tlv.Hex("9A"), Length: 3},
				{Tag: tlv.Hex("9C"), Length: 1},
			},
			wantLen: 16,
		},
		{
			name:    "Empty",
			dol:     nil,
			want:    nil,
			wantLen: 0,
		},
		{
			name:    "Missing length",
			dol:     tlv.Hex("9F1A029F66"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDOL(tt.dol)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDOL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Entries mismatch (-want +got):\n%s", diff)
			}
			if n := DOLLength(got); n != tt.wantLen {
				t.Errorf("DOLLength() = %d, want %d", n, tt.wantLen)
			}
		})
	}
}
