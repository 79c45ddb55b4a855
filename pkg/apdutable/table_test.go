package apdutable

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

func TestFindExact(t *testing.T) {
	table := New([]Entry{
		{Command: "00A4040007A0000002471001", Response: "9000"},
		{Command: "00A4040007A0000002471001", Response: "6A82"},
		{Command: "00a4 0400 07a0 0000 0247 1002", Response: "01029000"},
	})

	tests := []struct {
		name    string
		command string
		want    string
		wantOK  bool
	}{
		{"First of duplicates wins", "00A4040007A0000002471001", "9000", true},
		{"Normalized pattern", "00A4040007A0000002471002", "01029000", true},
		{"Lower case command", "00a4040007a0000002471002", "01029000", true},
		{"Single digit differs", "00A4040007A0000002471099", "", false},
		{"Prefix is not exact", "00A4040007A00000024710", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.FindExact(tt.command)
			if ok != tt.wantOK {
				t.Fatalf("FindExact(%q) ok = %v, want %v", tt.command, ok, tt.wantOK)
			}
			if ok && iso7816.EncodeHex(got) != tt.want {
				t.Errorf("FindExact(%q) = %X, want %s", tt.command, got, tt.want)
			}
		})
	}
}

func TestFindByInstruction(t *testing.T) {
	table := New([]Entry{
		{Command: "00A4040007A0000002471001", Response: "9000"},
		{Command: "00B00000FF", Response: "AABB9000"},
		{Command: "00B0000010", Response: "CCDD9000"},
		{Command: "B", Response: "DEAD"},
	})

	got, ok := table.FindByInstruction(iso7816.INS_READ_BINARY)
	if !ok || iso7816.EncodeHex(got) != "AABB9000" {
		t.Errorf("FindByInstruction(B0) = %X, %v; want AABB9000 from the first B0 entry", got, ok)
	}

	if _, ok := table.FindByInstruction(iso7816.INS_GET_DATA); ok {
		t.Error("FindByInstruction(CA) should miss")
	}
}

func TestMalformedResponseIsAMiss(t *testing.T) {
	table := New([]Entry{
		{Command: "00CA9F3600", Response: "ZZ"},
		{Command: "00CA9F1700", Response: "9F1701039000"},
	})

	if _, ok := table.FindByInstruction(iso7816.INS_GET_DATA); ok {
		t.Error("First CA entry has a malformed response and should surface as a miss")
	}

	got, ok := table.FindExact("00CA9F1700")
	if !ok || iso7816.EncodeHex(got) != "9F1701039000" {
		t.Errorf("FindExact() = %X, %v", got, ok)
	}
}

func TestNilAndEmptyTable(t *testing.T) {
	var nilTable *Table
	if nilTable.Len() != 0 {
		t.Error("nil table should be empty")
	}
	if _, ok := nilTable.FindExact("00A4040000"); ok {
		t.Error("nil table should never match")
	}

	empty := New(nil)
	if _, ok := empty.FindByInstruction(iso7816.INS_SELECT); ok {
		t.Error("empty table should never match")
	}
}

func TestEntries_PreservesOrder(t *testing.T) {
	in := []Entry{
		{Command: "00b0000000", Response: "9000"},
		{Command: "00A4040000", Response: "6a82"},
	}
	want := []Entry{
		{Command: "00B0000000", Response: "9000"},
		{Command: "00A4040000", Response: "6A82"},
	}

	if diff := cmp.Diff(want, New(in).Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "card.toml")
	tomlDoc := `
[[entry]]
command = "00A4040007A0000002471001"
response = "9000"

[[entry]]
command = "00B00000FF"
response = "AABB9000"
`
	yamlPath := filepath.Join(dir, "card.yaml")
	yamlDoc := `
entry:
  - command: "00A4040007A0000002471001"
    response: "9000"
  - command: "00B00000FF"
    response: "AABB9000"
`
	if err := os.WriteFile(tomlPath, []byte(tomlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		{Command: "00A4040007A0000002471001", Response: "9000"},
		{Command: "00B00000FF", Response: "AABB9000"},
	}

	for _, path := range []string{tomlPath, yamlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			table, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if diff := cmp.Diff(want, table.Entries()); diff != "" {
				t.Errorf("Entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "card.json")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("Broken TOML", func(t *testing.T) {
		if _, err := ParseTOML([]byte("[[entry]\ncommand =")); err == nil {
			t.Error("Expected TOML parse error")
		}
	})
}
