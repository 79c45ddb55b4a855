package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestRecorder_Transcript(t *testing.T) {
	r := NewRecorder(Options{}, zerolog.Nop())

	r.RecordEvent("Communication started")
	r.RecordExchange([]byte{0x00, 0xA4, 0x04, 0x00, 0x00}, []byte{0x90, 0x00}, "SELECT")
	r.RecordExchange(nil, []byte{0x6F, 0x00}, "Command aborted: no command APDU")
	r.RecordExchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x00}, nil, "Network relay")
	r.RecordEvent("Communication ended")

	want := []string{
		"Communication started",
		"APDU-C: 00A4040000",
		"APDU-R: 9000",
		"",
		"APDU-C: (no command)",
		"APDU-R: 6F00",
		"",
		"APDU-C: 00B0000000",
		"APDU-R: (no response)",
		"",
		"Communication ended",
	}
	if diff := cmp.Diff(want, r.Lines()); diff != "" {
		t.Errorf("Transcript mismatch (-want +got):\n%s", diff)
	}
	if r.Transcript() != strings.Join(want, "\n") {
		t.Error("Transcript() should join Lines() with newlines")
	}

	r.Reset()
	if len(r.Lines()) != 0 {
		t.Error("Reset should clear the transcript")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close without a file sink: %v", err)
	}
}

func TestRecorder_Annotate(t *testing.T) {
	r := NewRecorder(Options{Annotate: true}, zerolog.Nop())

	r.RecordExchange(
		[]byte{0x00, 0xCA, 0x9F, 0x36, 0x00},
		[]byte{0x9F, 0x36, 0x02, 0x00, 0x01, 0x90, 0x00},
		"GET DATA",
	)

	want := []string{
		"APDU-C: 00CA9F3600",
		"APDU-R: 9F360200019000",
		"9F36: 0001",
		"",
	}
	if diff := cmp.Diff(want, r.Lines()); diff != "" {
		t.Errorf("Annotated transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	r := NewRecorder(Options{File: path, MaxSizeMB: 1, MaxBackups: 1}, zerolog.Nop())

	r.RecordEvent("Communication started")
	r.RecordExchange([]byte{0x00, 0xA4, 0x04, 0x00, 0x00}, []byte{0x6A, 0x82}, "SELECT")
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("history file missing: %v", err)
	}
	defer f.Close()

	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["kind"] != "event" || records[0]["message"] != "Communication started" {
		t.Errorf("event record = %v", records[0])
	}
	if records[1]["command"] != "00A4040000" || records[1]["response"] != "6A82" || records[1]["label"] != "SELECT" {
		t.Errorf("exchange record = %v", records[1])
	}

	// Writes after Close are dropped rather than reopening the file.
	r.RecordEvent("late")
}
