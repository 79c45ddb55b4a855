package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/cardemu/pkg/dispatch"
	"github.com/gregLibert/cardemu/pkg/history"
	"github.com/gregLibert/cardemu/pkg/relay"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardemu.toml")
	doc := `
mode = "relay"
table = " cards/visa.toml "
relay_host = "10.0.0.2"
relay_port = 4000
dial_timeout = "2s"
io_timeout = "0s"
log_level = "debug"
history_file = "/var/log/cardemu/history.log"
history_max_size_mb = 5
oracle_listen = ":4000"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Config{
		Mode:  dispatch.ModeNetworkRelay,
		Table: "cards/visa.toml",
		Relay: relay.Config{
			Host:        "10.0.0.2",
			Port:        4000,
			DialTimeout: 2 * time.Second,
			IOTimeout:   0,
		},
		LogLevel: "debug",
		History: history.Options{
			File:       "/var/log/cardemu/history.log",
			MaxSizeMB:  5,
			MaxBackups: 3,
			Annotate:   true,
		},
		OracleListen: ":4000",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	got, err := Parse("")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"Unknown mode", `mode = "bluetooth"`},
		{"Bad duration", `io_timeout = "soon"`},
		{"Port out of range", `relay_port = 70000`},
		{"Unknown key", `relay_hots = "x"`},
		{"Broken TOML", `mode = `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.doc); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
