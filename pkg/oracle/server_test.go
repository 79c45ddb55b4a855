package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardemu/pkg/apdutable"
	"github.com/gregLibert/cardemu/pkg/iso7816"
	"github.com/gregLibert/cardemu/pkg/relay"
	"github.com/gregLibert/cardemu/pkg/resolver"
)

func startServer(t *testing.T, r Responder) (*relay.Client, context.CancelFunc, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{Responder: r, Log: zerolog.Nop()}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	host, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(p)
	client := relay.NewClient(relay.Config{Host: host, Port: port, IOTimeout: time.Second}, zerolog.Nop())
	if !client.Connect(context.Background()) {
		cancel()
		t.Fatal("Connect failed")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, cancel, errc
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServer_TableResponder(t *testing.T) {
	table := apdutable.New([]apdutable.Entry{
		{Command: "00A4040007A0000002471001", Response: "9000"},
		{Command: "00B00000FF", Response: "AABB9000"},
	})
	client, cancel, errc := startServer(t, TableResponder{Resolver: resolver.New(table)})

	tests := []struct {
		command string
		want    string
	}{
		{"00A4040007A0000002471001", "9000"},
		{"00A4040007A0000002471099", "6A82"},
		{"00B0000004", "AABB9000"},
		{"00A404", "6F00"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			resp, ok := client.Exchange(mustHex(t, tt.command))
			if !ok {
				t.Fatal("Exchange failed")
			}
			if iso7816.EncodeHex(resp) != tt.want {
				t.Errorf("response = %X, want %s", resp, tt.want)
			}
		})
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestServer_ResponderFailures(t *testing.T) {
	client, cancel, _ := startServer(t, ResponderFunc(func(cmd []byte) ([]byte, error) {
		switch cmd[1] {
		case 0xB0:
			return make([]byte, 300), nil
		case 0xCA:
			return nil, errors.New("card removed")
		default:
			return []byte{0x90, 0x00}, nil
		}
	}))
	defer cancel()

	if resp, ok := client.Exchange(mustHex(t, "00CA9F3600")); !ok || iso7816.EncodeHex(resp) != "6F00" {
		t.Errorf("responder error = %X, %v; want 6F00", resp, ok)
	}
	if resp, ok := client.Exchange(mustHex(t, "00B0000000")); !ok || iso7816.EncodeHex(resp) != "6700" {
		t.Errorf("oversized response = %X, %v; want 6700", resp, ok)
	}
	if resp, ok := client.Exchange(mustHex(t, "00A4040000")); !ok || iso7816.EncodeHex(resp) != "9000" {
		t.Errorf("connection should survive failures, got %X, %v", resp, ok)
	}
}

// scriptedCard answers 61XX first, forcing a GET RESPONSE round trip.
type scriptedCard struct{}

func (scriptedCard) Transmit(cmd []byte) ([]byte, error) {
	switch iso7816.EncodeHex(cmd) {
	case "00A4040007A0000000041010":
		return []byte{0x61, 0x02}, nil
	case "00C0000002":
		return []byte{0x6F, 0x00, 0x90, 0x00}, nil
	default:
		return []byte{0x6D, 0x00}, nil
	}
}

func TestServer_CardResponder(t *testing.T) {
	client, cancel, _ := startServer(t, NewCardResponder(scriptedCard{}))
	defer cancel()

	resp, ok := client.Exchange(mustHex(t, "00A4040007A0000000041010"))
	if !ok || iso7816.EncodeHex(resp) != "6F009000" {
		t.Errorf("response = %X, %v; want 6F009000", resp, ok)
	}
}
