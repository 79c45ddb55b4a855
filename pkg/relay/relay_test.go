package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestWriteFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{"Empty payload", nil, []byte{0x00}},
		{"Select", []byte{0x00, 0xA4, 0x04, 0x00}, []byte{0x04, 0x00, 0xA4, 0x04, 0x00}},
		{"Maximum payload", bytes.Repeat([]byte{0xAA}, 255), append([]byte{0xFF}, bytes.Repeat([]byte{0xAA}, 255)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, buf.Bytes()); diff != "" {
				t.Errorf("Frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 256))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("WriteFrame() error = %v, want ErrPayloadTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Nothing should be written, got %d bytes", buf.Len())
	}
}

// oneByteReader forces io.ReadFull to loop over partial reads.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestReadFrame(t *testing.T) {
	t.Run("Partial reads are assembled", func(t *testing.T) {
		got, err := ReadFrame(oneByteReader{bytes.NewReader([]byte{0x04, 0xAA, 0xBB, 0x90, 0x00})})
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if diff := cmp.Diff([]byte{0xAA, 0xBB, 0x90, 0x00}, got); diff != "" {
			t.Errorf("Payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty frame", func(t *testing.T) {
		got, err := ReadFrame(bytes.NewReader([]byte{0x00}))
		if err != nil || len(got) != 0 {
			t.Errorf("ReadFrame() = %X, %v", got, err)
		}
	})

	t.Run("Closed before length byte", func(t *testing.T) {
		if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
			t.Errorf("ReadFrame() error = %v, want io.EOF", err)
		}
	})

	t.Run("Stream ends inside payload", func(t *testing.T) {
		if _, err := ReadFrame(bytes.NewReader([]byte{0x04, 0xAA})); !errors.Is(err, ErrShortFrame) {
			t.Errorf("ReadFrame() error = %v, want ErrShortFrame", err)
		}
	})
}

// echoOracle accepts one connection and answers every frame with handler(frame).
func echoOracle(t *testing.T, handler func([]byte) []byte) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					req, err := ReadFrame(conn)
					if err != nil {
						return
					}
					resp := handler(req)
					if resp == nil {
						return
					}
					if err := WriteFrame(conn, resp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ = strconv.Atoi(p)
	return h, port
}

func newTestClient(host string, port int, ioTimeout time.Duration) *Client {
	return NewClient(Config{Host: host, Port: port, DialTimeout: time.Second, IOTimeout: ioTimeout}, zerolog.Nop())
}

func TestClient_NotEstablished(t *testing.T) {
	c := newTestClient("127.0.0.1", 1, time.Second)

	if c.Established() {
		t.Fatal("New client should not be established")
	}
	if c.SendCommand([]byte{0x00, 0xA4}) {
		t.Error("SendCommand should fail when not established")
	}
	if _, ok := c.WaitForResponse(); ok {
		t.Error("WaitForResponse should fail when not established")
	}
	if !c.Disconnect() {
		t.Error("Disconnect on a closed client should report disconnected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on a closed client: %v", err)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(p)
	_ = ln.Close()

	c := newTestClient("127.0.0.1", port, time.Second)
	if c.Connect(context.Background()) {
		t.Fatal("Connect to a closed port should fail")
	}
	if c.Established() {
		t.Error("Client should stay disconnected")
	}
}

func TestClient_Exchange(t *testing.T) {
	host, port := echoOracle(t, func(req []byte) []byte {
		return append(append([]byte{}, req[1:]...), 0x90, 0x00)
	})

	c := newTestClient(host, port, time.Second)
	defer c.Close()

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}
	if !c.Connect(context.Background()) {
		t.Error("Second Connect should be a no-op returning true")
	}

	got, ok := c.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x02})
	if !ok {
		t.Fatal("Exchange failed")
	}
	if diff := cmp.Diff([]byte{0xB0, 0x00, 0x00, 0x02, 0x90, 0x00}, got); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}

	// Split send and wait follow the same alternation.
	if !c.SendCommand([]byte{0x00, 0xCA}) {
		t.Fatal("SendCommand failed")
	}
	got, ok = c.WaitForResponse()
	if !ok || !bytes.Equal(got, []byte{0xCA, 0x90, 0x00}) {
		t.Errorf("WaitForResponse() = %X, %v", got, ok)
	}

	if !c.Disconnect() || c.Established() {
		t.Error("Disconnect should clear the established flag")
	}
	if !c.Connect(context.Background()) {
		t.Error("Client should reconnect after Disconnect")
	}
}

func TestClient_SendTooLarge(t *testing.T) {
	host, port := echoOracle(t, func(req []byte) []byte { return []byte{0x90, 0x00} })

	c := newTestClient(host, port, time.Second)
	defer c.Close()
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	if _, ok := c.Exchange(make([]byte, 256)); ok {
		t.Error("Exchange of an oversized payload should fail")
	}
	// The connection is untouched and still usable.
	if _, ok := c.Exchange([]byte{0x00, 0xA4, 0x04, 0x00, 0x00}); !ok {
		t.Error("Exchange after a refused payload should succeed")
	}
}

func TestClient_PeerClosesMidFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = ReadFrame(conn)
		_, _ = conn.Write([]byte{0x04, 0x90})
		_ = conn.Close()
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(p)
	c := newTestClient(h, port, time.Second)
	defer c.Close()

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}
	if resp, ok := c.Exchange([]byte{0x00, 0xA4, 0x04, 0x00, 0x00}); ok {
		t.Errorf("Exchange() = %X, want failure on a truncated frame", resp)
	}
	if c.Established() {
		t.Error("A truncated frame should drop the connection")
	}
}

func TestClient_ReadDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-done
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(p)
	c := newTestClient(h, port, 50*time.Millisecond)
	defer c.Close()

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}
	start := time.Now()
	if _, ok := c.Exchange([]byte{0x00, 0xA4, 0x04, 0x00, 0x00}); ok {
		t.Fatal("Exchange with a silent oracle should fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Exchange took %v, deadline not applied", elapsed)
	}
}

func TestClient_LateResponseIsNeverPairedWithNextCommand(t *testing.T) {
	var calls atomic.Int32
	host, port := echoOracle(t, func(req []byte) []byte {
		if calls.Add(1) == 1 {
			time.Sleep(150 * time.Millisecond)
			return []byte{0x11, 0x90, 0x00}
		}
		return []byte{0x22, 0x90, 0x00}
	})

	c := newTestClient(host, port, 50*time.Millisecond)
	defer c.Close()
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	if resp, ok := c.Exchange([]byte{0x00, 0xB2, 0x01, 0x0C, 0x00}); ok {
		t.Fatalf("First exchange should time out, got %X", resp)
	}
	if c.Established() {
		t.Fatal("A timed-out exchange should drop the connection")
	}
	if resp, ok := c.Exchange([]byte{0x00, 0xB2, 0x02, 0x0C, 0x00}); ok {
		t.Fatalf("Exchange on a dropped connection should fail, got %X", resp)
	}

	// Let the first answer hit the old, closed connection.
	time.Sleep(200 * time.Millisecond)

	if !c.Connect(context.Background()) {
		t.Fatal("Reconnect failed")
	}
	got, ok := c.Exchange([]byte{0x00, 0xB2, 0x02, 0x0C, 0x00})
	if !ok {
		t.Fatal("Exchange after reconnect failed")
	}
	if diff := cmp.Diff([]byte{0x22, 0x90, 0x00}, got); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_DisconnectAfterCloseError(t *testing.T) {
	host, port := echoOracle(t, func(req []byte) []byte { return []byte{0x90, 0x00} })

	c := newTestClient(host, port, time.Second)
	defer c.Close()
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	// A second Close on the socket reports an error.
	_ = c.conn.Close()

	if !c.Disconnect() {
		t.Error("Disconnect should report disconnected even when Close fails")
	}
	if c.Established() {
		t.Error("Disconnect should clear the established flag even when Close fails")
	}
	if !c.Connect(context.Background()) {
		t.Error("Client should reconnect after a failed Close")
	}
}

func TestClient_Addr(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	if c.Addr() != "localhost:12345" {
		t.Errorf("Addr() = %q, want localhost:12345", c.Addr())
	}
}
