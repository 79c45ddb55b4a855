package relay

import (
	"errors"
	"fmt"
	"io"
)

// MaxPayload is the largest APDU a single length byte can announce.
const MaxPayload = 0xFF

var (
	ErrPayloadTooLarge = errors.New("relay: payload too large for one length byte")
	ErrShortFrame      = errors.New("relay: stream ended inside a frame")
)

// WriteFrame writes [len(payload)][payload] with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, 1+len(payload))
	buf[0] = byte(len(payload))
	copy(buf[1:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length byte and then exactly that many payload bytes.
// A clean EOF before the length byte is returned as io.EOF; any truncation
// after it is ErrShortFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var size [1]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}

	payload := make([]byte, size[0])
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return payload, nil
}
