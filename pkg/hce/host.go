package hce

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardemu/pkg/dispatch"
)

// Host is the card-emulation transport that receives asynchronous responses.
type Host interface {
	DeliverResponse(resp []byte)
}

// HostFunc adapts a function to Host.
type HostFunc func(resp []byte)

func (f HostFunc) DeliverResponse(resp []byte) { f(resp) }

// ChannelHost delivers responses on a channel. Delivery after Close is dropped.
type ChannelHost struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func NewChannelHost(buffer int) *ChannelHost {
	return &ChannelHost{
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Responses returns the delivery channel. It is never closed.
func (h *ChannelHost) Responses() <-chan []byte {
	return h.ch
}

func (h *ChannelHost) DeliverResponse(resp []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.ch <- resp:
	case <-h.done:
	}
}

func (h *ChannelHost) Close() {
	h.once.Do(func() { close(h.done) })
}

var (
	ErrNoResponse      = errors.New("hce: no response available")
	ErrResponseTimeout = errors.New("hce: timed out waiting for response")
)

// Loopback drives a Service in-process and exposes it as an iso7816.Transmitter,
// so reader-side code can talk to the emulated card without any hardware.
// It is meant for one caller at a time.
//
// The service answers queued commands in order, so the n-th response delivered
// belongs to the n-th command queued. A response that arrives after its
// Transmit gave up is discarded by the next Transmit.
type Loopback struct {
	svc     *Service
	host    *ChannelHost
	timeout time.Duration

	sent     uint64 // commands queued on the service
	received uint64 // responses taken off the host
}

// NewLoopback starts a service over coord. A zero timeout waits forever.
func NewLoopback(coord *dispatch.Coordinator, journal Journal, timeout time.Duration, log zerolog.Logger) *Loopback {
	host := NewChannelHost(1)
	return &Loopback{
		svc:     NewService(coord, host, journal, log),
		host:    host,
		timeout: timeout,
	}
}

// Service returns the underlying service, e.g. to signal deactivation.
func (l *Loopback) Service() *Service {
	return l.svc
}

func (l *Loopback) Transmit(cmd []byte) ([]byte, error) {
	if resp := l.svc.ProcessCommand(cmd); resp != nil {
		return resp, nil
	}
	l.sent++

	var timeout <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case resp := <-l.host.Responses():
			l.received++
			if l.received < l.sent {
				continue // stale, its Transmit timed out
			}
			if resp == nil {
				return nil, ErrNoResponse
			}
			return resp, nil
		case <-timeout:
			return nil, ErrResponseTimeout
		}
	}
}

// Close stops the service and the host.
func (l *Loopback) Close() error {
	err := l.svc.Close()
	l.host.Close()
	return err
}
