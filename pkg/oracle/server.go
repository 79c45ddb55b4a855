// Package oracle is the remote end of the relay protocol: it accepts emulator
// connections and answers every relayed command APDU with one response frame.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gregLibert/cardemu/pkg/iso7816"
	"github.com/gregLibert/cardemu/pkg/relay"
	"github.com/gregLibert/cardemu/pkg/resolver"
)

// Responder produces the response APDU for one command APDU.
type Responder interface {
	Respond(command []byte) ([]byte, error)
}

type ResponderFunc func(command []byte) ([]byte, error)

func (f ResponderFunc) Respond(command []byte) ([]byte, error) { return f(command) }

// TableResponder answers from a lookup table, exactly as the emulator would locally.
type TableResponder struct {
	Resolver *resolver.Resolver
}

func (t TableResponder) Respond(command []byte) ([]byte, error) {
	if 2*len(command) < iso7816.MinAPDUHexLength {
		return iso7816.SW_COMMAND_ABORTED.Bytes(), nil
	}
	resp, _ := t.Resolver.Resolve(iso7816.EncodeHex(command))
	return resp, nil
}

// CardResponder forwards commands to a real card. Access to the card is
// serialized across connections.
type CardResponder struct {
	mu     sync.Mutex
	client *iso7816.Client
}

func NewCardResponder(card iso7816.Transmitter) *CardResponder {
	return &CardResponder{client: iso7816.NewClient(card)}
}

func (c *CardResponder) Respond(command []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Exchange(command)
}

// Server serves the relay protocol over TCP.
type Server struct {
	Responder Responder
	Log       zerolog.Logger
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("oracle listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	log := s.Log.With().Str("component", "oracle").Str("addr", ln.Addr().String()).Logger()
	log.Info().Msg("oracle listening")

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("oracle accept: %w", err)
			}
			g.Go(func() error {
				s.handle(ctx, conn, log)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn, log zerolog.Logger) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	log = log.With().Str("peer", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("emulator connected")

	for {
		cmd, err := relay.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Info().Msg("emulator disconnected")
			} else {
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		resp, err := s.Responder.Respond(cmd)
		if err != nil {
			log.Warn().Err(err).Str("command", iso7816.EncodeHex(cmd)).Msg("responder failed")
			resp = iso7816.SW_COMMAND_ABORTED.Bytes()
		}
		if len(resp) > relay.MaxPayload {
			log.Warn().Int("len", len(resp)).Msg("response does not fit a frame")
			resp = iso7816.SW_ERR_WRONG_LENGTH.Bytes()
		}

		log.Debug().Str("command", iso7816.EncodeHex(cmd)).Str("response", iso7816.EncodeHex(resp)).Msg("relayed")
		if err := relay.WriteFrame(conn, resp); err != nil {
			log.Warn().Err(err).Msg("write failed")
			return
		}
	}
}
