package hce

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gregLibert/cardemu/pkg/dispatch"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

const labelServiceClosed = "Command aborted: service closed"

// Service is the entry point of the emulated card.
//
// ProcessCommand runs on the host's callback goroutine and never blocks on
// resolution: malformed frames are answered inline, valid ones are queued and
// answered later through Host.DeliverResponse. A single worker drains the
// queue, so responses leave in the order commands arrived.
type Service struct {
	coord   *dispatch.Coordinator
	host    Host
	journal Journal
	session *SessionTracker
	log     zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []dispatch.Task
	closed bool
	done   chan struct{}
}

// NewService starts the worker. journal may be nil.
func NewService(coord *dispatch.Coordinator, host Host, journal Journal, log zerolog.Logger) *Service {
	if journal == nil {
		journal = nopJournal{}
	}
	s := &Service{
		coord:   coord,
		host:    host,
		journal: journal,
		session: NewSessionTracker(journal),
		log:     log.With().Str("component", "hce").Logger(),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// ProcessCommand handles one raw command APDU. It returns SW_COMMAND_ABORTED
// for a malformed frame (or after Close) and nil when the response will be
// delivered asynchronously.
func (s *Service) ProcessCommand(cmd []byte) []byte {
	if err := Validate(cmd); err != nil {
		s.log.Debug().Err(err).Msg("command rejected")
		return s.abort(cmd, abortLabel(err))
	}

	// The host may reuse its buffer once the callback returns.
	command := bytes.Clone(cmd)
	commandHex := iso7816.EncodeHex(command)

	task := s.coord.GetResponse(commandHex, command, func(resp []byte, label string) {
		s.host.DeliverResponse(resp)
		s.record(command, resp, label)
	})

	if !s.enqueue(task) {
		return s.abort(cmd, labelServiceClosed)
	}
	return nil
}

// ProcessHex is ProcessCommand for hosts that carry commands as hex text.
// Whitespace is ignored; text that is not well-formed hex is aborted.
func (s *Service) ProcessHex(commandHex string) []byte {
	commandHex = strings.Join(strings.Fields(commandHex), "")
	if err := ValidateHex(commandHex); err != nil {
		return s.abort(nil, abortLabel(err))
	}
	cmd, err := hex.DecodeString(commandHex)
	if err != nil {
		return s.abort(nil, abortLabel(fmt.Errorf("%w: %v", ErrMalformedCommand, err)))
	}
	return s.ProcessCommand(cmd)
}

func (s *Service) abort(cmd []byte, label string) []byte {
	resp := iso7816.SW_COMMAND_ABORTED.Bytes()
	s.coord.SetLabel(label)
	s.record(cmd, resp, label)
	return resp
}

func (s *Service) record(cmd, resp []byte, label string) {
	s.session.OnExchange()
	s.journal.RecordExchange(cmd, resp, label)
}

// OnDeactivated ends the current session. Work already queued still runs and
// its responses are still handed to the host.
func (s *Service) OnDeactivated(reason DeactivationReason) {
	s.log.Info().Stringer("reason", reason).Msg("deactivated")
	s.session.OnDeactivate(reason)
}

// Session exposes the session state.
func (s *Service) Session() *SessionTracker {
	return s.session
}

func (s *Service) enqueue(task dispatch.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.queue = append(s.queue, task)
	s.cond.Signal()
	return true
}

func (s *Service) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// Flush blocks until every command queued before the call has been answered.
func (s *Service) Flush() {
	barrier := make(chan struct{})
	if !s.enqueue(func() { close(barrier) }) {
		<-s.done
		return
	}
	<-barrier
}

// Close stops accepting commands, lets the worker finish the queue and closes
// the coordinator, releasing any relay connection.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	return s.coord.Close()
}
