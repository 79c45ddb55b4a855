package hce

import (
	"fmt"
	"sync"
)

// Session markers written to the journal.
const (
	EventCommunicationStarted = "Communication started"
	EventCommunicationEnded   = "Communication ended"
)

// DeactivationReason tells why the host stopped routing commands to the service.
type DeactivationReason int

const (
	// DeactivationLinkLoss: the contactless link was lost.
	DeactivationLinkLoss DeactivationReason = iota
	// DeactivationDeselected: another application was selected.
	DeactivationDeselected
)

func (r DeactivationReason) String() string {
	switch r {
	case DeactivationLinkLoss:
		return "link loss"
	case DeactivationDeselected:
		return "deselected"
	default:
		return fmt.Sprintf("DeactivationReason(%d)", int(r))
	}
}

// Journal receives the communication history.
type Journal interface {
	RecordExchange(command, response []byte, label string)
	RecordEvent(event string)
}

type nopJournal struct{}

func (nopJournal) RecordExchange([]byte, []byte, string) {}
func (nopJournal) RecordEvent(string)                    {}

// SessionTracker marks the first exchange after each (re)activation.
type SessionTracker struct {
	journal Journal

	mu     sync.Mutex
	active bool
}

func NewSessionTracker(j Journal) *SessionTracker {
	if j == nil {
		j = nopJournal{}
	}
	return &SessionTracker{journal: j}
}

// OnExchange records the start marker if this is the first exchange of the
// session and reports whether it was.
func (s *SessionTracker) OnExchange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return false
	}
	s.active = true
	s.journal.RecordEvent(EventCommunicationStarted)
	return true
}

// OnDeactivate ends the session. The next exchange starts a new one.
func (s *SessionTracker) OnDeactivate(DeactivationReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.journal.RecordEvent(EventCommunicationEnded)
}

// Active reports whether a session has started and not yet ended.
func (s *SessionTracker) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
