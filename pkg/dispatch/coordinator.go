// Package dispatch decides, per command, whether the answer comes from the
// local table or from the remote oracle, and packages that work as a task the
// caller runs off its own goroutine.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gregLibert/cardemu/pkg/resolver"
)

// Mode selects where responses come from.
type Mode int

const (
	ModeLocalTable Mode = iota
	ModeNetworkRelay
)

// LabelNetworkRelay is the advisory label of every relayed command.
const LabelNetworkRelay = "Network relay"

func (m Mode) String() string {
	switch m {
	case ModeLocalTable:
		return "local"
	case ModeNetworkRelay:
		return "relay"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "local"/"table" and "relay"/"network", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "table", "":
		return ModeLocalTable, nil
	case "relay", "network":
		return ModeNetworkRelay, nil
	default:
		return ModeLocalTable, fmt.Errorf("dispatch: unknown mode %q", s)
	}
}

// Relay is the part of the relay client the coordinator drives.
type Relay interface {
	Connect(ctx context.Context) bool
	Disconnect() bool
	Exchange(payload []byte) ([]byte, bool)
	Close() error
}

// Continuation receives the response of one command and the label of the case
// that produced it. A nil response means no response is available (relay failure).
type Continuation func(resp []byte, label string)

// Task resolves one command and hands the result to its continuation.
// It is not started by GetResponse; the caller decides where it runs.
type Task func()

// Coordinator holds the dispatch mode, both response sources and the label of
// the most recently handled command.
type Coordinator struct {
	resolver *resolver.Resolver
	relay    Relay
	log      zerolog.Logger

	mu    sync.Mutex
	mode  Mode
	label string

	bg errgroup.Group
}

// New creates a coordinator in local-table mode. relay may be nil, in which
// case relayed commands get no response.
func New(res *resolver.Resolver, relay Relay, log zerolog.Logger) *Coordinator {
	if res == nil {
		res = resolver.New(nil)
	}
	return &Coordinator{
		resolver: res,
		relay:    relay,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// Mode returns the current dispatch mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SelectedLabel returns the label of the last command handled. Most recent wins.
func (c *Coordinator) SelectedLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

// SetLabel overrides the advisory label, e.g. for commands rejected before dispatch.
func (c *Coordinator) SetLabel(label string) {
	c.mu.Lock()
	c.label = label
	c.mu.Unlock()
}

// SetMode switches the response source. Entering relay mode connects in the
// background and leaving it disconnects in the background; the switch itself
// never blocks. Use Wait to observe completion.
func (c *Coordinator) SetMode(ctx context.Context, mode Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mode = mode
	c.mu.Unlock()

	c.log.Info().Stringer("from", prev).Stringer("to", mode).Msg("dispatch mode changed")

	if c.relay == nil {
		return
	}
	switch mode {
	case ModeNetworkRelay:
		c.bg.Go(func() error {
			if !c.relay.Connect(ctx) {
				c.log.Warn().Msg("relay mode active without a connection")
			}
			return nil
		})
	case ModeLocalTable:
		c.bg.Go(func() error {
			c.relay.Disconnect()
			return nil
		})
	}
}

// GetResponse returns a task answering command in the mode current at call time.
// commandHex is the upper-case hex form of command.
func (c *Coordinator) GetResponse(commandHex string, command []byte, cont Continuation) Task {
	if c.Mode() == ModeNetworkRelay {
		return func() {
			c.SetLabel(LabelNetworkRelay)
			var resp []byte
			if c.relay != nil {
				if r, ok := c.relay.Exchange(command); ok {
					resp = r
				}
			}
			if resp == nil {
				c.log.Warn().Str("command", commandHex).Msg("no response available from relay")
			}
			cont(resp, LabelNetworkRelay)
		}
	}

	return func() {
		resp, label := c.resolver.Resolve(commandHex)
		c.SetLabel(label)
		cont(resp, label)
	}
}

// Wait blocks until pending mode switches have finished.
func (c *Coordinator) Wait() error {
	return c.bg.Wait()
}

// Close waits for pending mode switches and releases the relay connection.
func (c *Coordinator) Close() error {
	if err := c.bg.Wait(); err != nil {
		return err
	}
	if c.relay == nil {
		return nil
	}
	return c.relay.Close()
}
