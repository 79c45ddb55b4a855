// Package history keeps the communication log of an emulation session: an
// in-memory transcript for display and, optionally, a rotated JSON file.
package history

import (
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gregLibert/cardemu/pkg/emv"
	"github.com/gregLibert/cardemu/pkg/iso7816"
)

// Transcript line prefixes.
const (
	CommandPrefix  = "APDU-C: "
	ResponsePrefix = "APDU-R: "
)

const (
	noCommand  = "(no command)"
	noResponse = "(no response)"
)

// Options configures a Recorder. An empty File disables the file sink.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Annotate decodes successful EMV responses into the transcript.
	Annotate bool
}

// Recorder collects exchanges and session events. It is safe for concurrent use.
type Recorder struct {
	log      zerolog.Logger
	annotate bool

	mu    sync.Mutex
	lines []string
	sink  io.WriteCloser
	file  zerolog.Logger
}

// NewRecorder creates a recorder. The file sink, when configured, is opened lazily
// on the first write and rotated by size.
func NewRecorder(opts Options, log zerolog.Logger) *Recorder {
	r := &Recorder{
		log:      log.With().Str("component", "history").Logger(),
		annotate: opts.Annotate,
		file:     zerolog.Nop(),
	}
	if opts.File != "" {
		r.sink = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		r.file = zerolog.New(r.sink).With().Timestamp().Logger()
	}
	return r
}

// RecordEvent appends a session marker such as "Communication started".
func (r *Recorder) RecordEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, event)
	r.log.Info().Msg(event)
	r.file.Info().Str("kind", "event").Msg(event)
}

// RecordExchange appends one command/response pair with the label of the case
// that handled it. A nil command or response is recorded as absent.
func (r *Recorder) RecordExchange(command, response []byte, label string) {
	cmdHex, respHex := noCommand, noResponse
	if command != nil {
		cmdHex = iso7816.EncodeHex(command)
	}
	if response != nil {
		respHex = iso7816.EncodeHex(response)
	}

	var note string
	if r.annotate && command != nil && response != nil {
		note, _ = emv.Annotate(command, response)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, CommandPrefix+cmdHex, ResponsePrefix+respHex)
	if note != "" {
		r.lines = append(r.lines, strings.Split(note, "\n")...)
	}
	r.lines = append(r.lines, "")

	r.log.Debug().Str("command", cmdHex).Str("response", respHex).Str("label", label).Msg("exchange")
	r.file.Info().
		Str("kind", "exchange").
		Str("command", cmdHex).
		Str("response", respHex).
		Str("label", label).
		Send()
}

// Lines returns a copy of the transcript lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Transcript returns the transcript as text.
func (r *Recorder) Transcript() string {
	return strings.Join(r.Lines(), "\n")
}

// Reset clears the in-memory transcript. The file sink is left untouched.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}

// Close flushes and closes the file sink, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return nil
	}
	err := r.sink.Close()
	r.sink = nil
	r.file = zerolog.Nop()
	return err
}
