// Package tailer follows an append-only log file from its current end.
//
// The tailer tolerates the file not existing yet (the harness usually
// starts before the server has logged anything) and never replays
// content written before it attached. Lines are delivered exactly once,
// in append order, over the Lines channel.
package tailer

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// State describes where the tailer is in its lifecycle.
type State int32

const (
	WaitingForSource State = iota
	Tailing
	Stopped
)

func (s State) String() string {
	switch s {
	case WaitingForSource:
		return "waiting_for_source"
	case Tailing:
		return "tailing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultExistInterval = 1 * time.Second
	defaultReadInterval  = 100 * time.Millisecond
)

// Tailer follows one log file. Create with New, then call Run once.
type Tailer struct {
	path          string
	existInterval time.Duration
	readInterval  time.Duration

	state atomic.Int32
	lines chan string
}

// Option adjusts tailer timing, mainly for tests.
type Option func(*Tailer)

// WithExistInterval sets how often a missing file is re-checked.
func WithExistInterval(d time.Duration) Option {
	return func(t *Tailer) { t.existInterval = d }
}

// WithReadInterval sets the sleep between empty reads.
func WithReadInterval(d time.Duration) Option {
	return func(t *Tailer) { t.readInterval = d }
}

// New creates a Tailer for path. Nothing is opened until Run.
func New(path string, opts ...Option) *Tailer {
	t := &Tailer{
		path:          path,
		existInterval: defaultExistInterval,
		readInterval:  defaultReadInterval,
		lines:         make(chan string, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lines returns the channel of raw log lines. It is closed when Run
// returns.
func (t *Tailer) Lines() <-chan string {
	return t.lines
}

// State reports the current lifecycle state.
func (t *Tailer) State() State {
	return State(t.state.Load())
}

// Run blocks until ctx is cancelled, polling for the file and then
// tailing it. Always returns nil: everything the tailer hits in steady
// state is transient by design.
func (t *Tailer) Run(ctx context.Context) error {
	defer func() {
		t.state.Store(int32(Stopped))
		close(t.lines)
	}()

	f, ok := t.waitForSource(ctx)
	if !ok {
		return nil
	}
	defer f.Close()

	// Attach at the current end: history is the log monitor's problem
	// only from this moment forward.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		log.Warn().Err(err).Str("path", t.path).Msg("seek to end failed, tailing from start")
	}

	t.state.Store(int32(Tailing))
	log.Info().Str("path", t.path).Msg("tailing log file")
	t.tail(ctx, f)
	return nil
}

// waitForSource polls until the file exists or ctx is cancelled.
func (t *Tailer) waitForSource(ctx context.Context) (*os.File, bool) {
	t.state.Store(int32(WaitingForSource))

	logged := false
	for {
		f, err := os.Open(t.path)
		if err == nil {
			return f, true
		}
		if !logged {
			log.Info().Str("path", t.path).Msg("log file not found, waiting for it to appear")
			logged = true
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(t.existInterval):
		}
	}
}

// tail reads complete lines until ctx is cancelled. A partial final line
// stays buffered until its newline arrives, so writers that flush
// mid-line never cause a split record.
func (t *Tailer) tail(ctx context.Context, f *os.File) {
	reader := bufio.NewReader(f)
	var partial strings.Builder

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, err := reader.ReadString('\n')
		switch {
		case err == nil:
			line := strings.TrimRight(partial.String()+chunk, "\r\n")
			partial.Reset()
			select {
			case t.lines <- line:
			case <-ctx.Done():
				return
			}
		case err == io.EOF:
			partial.WriteString(chunk)
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.readInterval):
			}
		default:
			// Transient read hiccup: treat as no new data this cycle.
			log.Warn().Err(err).Str("path", t.path).Msg("log read failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.readInterval):
			}
		}
	}
}
