package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/internal/threaddump"
)

const DefaultInterval = 100 * time.Millisecond

var ErrIllegalState = errors.New("illegal session state")

type State int

const (
	StateInactive State = iota
	StateStarting
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	Interval       time.Duration
	IgnoredThreads []string
	Filter         settings.SimpleFilter

	// Recording receives every sample as a raw sample stream when set
	Recording io.Writer
	Logger    *slog.Logger
}

// Session samples one JVM on a background goroutine and builds CPU
// snapshots from the collected stacks
type Session struct {
	dumper  Dumper
	builder *samples.Builder
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	opts     Options
	origin   time.Time
	began    time.Time
	recorder *samples.Writer
	ticker   *time.Ticker
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

func NewSession(d Dumper, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		dumper:  d,
		builder: samples.NewBuilder(),
		logger:  logger,
	}
	s.applyLocked(opts)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the reason the session terminated on its own
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the sampling goroutine exits
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) SampleCount() int {
	return s.builder.SampleCount()
}

func (s *Session) applyLocked(opts Options) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	opts.IgnoredThreads = slices.Clone(opts.IgnoredThreads)
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	s.opts = opts

	s.builder.SetIgnoredThreads(opts.IgnoredThreads...)
	if opts.Filter.Type == settings.FilterNone {
		s.builder.SetFilter(nil)
	} else {
		s.builder.SetFilter(opts.Filter.Passes)
	}
}

func illegal(op string, state State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrIllegalState, op, state)
}

// Start takes a first dump to make sure the target is reachable and then
// keeps sampling until Stop, ctx cancellation, or the target exiting
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInactive {
		defer s.mu.Unlock()
		return illegal("start", s.state)
	}
	s.state = StateStarting
	s.err = nil
	s.builder.Reset()
	s.mu.Unlock()

	dump, err := s.dumper.Dump(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateInactive
		return fmt.Errorf("failed to attach: %w", err)
	}

	if s.opts.Recording != nil {
		w, err := samples.NewWriter(s.opts.Recording)
		if err != nil {
			s.state = StateInactive
			return err
		}
		s.recorder = w
	}

	s.origin = time.Now()
	s.began = s.origin
	s.recordLocked(dump)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.ticker = time.NewTicker(s.opts.Interval)
	s.done = make(chan struct{})
	s.state = StateRunning

	s.logger.Debug("sampling started", "interval", s.opts.Interval, "threads", len(dump.Threads))
	go s.loop(loopCtx, s.ticker, s.done)
	return nil
}

func (s *Session) loop(ctx context.Context, ticker *time.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sampleOnce(ctx) {
				return
			}
		}
	}
}

func (s *Session) sampleOnce(ctx context.Context) bool {
	dump, err := s.dumper.Dump(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrTargetTerminated) {
			s.mu.Lock()
			s.err = err
			if s.state == StateRunning {
				s.state = StateTerminated
			}
			s.mu.Unlock()
			s.logger.Info("profiled application terminated", "error", err)
			return false
		}
		s.logger.Warn("thread dump failed", "error", err)
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(dump)
	return true
}

func (s *Session) recordLocked(dump *threaddump.Dump) {
	ts := time.Since(s.origin).Nanoseconds()
	s.builder.AddStacktrace(dump.Threads, ts)

	if s.recorder != nil {
		if err := s.recorder.WriteSample(ts, dump.Threads); err != nil {
			s.logger.Warn("sample recording stopped", "error", err)
			s.recorder = nil
		}
	}
}

// ChangeSettings applies new sampling options. A running session picks up the
// interval on the next tick; the recording target cannot change mid-run.
func (s *Session) ChangeSettings(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateInactive:
	case StateRunning:
		opts.Recording = s.opts.Recording
	default:
		return illegal("change settings", s.state)
	}

	s.applyLocked(opts)
	if s.state == StateRunning {
		s.ticker.Reset(s.opts.Interval)
	}
	s.logger.Debug("sampling settings changed", "interval", s.opts.Interval, "filter", s.opts.Filter.String())
	return nil
}

// Settings describes the profiling configuration snapshots are tagged with
func (s *Session) Settings() *settings.ProfilingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked()
}

func (s *Session) settingsLocked() *settings.ProfilingSettings {
	ps := settings.CPUPreset()
	ps.SamplingFrequency = int(s.opts.Interval / time.Millisecond)
	ps.QuickFilter = s.opts.Filter
	return ps
}

func (s *Session) snapshotLocked() (*snapshot.LoadedSnapshot, error) {
	res, err := s.builder.CreateSnapshot(s.began)
	if err != nil {
		return nil, err
	}
	return snapshot.New(res, s.settingsLocked(), "", "")
}

// TakeSnapshot returns the data collected so far without stopping
func (s *Session) TakeSnapshot() (*snapshot.LoadedSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning && s.state != StateTerminated {
		return nil, illegal("take a snapshot", s.state)
	}
	return s.snapshotLocked()
}

// Reset discards collected data; sampling continues
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return illegal("reset", s.state)
	}
	s.builder.Reset()
	s.began = time.Now()
	return nil
}

// Stop ends sampling and returns the final snapshot. The session can be
// started again afterwards.
func (s *Session) Stop() (*snapshot.LoadedSnapshot, error) {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateTerminated {
		defer s.mu.Unlock()
		return nil, illegal("stop", s.state)
	}
	s.state = StateStopping
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()

	var closeErr error
	if s.recorder != nil {
		closeErr = s.recorder.Close()
		s.recorder = nil
	}
	s.state = StateInactive

	ls, err := s.snapshotLocked()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return ls, fmt.Errorf("failed to finish sample recording: %w", closeErr)
	}
	s.logger.Debug("sampling stopped", "samples", s.builder.SampleCount())
	return ls, nil
}
