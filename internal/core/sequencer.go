package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/boozedog/netlogfixture/internal/config"
)

// NetLog is the logging subsystem the sequencer drives.
type NetLog interface {
	StartLogging(path string) error
	StopLogging(done func(error))
	IsLogging() bool
}

// Requester performs the outbound request of a cycle.
type Requester interface {
	Request(ctx context.Context, url string) error
}

type State int

const (
	StateIdle State = iota
	StateFirstCycle
	StateSecondCycle
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFirstCycle:
		return "first-cycle"
	case StateSecondCycle:
		return "second-cycle"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sequencer runs up to two strictly ordered logging cycles:
// start (optional) → request → stop.
type Sequencer struct {
	netlog NetLog
	req    Requester
	out    io.Writer
	log    *slog.Logger
	state  State
}

// NewSequencer returns a Sequencer that writes its before/after diagnostic
// lines to out.
func NewSequencer(nl NetLog, req Requester, out io.Writer, log *slog.Logger) *Sequencer {
	return &Sequencer{netlog: nl, req: req, out: out, log: log}
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	return s.state
}

// Run executes the lifecycle for cfg. The first failing step ends the run.
func (s *Sequencer) Run(ctx context.Context, cfg *config.Config) error {
	if s.state != StateIdle {
		return fmt.Errorf("sequencer: already ran (state %s)", s.state)
	}

	s.transition(StateFirstCycle)
	if err := s.cycle(ctx, 1, cfg.FirstDestination, cfg); err != nil {
		s.transition(StateFailed)
		return err
	}

	if cfg.SecondDestination != nil {
		s.transition(StateSecondCycle)
		if err := s.cycle(ctx, 2, cfg.SecondDestination, cfg); err != nil {
			s.transition(StateFailed)
			return err
		}
	}

	s.transition(StateTerminated)
	return nil
}

func (s *Sequencer) transition(to State) {
	s.log.Debug("sequencer state", "from", s.state.String(), "to", to.String())
	s.state = to
}

// cycle runs one start → request → stop sequence. A nil dest skips the start
// because logging was already started by the --log-net-log flag.
func (s *Sequencer) cycle(ctx context.Context, n int, dest *config.Destination, cfg *config.Config) error {
	if dest != nil {
		path := dest.Path
		if dest.Kind == config.DestinationFlagDefault {
			path = ""
		}
		s.log.Info("starting net log", "cycle", n, "destination", dest.String())
		if err := s.netlog.StartLogging(path); err != nil {
			return &StepError{Cycle: n, Step: StepStart, Err: fmt.Errorf("%w: %w", ErrLoggingFailed, err)}
		}
	}

	reqCtx, cancel := withStepTimeout(ctx, cfg)
	err := s.req.Request(reqCtx, cfg.URL)
	cancel()
	if err != nil {
		return &StepError{Cycle: n, Step: StepRequest, Err: fmt.Errorf("%w: %w", ErrRequestFailed, err)}
	}

	if err := s.stop(ctx, cfg); err != nil {
		return &StepError{Cycle: n, Step: StepStop, Err: fmt.Errorf("%w: %w", ErrLoggingFailed, err)}
	}
	return nil
}

// stop calls StopLogging and waits for its callback, reporting the logging
// state immediately before and after.
func (s *Sequencer) stop(ctx context.Context, cfg *config.Config) error {
	before := s.netlog.IsLogging()
	fmt.Fprintln(s.out, "before", before)
	s.log.Debug("stopping net log", "is_logging", before)

	done := make(chan error, 1)
	s.netlog.StopLogging(func(err error) { done <- err })

	stopCtx, cancel := withStepTimeout(ctx, cfg)
	defer cancel()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-stopCtx.Done():
		return fmt.Errorf("waiting for stop confirmation: %w", stopCtx.Err())
	}

	after := s.netlog.IsLogging()
	fmt.Fprintln(s.out, "after", after)
	s.log.Debug("net log stopped", "is_logging", after)
	return nil
}

// withStepTimeout bounds a step by cfg.StepTimeout; zero leaves it unbounded.
func withStepTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}
