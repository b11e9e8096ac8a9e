package core

import (
	"errors"
	"fmt"
)

var (
	ErrRequestFailed = errors.New("request failed")
	ErrLoggingFailed = errors.New("logging failed")
)

type Step string

const (
	StepStart   Step = "start-logging"
	StepRequest Step = "request"
	StepStop    Step = "stop-logging"
)

// StepError is returned by Sequencer.Run for the step that ended the run.
type StepError struct {
	Cycle int
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("cycle %d: %s: %v", e.Cycle, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
