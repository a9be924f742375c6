package trx

import (
	"errors"
	"fmt"

	"github.com/rjboer/limetrx/internal/calib"
	"github.com/rjboer/limetrx/internal/frontend"
)

var (
	ErrABIMismatch      = errors.New("host ABI version mismatch")
	ErrTooManyPorts     = errors.New("only one RF port supported")
	ErrTooManyChannels  = errors.New("channel count exceeds supported maximum")
	ErrInvalidParams    = errors.New("invalid radio parameters")
	ErrNotStarted       = errors.New("session not started")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrSessionFailed    = errors.New("session unusable after failed start")
	ErrClosed           = errors.New("session closed")
	ErrBufferTooSmall   = errors.New("sample buffer too small")
	ErrNoSampleRate     = errors.New("no supported sample rate")
	ErrTimeout          = frontend.ErrTimeout
	ErrPowerUnavailable = calib.ErrPowerUnavailable
)

// FatalError aborts Start. Register writes made by earlier steps stay in
// place and the session must be torn down with End.
type FatalError struct {
	Step string
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("start: %s: %v", e.Step, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(step string, err error) error { return &FatalError{Step: step, Err: err} }

// InitError is returned by Init. Nothing is left open when it is returned.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "init: " + e.Err.Error() }

func (e *InitError) Unwrap() error { return e.Err }
