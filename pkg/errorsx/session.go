package errorsx

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSession = errors.New("session already exists")
	ErrUnknownSession   = errors.New("session not found")
	ErrDraining         = errors.New("registry is draining")
	ErrMalformedFrame   = errors.New("malformed audio frame")

	ErrTranscription = errors.New("transcription failed")
	ErrCompletion    = errors.New("completion failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrEmission      = errors.New("audio emission failed")

	// ErrTimeout matches any stage error raised by an expired deadline.
	ErrTimeout = errors.New("stage timed out")
)

// Stage names a remote step of a conversational turn.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageComplete   Stage = "complete"
	StageSynthesize Stage = "synthesize"
	StageEmit       Stage = "emit"
)

func (s Stage) sentinel() error {
	switch s {
	case StageTranscribe:
		return ErrTranscription
	case StageComplete:
		return ErrCompletion
	case StageSynthesize:
		return ErrSynthesis
	case StageEmit:
		return ErrEmission
	default:
		return nil
	}
}

func (s Stage) reason(timeout bool) ReasonCode {
	switch s {
	case StageTranscribe:
		if timeout {
			return ReasonSTTTimeout
		}
		return ReasonSTTSend
	case StageComplete:
		if timeout {
			return ReasonLLMTimeout
		}
		return ReasonLLMGenerate
	case StageSynthesize:
		if timeout {
			return ReasonTTSTimeout
		}
		return ReasonTTSSend
	case StageEmit:
		return ReasonTransportSend
	}
	return ReasonUnknown
}

// StageError reports a failed turn stage. errors.Is matches the stage
// sentinel (ErrTranscription, ErrCompletion, ...) and ErrTimeout when the
// stage deadline expired.
type StageError struct {
	Stage   Stage
	Timeout bool
	Err     error
}

// NewStageError builds a StageError, tagging it with the stage reason code
// unless the cause already carries one.
func NewStageError(stage Stage, timeout bool, err error) error {
	return Wrap(&StageError{Stage: stage, Timeout: timeout, Err: err}, stage.reason(timeout))
}

func (e *StageError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Stage, kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	if target == ErrTimeout {
		return e.Timeout
	}
	if s := e.Stage.sentinel(); s != nil && target == s {
		return true
	}
	return false
}

// SessionError reports a registry failure for one call.
type SessionError struct {
	CallID string
	Err    error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("call %s: %v", e.CallID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// DuplicateSession returns the error raised when a call starts twice.
func DuplicateSession(callID string) error {
	return Wrap(&SessionError{CallID: callID, Err: ErrDuplicateSession}, ReasonSessionDuplicate)
}

// UnknownSession returns the error raised for events on a call with no session.
func UnknownSession(callID string) error {
	return Wrap(&SessionError{CallID: callID, Err: ErrUnknownSession}, ReasonSessionUnknown)
}

// MalformedFrame wraps a payload decode failure.
func MalformedFrame(err error) error {
	return Wrap(fmt.Errorf("%w: %v", ErrMalformedFrame, err), ReasonFrameMalformed)
}
