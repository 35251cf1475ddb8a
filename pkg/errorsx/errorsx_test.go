package errorsx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonLLMGenerate)
	assert.Equal(t, ReasonLLMGenerate, Reason(err))
	assert.True(t, HasReason(err, ReasonLLMGenerate))
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSTTSend)
	second := Wrap(first, ReasonLLMGenerate)
	assert.Equal(t, ReasonSTTSend, Reason(second))
}

func TestStageErrorMatchesSentinels(t *testing.T) {
	err := NewStageError(StageComplete, false, assertErr{})
	assert.ErrorIs(t, err, ErrCompletion)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrTranscription)
	assert.Equal(t, ReasonLLMGenerate, Reason(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageComplete, se.Stage)
}

func TestStageErrorTimeoutVariant(t *testing.T) {
	err := NewStageError(StageTranscribe, true, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ReasonSTTTimeout, Reason(err))
}

func TestStageErrorKeepsProviderReason(t *testing.T) {
	cause := Wrap(assertErr{}, ReasonTTSRateLimit)
	err := NewStageError(StageSynthesize, false, cause)
	assert.Equal(t, ReasonTTSRateLimit, Reason(err))
	assert.ErrorIs(t, err, ErrSynthesis)
}

func TestSessionErrors(t *testing.T) {
	dup := DuplicateSession("CA1")
	assert.ErrorIs(t, dup, ErrDuplicateSession)
	assert.Contains(t, dup.Error(), "CA1")
	assert.Equal(t, ReasonSessionDuplicate, Reason(dup))

	unknown := UnknownSession("CA2")
	assert.ErrorIs(t, unknown, ErrUnknownSession)
	assert.False(t, errors.Is(unknown, ErrDuplicateSession))

	bad := MalformedFrame(assertErr{})
	assert.ErrorIs(t, bad, ErrMalformedFrame)
	assert.Equal(t, ReasonFrameMalformed, Reason(bad))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
