package callstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/conversation"
	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func endedCall(callSID string, endedAt time.Time) pipeline.Ended {
	started := endedAt.Add(-30 * time.Second).UTC()
	return pipeline.Ended{
		Summary: pipeline.Summary{
			CallSID:      callSID,
			StreamID:     "MZ-" + callSID,
			TraceID:      "trace-" + callSID,
			From:         "+15551234567",
			Objective:    "Book a cleaning",
			Turns:        2,
			FramesIn:     400,
			FramesOut:    120,
			CreatedAtUTC: started,
		},
		Turns: []conversation.Turn{
			{Role: llm.RoleSystem, Content: "You are Sam."},
			{Role: llm.RoleUser, Content: "Book a cleaning"},
			{Role: llm.RoleUser, Content: "Tuesday please"},
			{Role: llm.RoleAssistant, Content: "Tuesday at ten works."},
		},
		Results: []pipeline.TurnResult{
			{Turn: 1, Outcome: pipeline.OutcomeSpoken, Transcript: "Tuesday please", Reply: "Tuesday at ten works.", AudioBytes: 1600, Frames: 10, Duration: 900 * time.Millisecond},
			{Turn: 2, Outcome: pipeline.OutcomeAborted, Transcript: "thanks", Err: errorsx.NewStageError(errorsx.StageComplete, true, context.DeadlineExceeded)},
		},
		Reason:  "completed",
		EndedAt: endedAt,
	}
}

func TestSaveAndGet(t *testing.T) {
	redact.SetEnabled(false)
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Save(ctx, endedCall("CA1", now)))

	call, err := s.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "MZ-CA1", call.StreamID)
	assert.Equal(t, "+15551234567", call.FromNumber)
	assert.Equal(t, "completed", call.Reason)
	assert.Equal(t, 2, call.TurnCount)
	assert.Equal(t, int64(30000), call.DurationMs)

	require.Len(t, call.Messages, 4)
	assert.Equal(t, "system", call.Messages[0].Role)
	assert.Equal(t, "Tuesday at ten works.", call.Messages[3].Content)

	require.Len(t, call.Turns, 2)
	assert.Equal(t, "spoken", call.Turns[0].Outcome)
	assert.Equal(t, int64(900), call.Turns[0].DurationMs)
	assert.Equal(t, "aborted", call.Turns[1].Outcome)
	assert.NotEmpty(t, call.Turns[1].Error)
	assert.NotEmpty(t, call.Turns[1].ReasonCode)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRedactsWhenEnabled(t *testing.T) {
	redact.SetEnabled(true)
	t.Cleanup(func() { redact.SetEnabled(false) })
	s := openStore(t)
	ended := endedCall("CA2", time.Now())
	ended.Results[0].Transcript = "call me at 555-123-4567"
	require.NoError(t, s.Save(context.Background(), ended))

	call, err := s.Get(context.Background(), "CA2")
	require.NoError(t, err)
	assert.NotEqual(t, "+15551234567", call.FromNumber)
	assert.NotContains(t, call.Turns[0].Transcript, "555-123-4567")
}

func TestRecentOrdersByEnd(t *testing.T) {
	redact.SetEnabled(false)
	s := openStore(t)
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, s.Save(ctx, endedCall("CA-old", base.Add(-time.Hour))))
	require.NoError(t, s.Save(ctx, endedCall("CA-new", base)))

	calls, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "CA-new", calls[0].CallSID)
	assert.Empty(t, calls[0].Messages)
}

func TestHookArchivesOnce(t *testing.T) {
	redact.SetEnabled(false)
	s := openStore(t)
	hook := s.Hook(resilience.NewRetryPolicy(1, time.Millisecond), nil)

	hook(context.Background(), endedCall("CA3", time.Now()))
	// A second archive of the same call fails and is only logged.
	hook(context.Background(), endedCall("CA3", time.Now()))

	calls, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}
