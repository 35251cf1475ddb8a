// Package callstore archives finished calls to sqlite: the call summary,
// its dialogue and the outcome of every turn.
package callstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

var ErrNotFound = errors.New("call not found")

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the archive at path and migrates its tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open call store: %w", err)
	}
	if err := db.AutoMigrate(&Call{}, &Message{}, &TurnRecord{}); err != nil {
		return nil, fmt.Errorf("migrate call store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save archives one ended call in a single transaction.
func (s *Store) Save(ctx context.Context, ended pipeline.Ended) error {
	call := fromEnded(ended)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&call).Error
	})
}

// Get returns a call with its dialogue and turns in order.
func (s *Store) Get(ctx context.Context, callSID string) (*Call, error) {
	var call Call
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("Turns", func(db *gorm.DB) *gorm.DB { return db.Order("turn ASC") }).
		First(&call, "call_sid = ?", callSID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// Recent lists the latest calls without their dialogue.
func (s *Store) Recent(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var calls []Call
	err := s.db.WithContext(ctx).Order("ended_at DESC").Limit(limit).Find(&calls).Error
	return calls, err
}

// Hook archives every ended call, retrying transient database errors.
func (s *Store) Hook(retry resilience.RetryPolicy, log *slog.Logger) pipeline.EndHook {
	log = logging.NewComponentLogger(log, "callstore")
	return func(ctx context.Context, ended pipeline.Ended) {
		err := retry.Do(ctx, func(ctx context.Context) error {
			return s.Save(ctx, ended)
		})
		if err != nil {
			log.Warn("call_archive_failed", "call_sid", ended.Summary.CallSID, "error", err)
			return
		}
		log.Debug("call_archived", "call_sid", ended.Summary.CallSID, "turns", ended.Summary.Turns)
	}
}

func fromEnded(ended pipeline.Ended) Call {
	sum := ended.Summary
	call := Call{
		CallSID:       sum.CallSID,
		StreamID:      sum.StreamID,
		TraceID:       sum.TraceID,
		FromNumber:    redact.Phone(sum.From),
		Objective:     sum.Objective,
		Reason:        ended.Reason,
		TurnCount:     sum.Turns,
		FramesIn:      sum.FramesIn,
		FramesOut:     sum.FramesOut,
		FramesDropped: sum.FramesDrop,
		StartedAt:     sum.CreatedAtUTC,
		EndedAt:       ended.EndedAt.UTC(),
		DurationMs:    ended.EndedAt.Sub(sum.CreatedAtUTC).Milliseconds(),
	}
	for i, t := range ended.Turns {
		call.Messages = append(call.Messages, Message{
			CallSID: sum.CallSID,
			Seq:     i,
			Role:    string(t.Role),
			Content: redact.Text(t.Content),
		})
	}
	for _, r := range ended.Results {
		rec := TurnRecord{
			CallSID:    sum.CallSID,
			Turn:       r.Turn,
			Outcome:    string(r.Outcome),
			Transcript: redact.Text(r.Transcript),
			Reply:      redact.Text(r.Reply),
			AudioBytes: r.AudioBytes,
			Frames:     r.Frames,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
			rec.ReasonCode = string(errorsx.Reason(r.Err))
		}
		call.Turns = append(call.Turns, rec)
	}
	return call
}
