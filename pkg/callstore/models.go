package callstore

import "time"

// Call is one archived phone call.
type Call struct {
	CallSID       string       `gorm:"primaryKey" json:"call_sid"`
	StreamID      string       `json:"stream_id"`
	TraceID       string       `gorm:"index" json:"trace_id"`
	FromNumber    string       `json:"from,omitempty"`
	Objective     string       `json:"objective"`
	Reason        string       `gorm:"index" json:"reason"`
	TurnCount     int          `json:"turns"`
	FramesIn      int64        `json:"frames_in"`
	FramesOut     int64        `json:"frames_out"`
	FramesDropped int64        `json:"frames_dropped"`
	StartedAt     time.Time    `gorm:"index" json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	DurationMs    int64        `json:"duration_ms"`
	Messages      []Message    `gorm:"foreignKey:CallSID" json:"messages,omitempty"`
	Turns         []TurnRecord `gorm:"foreignKey:CallSID" json:"turn_results,omitempty"`
}

// Message is one entry of a call's dialogue, seeds included.
type Message struct {
	ID      uint   `gorm:"primaryKey" json:"-"`
	CallSID string `gorm:"index" json:"call_sid"`
	Seq     int    `json:"seq"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRecord is the outcome of one pipeline turn.
type TurnRecord struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	CallSID    string `gorm:"index" json:"call_sid"`
	Turn       int    `json:"turn"`
	Outcome    string `json:"outcome"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`
	AudioBytes int    `json:"audio_bytes"`
	Frames     int    `json:"frames"`
	Error      string `json:"error,omitempty"`
	ReasonCode string `json:"reason_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
