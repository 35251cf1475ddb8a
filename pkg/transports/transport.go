package transports

import (
	"context"

	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
)

// Transport defines a vendor-agnostic signaling boundary. Inbound call
// events arrive on Recv; Send writes media and control frames to the stream
// named by the frame's stream_id metadata.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// ContextSender is implemented by transports whose Send can block; the
// context bounds how long a frame waits for buffer space.
type ContextSender interface {
	SendContext(ctx context.Context, f frames.Frame) error
}

// StreamCloser lets the engine hang up the signaling connection of one
// stream once its session is torn down.
type StreamCloser interface {
	CloseStream(streamID string) error
}

// OutboundDialer allows transports to initiate outbound calls.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from, url string) (callSID string, err error)
}

// DialOptions carries optional outbound dial settings.
type DialOptions struct {
	SendDigits     string
	StatusCallback string
	Timeout        int
}

// OutboundDialerWithOptions extends dialing with optional parameters.
type OutboundDialerWithOptions interface {
	DialWithOptions(ctx context.Context, to, from, url string, opts DialOptions) (callSID string, err error)
}

// ReadyReporter allows transports to expose readiness metadata (e.g., webhook URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
