// Package frames defines the units exchanged between a transport and the
// call engine: signaling events coming in, media and control going out.
package frames

type Kind string

const (
	KindMedia   Kind = "media"
	KindControl Kind = "control"
	KindSystem  Kind = "system"
)

// System frame names.
const (
	SystemCallStart = "call_start"
	SystemCallEnd   = "call_end"
)

type ControlCode string

const (
	// ControlClear asks the far end to drop queued playback.
	ControlClear ControlCode = "clear"
	// ControlMark asks the far end to acknowledge once playback reaches it.
	ControlMark ControlCode = "mark"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// MediaFrame carries one wire-encoded (base64) audio payload. Decoding is
// left to the codec so malformed payloads surface as session errors.
type MediaFrame struct {
	pts     int64
	payload string
	meta    map[string]string
}

func NewMediaFrame(streamID string, pts int64, payload string, meta map[string]string) MediaFrame {
	return MediaFrame{
		pts:     pts,
		payload: payload,
		meta:    mergeMeta(streamID, meta),
	}
}

func (m MediaFrame) Kind() Kind              { return KindMedia }
func (m MediaFrame) PTS() int64              { return m.pts }
func (m MediaFrame) Meta() map[string]string { return cloneMeta(m.meta) }
func (m MediaFrame) Payload() string         { return m.payload }

// StreamID and CallSID avoid cloning the metadata on the hot media path.
func (m MediaFrame) StreamID() string { return m.meta[MetaStreamID] }
func (m MediaFrame) CallSID() string  { return m.meta[MetaCallSID] }

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(streamID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(streamID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(streamID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		if k == MetaStreamID && streamID != "" {
			continue
		}
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
