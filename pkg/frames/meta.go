package frames

// Metadata keys carried on frames.
const (
	MetaStreamID      = "stream_id"
	MetaCallSID       = "call_sid"
	MetaTraceID       = "trace_id"
	MetaFromNumber    = "from_number"
	MetaToNumber      = "to_number"
	MetaSource        = "source"
	MetaOldStreamID   = "old_stream_id"
	MetaEncoding      = "encoding"
	MetaSampleRate    = "sample_rate"
	MetaCallEndReason = "call_end_reason"
	MetaMarkName      = "mark_name"
	MetaTurn          = "turn"
	MetaObjective     = "objective"
)
