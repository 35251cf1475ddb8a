package turn

type State int

const (
	StateIdle State = iota
	StateListening
	StateTranscribing
	StateCompleting
	StateSynthesizing
	StateSpeaking
	StateAborted
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateCompleting:
		return "COMPLETING"
	case StateSynthesizing:
		return "SYNTHESIZING"
	case StateSpeaking:
		return "SPEAKING"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Busy reports whether a turn is in flight. An aborted turn still counts
// until it returns to IDLE.
func (s State) Busy() bool {
	return s != StateIdle
}

var validTransitions = map[State][]State{
	StateIdle:         {StateListening},
	StateListening:    {StateTranscribing, StateIdle, StateAborted},
	StateTranscribing: {StateCompleting, StateIdle, StateAborted},
	StateCompleting:   {StateSynthesizing, StateAborted},
	StateSynthesizing: {StateSpeaking, StateAborted},
	StateSpeaking:     {StateIdle, StateAborted},
	StateAborted:      {StateIdle},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
