package dialogue

import (
	"time"

	"github.com/ayusman/wavebuddy/internal/gesture"
)

// State is the controller's position in an exchange.
type State int32

const (
	Idle State = iota
	Detecting
	AwaitingResponse
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Detecting:
		return "detecting"
	case AwaitingResponse:
		return "awaiting_response"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Source says where an utterance came from.
type Source string

const (
	SourceGesture Source = "gesture"
	SourceSpeech  Source = "speech"
	SourceManual  Source = "manual"
)

// Utterance is the prompt text of one exchange.
type Utterance struct {
	Source  Source
	Gesture gesture.Gesture
	Text    string
}

// Exchange is the outcome of one prompt, response and speech cycle.
type Exchange struct {
	Utterance Utterance
	Response  string
	Language  string
	// Spoken is false when the responder failed or playback errored.
	Spoken    bool
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// EventType names what an Event reports.
type EventType string

const (
	EventState      EventType = "state"
	EventGesture    EventType = "gesture"
	EventTranscript EventType = "transcript"
	EventExchange   EventType = "exchange"
	EventFallback   EventType = "fallback"
	EventDropped    EventType = "dropped"
	EventEcho       EventType = "echo"
)

// Event is delivered to subscribers. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType
	Time     time.Time
	State    State
	Gesture  gesture.Gesture
	Source   Source
	Text     string
	Exchange *Exchange
}
