package server

import (
	"encoding/json"
	"time"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/pose"
)

type eventPayload struct {
	Type     string           `json:"type"`
	Time     time.Time        `json:"time"`
	State    string           `json:"state,omitempty"`
	Gesture  string           `json:"gesture,omitempty"`
	Source   string           `json:"source,omitempty"`
	Text     string           `json:"text,omitempty"`
	Exchange *exchangePayload `json:"exchange,omitempty"`
}

type exchangePayload struct {
	Source     string `json:"source"`
	Gesture    string `json:"gesture,omitempty"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response,omitempty"`
	Language   string `json:"language,omitempty"`
	Spoken     bool   `json:"spoken"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func toEventPayload(e dialogue.Event) *eventPayload {
	p := &eventPayload{
		Type:    string(e.Type),
		Time:    e.Time,
		Gesture: string(e.Gesture),
		Source:  string(e.Source),
		Text:    e.Text,
	}
	if e.Type == dialogue.EventState {
		p.State = e.State.String()
	}
	if ex := e.Exchange; ex != nil {
		p.Exchange = &exchangePayload{
			Source:     string(ex.Utterance.Source),
			Gesture:    string(ex.Utterance.Gesture),
			Prompt:     ex.Utterance.Text,
			Response:   ex.Response,
			Language:   ex.Language,
			Spoken:     ex.Spoken,
			DurationMs: ex.Duration.Milliseconds(),
		}
		if ex.Err != nil {
			p.Exchange.Error = ex.Err.Error()
		}
	}
	return p
}

// publishEvent forwards a controller event to every page.
func (b *Bridge) publishEvent(e dialogue.Event) {
	b.Broadcast(message{Type: msgEvent, Event: toEventPayload(e)})
}

// publishPoses sends the latest keypoints for the dashboard overlay.
// Frames without anyone in view are skipped.
func (b *Bridge) publishPoses(poses []pose.Pose) {
	if len(poses) == 0 || b.Clients() == 0 {
		return
	}
	data, err := json.Marshal(poses)
	if err != nil {
		return
	}
	b.Broadcast(message{Type: msgPoses, Poses: data})
}
