// Package hook runs external programs when the assistant does something
// worth telling the outside world about, such as answering a child or
// failing to reach the chat service.
package hook

import (
	"encoding/json"
	"time"
)

// Manifest describes a hook. It lives in hook.json next to the executable.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Events lists the dialogue event types the hook wants, e.g. "exchange".
	// Empty means every event.
	Events []string        `json:"events"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Wants reports whether the hook subscribed to event type typ.
func (m Manifest) Wants(typ string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == typ {
			return true
		}
	}
	return false
}

// Request is written to the hook's stdin.
type Request struct {
	Event    string          `json:"event"`
	Time     time.Time       `json:"time"`
	Gesture  string          `json:"gesture,omitempty"`
	Source   string          `json:"source,omitempty"`
	Text     string          `json:"text,omitempty"`
	State    string          `json:"state,omitempty"`
	Exchange *Exchange       `json:"exchange,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Exchange is the finished exchange carried by "exchange" events.
type Exchange struct {
	Prompt     string `json:"prompt"`
	Response   string `json:"response,omitempty"`
	Language   string `json:"language,omitempty"`
	Spoken     bool   `json:"spoken"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
