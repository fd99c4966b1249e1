// Package speech defines the speech output and input services used by the
// dialogue controller, plus a local text-to-speech implementation.
package speech

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when the host offers no speech service of the
// requested kind. Gesture-only mode keeps working without one.
var ErrUnsupported = errors.New("speech service not supported on this host")

// Synthesizer speaks text aloud. Speak returns once playback has finished,
// so its return is the completion signal.
type Synthesizer interface {
	Speak(ctx context.Context, text, lang string) error
}

// Recognizer turns the microphone into final transcripts. Interim results
// are never delivered. Stop mutes the microphone; Start resumes it.
type Recognizer interface {
	Start() error
	Stop() error
	Transcripts() <-chan string
}

// Unsupported is a Recognizer for hosts without speech recognition. Start
// fails with ErrUnsupported and no transcript ever arrives.
type Unsupported struct{}

func (Unsupported) Start() error               { return ErrUnsupported }
func (Unsupported) Stop() error                { return nil }
func (Unsupported) Transcripts() <-chan string { return nil }
