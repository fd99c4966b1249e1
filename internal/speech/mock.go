package speech

import (
	"context"
	"sync"
	"time"
)

// Utterance is one recorded Speak call.
type Utterance struct {
	Text string
	Lang string
}

// MockSynthesizer records utterances instead of speaking them.
type MockSynthesizer struct {
	// Delay simulates playback time.
	Delay time.Duration
	// Err, when set, is returned from Speak after Delay.
	Err error

	mu     sync.Mutex
	spoken []Utterance
	hold   chan struct{}
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Hold makes Speak block until Release is called.
func (m *MockSynthesizer) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = make(chan struct{})
}

// Release unblocks every Speak waiting on Hold.
func (m *MockSynthesizer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
}

func (m *MockSynthesizer) Speak(ctx context.Context, text, lang string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, Utterance{Text: text, Lang: lang})
	hold, delay, err := m.hold, m.Delay, m.Err
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Spoken returns a copy of everything spoken so far.
func (m *MockSynthesizer) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

// MockRecognizer delivers transcripts pushed with Emit while started.
type MockRecognizer struct {
	// StartErr, when set, is returned from Start.
	StartErr error

	mu        sync.Mutex
	listening bool
	starts    int
	stops     int
	ch        chan string
}

func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{ch: make(chan string, 16)}
}

func (m *MockRecognizer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.listening = true
	return nil
}

func (m *MockRecognizer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.listening = false
	return nil
}

func (m *MockRecognizer) Transcripts() <-chan string { return m.ch }

// Emit delivers text as a final transcript. It reports false, dropping the
// text, when the recognizer is muted.
func (m *MockRecognizer) Emit(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listening {
		return false
	}
	m.ch <- text
	return true
}

// Listening reports whether the microphone is live.
func (m *MockRecognizer) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// Counts returns how many times Start and Stop were called.
func (m *MockRecognizer) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}
