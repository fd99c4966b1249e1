package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/wavebuddy/internal/log"
	"github.com/ayusman/wavebuddy/internal/speech"
)

// Message types exchanged on /ws.
const (
	// server to browser
	msgSpeak  = "speak"
	msgCancel = "cancel"
	msgListen = "listen"
	msgMute   = "mute"
	msgEvent  = "event"
	msgPoses  = "poses"

	// browser to server
	msgSpeechEnd    = "speech_end"
	msgTranscript   = "transcript"
	msgCapabilities = "capabilities"
)

// ErrClientGone is returned by Speak when the speaking tab disconnects
// before reporting the end of playback.
var ErrClientGone = errors.New("speech client disconnected")

// speech_end errors meaning the page has no working synthesizer at all.
var unsupportedSpeechErrors = map[string]bool{
	"unsupported":           true,
	"synthesis-unavailable": true,
}

type message struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Text        string          `json:"text,omitempty"`
	Lang        string          `json:"lang,omitempty"`
	Final       bool            `json:"final,omitempty"`
	Error       string          `json:"error,omitempty"`
	Synthesis   *bool           `json:"synthesis,omitempty"`
	Recognition *bool           `json:"recognition,omitempty"`
	Event       *eventPayload   `json:"event,omitempty"`
	Poses       json.RawMessage `json:"poses,omitempty"`
}

type utterance struct {
	client *client
	done   chan error
}

// Bridge connects the dialogue controller to the browser's speech APIs over
// a websocket. It is a speech.Synthesizer and a speech.Recognizer, and it
// also fans controller events out to every connected page.
type Bridge struct {
	mu          sync.Mutex
	clients     map[*client]struct{}
	pending     map[string]utterance
	listening   bool
	closed      bool
	transcripts chan string

	logger *slog.Logger
}

// NewBridge returns a bridge with no pages connected.
func NewBridge() *Bridge {
	return &Bridge{
		clients:     make(map[*client]struct{}),
		pending:     make(map[string]utterance),
		transcripts: make(chan string, 16),
		logger:      log.Component("bridge"),
	}
}

// ServeHTTP upgrades the request and serves one page until it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(b, conn)
	if !b.register(c) {
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// Clients returns the number of connected pages.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Speak sends text to one page that can speak and waits for its speech_end.
// With no such page it returns speech.ErrUnsupported.
func (b *Bridge) Speak(ctx context.Context, text, lang string) error {
	id := uuid.NewString()
	done := make(chan error, 1)

	data, err := json.Marshal(message{Type: msgSpeak, ID: id, Text: text, Lang: lang})
	if err != nil {
		return err
	}

	b.mu.Lock()
	speaker := b.speakerLocked()
	if speaker == nil {
		b.mu.Unlock()
		return speech.ErrUnsupported
	}
	b.pending[id] = utterance{client: speaker, done: done}
	b.sendLocked(speaker, data)
	b.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, id)
		if _, ok := b.clients[speaker]; ok {
			if data, err := json.Marshal(message{Type: msgCancel, ID: id}); err == nil {
				b.sendLocked(speaker, data)
			}
		}
		b.mu.Unlock()
		return ctx.Err()
	}
}

// Start asks every page to open its microphone.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return speech.ErrUnsupported
	}
	b.listening = true
	b.broadcastTypeLocked(msgListen)
	return nil
}

// Stop asks every page to mute its microphone. Transcripts arriving while
// muted are dropped.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listening = false
	b.broadcastTypeLocked(msgMute)
	return nil
}

// Transcripts delivers final transcripts received while listening.
func (b *Bridge) Transcripts() <-chan string {
	return b.transcripts
}

// Listening reports whether the microphone is meant to be open.
func (b *Bridge) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// Broadcast sends v as JSON to every page.
func (b *Bridge) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("marshal broadcast", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.sendLocked(c, data)
	}
}

// Close disconnects every page, fails pending utterances and ends the
// transcript channel.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for c := range b.clients {
		b.dropLocked(c)
	}
	close(b.transcripts)
}

func (b *Bridge) register(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[c] = struct{}{}

	state := msgMute
	if b.listening {
		state = msgListen
	}
	if data, err := json.Marshal(message{Type: state}); err == nil {
		b.sendLocked(c, data)
	}
	b.logger.Info("page connected", "clients", len(b.clients))
	return true
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok {
		return
	}
	b.dropLocked(c)
	b.logger.Info("page disconnected", "clients", len(b.clients))
}

// dropLocked removes c and fails whatever it was speaking.
func (b *Bridge) dropLocked(c *client) {
	delete(b.clients, c)
	close(c.send)
	for id, u := range b.pending {
		if u.client == c {
			u.done <- ErrClientGone
			delete(b.pending, id)
		}
	}
}

// sendLocked queues data for c, dropping a client too slow to keep up.
func (b *Bridge) sendLocked(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		b.logger.Warn("dropping slow page")
		b.dropLocked(c)
	}
}

func (b *Bridge) broadcastTypeLocked(typ string) {
	data, err := json.Marshal(message{Type: typ})
	if err != nil {
		return
	}
	for c := range b.clients {
		b.sendLocked(c, data)
	}
}

func (b *Bridge) speakerLocked() *client {
	for c := range b.clients {
		if c.canSpeak() {
			return c
		}
	}
	return nil
}

func (b *Bridge) handle(c *client, msg message) {
	switch msg.Type {
	case msgSpeechEnd:
		b.mu.Lock()
		u, ok := b.pending[msg.ID]
		if ok {
			delete(b.pending, msg.ID)
		}
		b.mu.Unlock()
		if !ok {
			return
		}
		if unsupportedSpeechErrors[msg.Error] {
			off := false
			c.setCapabilities(&off, nil)
			u.done <- speech.ErrUnsupported
			return
		}
		if msg.Error != "" {
			u.done <- fmt.Errorf("browser speech: %s", msg.Error)
			return
		}
		u.done <- nil

	case msgTranscript:
		if !msg.Final || msg.Text == "" {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.listening || b.closed || !c.canListen() {
			return
		}
		select {
		case b.transcripts <- msg.Text:
		default:
			b.logger.Warn("transcript buffer full, dropping", "text", msg.Text)
		}

	case msgCapabilities:
		c.setCapabilities(msg.Synthesis, msg.Recognition)
		b.logger.Info("page capabilities", "synthesis", c.canSpeak(), "recognition", c.canListen())

	default:
		b.logger.Debug("unknown message type", "type", msg.Type)
	}
}
