// Package dialogue runs the assistant's exchanges: it turns gestures and
// transcripts into prompts, asks the chat responder, speaks the reply and
// keeps the microphone muted while the assistant talks.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/wavebuddy/internal/chat"
	"github.com/ayusman/wavebuddy/internal/gesture"
	"github.com/ayusman/wavebuddy/internal/log"
	"github.com/ayusman/wavebuddy/internal/pose"
	"github.com/ayusman/wavebuddy/internal/speech"
)

var (
	// ErrBusy is returned when a trigger arrives while an exchange is in
	// flight. The trigger is dropped.
	ErrBusy = errors.New("dialogue: exchange already in progress")

	// ErrSelfEcho is returned when a transcript repeats the assistant's last reply.
	ErrSelfEcho = errors.New("dialogue: transcript echoes last response")

	// ErrEmptyUtterance is returned for blank prompts.
	ErrEmptyUtterance = errors.New("dialogue: empty utterance")
)

// Controller defaults.
const (
	DefaultMicResumeDelay  = 4 * time.Second
	DefaultExchangeTimeout = 30 * time.Second
	DefaultLanguage        = "en"
	DefaultFallback        = "Oops, I couldn't think of an answer just now. Let's try again!"
)

// PoseSource hands the controller the poses seen since the last tick.
type PoseSource interface {
	TakePoses() []pose.Pose
}

// Option configures a Controller.
type Option func(*Controller)

// WithPersona replaces the system persona sent with every prompt.
func WithPersona(p string) Option {
	return func(c *Controller) { c.persona = p }
}

// WithMaxTokens caps reply length. Zero leaves it to the responder.
func WithMaxTokens(n int) Option {
	return func(c *Controller) { c.maxTokens = n }
}

// WithMicResumeDelay sets how long the microphone stays muted after the
// assistant finishes speaking. Zero resumes immediately.
func WithMicResumeDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.micResumeDelay = d
		}
	}
}

// WithExchangeTimeout bounds one exchange from prompt to end of speech.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.exchangeTimeout = d
		}
	}
}

// WithLanguage sets the voice language used when detection is off or fails.
func WithLanguage(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithLanguageDetection asks the responder for the reply's language before speaking.
func WithLanguageDetection(on bool) Option {
	return func(c *Controller) { c.detectLanguage = on }
}

// WithClassifier replaces the default gesture thresholds. nil is ignored.
func WithClassifier(cl *gesture.Classifier) Option {
	return func(c *Controller) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// WithFallback sets the message shown when the responder fails.
func WithFallback(msg string) Option {
	return func(c *Controller) { c.fallback = msg }
}

// Controller owns the busy flag. At most one exchange runs at a time and
// triggers arriving meanwhile are dropped, never queued.
type Controller struct {
	responder  chat.Responder
	synth      speech.Synthesizer
	recognizer speech.Recognizer
	classifier *gesture.Classifier

	persona         string
	maxTokens       int
	micResumeDelay  time.Duration
	exchangeTimeout time.Duration
	language        string
	detectLanguage  bool
	fallback        string

	busy          atomic.Bool
	dropReported  atomic.Bool
	pendingResume atomic.Bool
	wg            sync.WaitGroup

	mu           sync.Mutex
	state        State
	lastResponse string
	listening    bool
	resumeTimer  *time.Timer
	subscribers  []func(Event)

	logger *slog.Logger
}

// NewController wires a controller. recognizer may be nil for gesture-only use.
func NewController(responder chat.Responder, synth speech.Synthesizer, recognizer speech.Recognizer, opts ...Option) *Controller {
	c := &Controller{
		responder:       responder,
		synth:           synth,
		recognizer:      recognizer,
		classifier:      gesture.NewClassifier(),
		persona:         chat.DefaultPersona,
		maxTokens:       chat.DefaultMaxTokens,
		micResumeDelay:  DefaultMicResumeDelay,
		exchangeTimeout: DefaultExchangeTimeout,
		language:        DefaultLanguage,
		fallback:        DefaultFallback,
		logger:          log.Component("dialogue"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for every event. fn runs on the goroutine that
// produced the event and must not block.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether an exchange is in flight.
func (c *Controller) Busy() bool { return c.busy.Load() }

// LastResponse returns the most recent reply handed to the synthesizer.
func (c *Controller) LastResponse() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResponse
}

// Listening reports whether the recognizer is currently live.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// StartListening opens the recognizer. speech.ErrUnsupported leaves the
// controller in gesture-only mode.
func (c *Controller) StartListening() error {
	if c.recognizer == nil {
		return speech.ErrUnsupported
	}
	if err := c.recognizer.Start(); err != nil {
		if errors.Is(err, speech.ErrUnsupported) {
			c.logger.Warn("speech recognition unavailable, continuing with gestures only")
		}
		return err
	}
	c.mu.Lock()
	c.listening = true
	c.mu.Unlock()
	return nil
}

// HandlePose classifies p and starts an exchange for any gesture found.
// It returns the gesture and ErrBusy when the trigger was dropped.
func (c *Controller) HandlePose(ctx context.Context, p *pose.Pose) (gesture.Gesture, error) {
	g := c.classifier.Classify(p)
	if g == gesture.None {
		return g, nil
	}

	u := Utterance{Source: SourceGesture, Gesture: g, Text: gesture.Prompt(g)}
	// A pose held through a reply is seen again on every tick.
	if c.busy.Load() {
		c.drop(u)
		return g, ErrBusy
	}

	metricGestures.WithLabelValues(string(g)).Inc()
	c.publish(Event{Type: EventGesture, Gesture: g, Source: SourceGesture})

	err := c.Begin(ctx, u)
	return g, err
}

// HandleTranscript forwards a final transcript as a prompt. Blank text is
// ignored and text equal to the last reply, ignoring case, is discarded.
func (c *Controller) HandleTranscript(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if last := c.LastResponse(); last != "" && strings.EqualFold(text, strings.TrimSpace(last)) {
		metricEcho.Inc()
		c.logger.Debug("discarding self echo", "text", text)
		c.publish(Event{Type: EventEcho, Source: SourceSpeech, Text: text})
		return ErrSelfEcho
	}

	c.publish(Event{Type: EventTranscript, Source: SourceSpeech, Text: text})
	return c.Begin(ctx, Utterance{Source: SourceSpeech, Text: text})
}

// Begin claims the busy flag and runs the exchange in the background.
func (c *Controller) Begin(ctx context.Context, u Utterance) error {
	if err := c.acquire(u); err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, u)
	}()
	return nil
}

// Ask runs an exchange and waits for it to finish.
func (c *Controller) Ask(ctx context.Context, u Utterance) (*Exchange, error) {
	if err := c.acquire(u); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	defer c.wg.Done()

	ex := c.run(ctx, u)
	return ex, ex.Err
}

// Wait blocks until no exchange is running.
func (c *Controller) Wait() { c.wg.Wait() }

// Run drives detection from ticks until ctx ends. Each tick takes the
// pending poses from source; transcripts are handled as they arrive.
func (c *Controller) Run(ctx context.Context, ticks <-chan time.Time, source PoseSource) error {
	var transcripts <-chan string
	if c.recognizer != nil {
		transcripts = c.recognizer.Transcripts()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			c.tick(ctx, source)

		case text, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			if err := c.HandleTranscript(ctx, text); err != nil && !errors.Is(err, ErrSelfEcho) && !errors.Is(err, ErrBusy) {
				c.logger.Warn("transcript not handled", "error", err)
			}
		}
	}
}

// Close stops a pending microphone resume and waits for the running exchange.
func (c *Controller) Close() {
	c.wg.Wait()
	c.mu.Lock()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	c.mu.Unlock()
}

func (c *Controller) tick(ctx context.Context, source PoseSource) {
	if source == nil {
		return
	}
	poses := source.TakePoses()
	if len(poses) == 0 {
		return
	}

	c.mu.Lock()
	if c.state == Idle {
		c.state = Detecting
	}
	c.mu.Unlock()

	for i := range poses {
		g, err := c.HandlePose(ctx, &poses[i])
		if g != gesture.None || err != nil {
			break
		}
	}
	c.mu.Lock()
	if c.state == Detecting {
		c.state = Idle
	}
	c.mu.Unlock()
}

func (c *Controller) acquire(u Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyUtterance
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.drop(u)
		return ErrBusy
	}
	c.setState(AwaitingResponse)
	return nil
}

// drop counts a trigger lost to the running exchange. Only the first one
// per exchange is published.
func (c *Controller) drop(u Utterance) {
	metricDropped.WithLabelValues(string(u.Source)).Inc()
	if !c.dropReported.CompareAndSwap(false, true) {
		return
	}
	c.publish(Event{Type: EventDropped, Source: u.Source, Gesture: u.Gesture, Text: u.Text})
}

// run performs one exchange. The busy flag is released on every return path.
func (c *Controller) run(parent context.Context, u Utterance) *Exchange {
	ex := &Exchange{Utterance: u, StartedAt: time.Now(), Language: c.language}
	defer func() {
		ex.Duration = time.Since(ex.StartedAt)
		c.setState(Idle)
		c.scheduleResume()
		c.dropReported.Store(false)
		c.busy.Store(false)
		c.publish(Event{Type: EventExchange, Source: u.Source, Gesture: u.Gesture, Exchange: ex})
	}()

	ctx, cancel := context.WithTimeout(parent, c.exchangeTimeout)
	defer cancel()

	start := time.Now()
	reply, err := c.responder.Respond(ctx, u.Text, c.persona, c.maxTokens)
	metricChatLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		ex.Err = fmt.Errorf("respond: %w", err)
		metricExchanges.WithLabelValues(string(u.Source), "chat_error").Inc()
		c.logger.Error("chat request failed", "source", u.Source, "error", err)
		c.publish(Event{Type: EventFallback, Source: u.Source, Text: c.fallback})
		return ex
	}
	ex.Response = reply

	c.mute()

	if c.detectLanguage {
		if lang, err := chat.DetectLanguage(ctx, c.responder, reply); err == nil {
			ex.Language = lang
		} else {
			c.logger.Debug("language detection failed, using default", "error", err)
		}
	}

	c.mu.Lock()
	c.lastResponse = reply
	c.mu.Unlock()

	c.setState(Speaking)
	start = time.Now()
	err = c.synth.Speak(ctx, reply, ex.Language)
	metricSpeakDuration.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		ex.Err = fmt.Errorf("speak: %w", err)
		metricExchanges.WithLabelValues(string(u.Source), "speech_error").Inc()
		c.logger.Error("speech failed", "error", err)
		return ex
	}

	ex.Spoken = true
	metricExchanges.WithLabelValues(string(u.Source), "ok").Inc()
	c.logger.Info("exchange complete", "source", u.Source, "gesture", u.Gesture, "lang", ex.Language)
	return ex
}

// mute stops the recognizer for the duration of speech and cancels any
// resume still pending from an earlier exchange.
func (c *Controller) mute() {
	c.mu.Lock()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	listening := c.listening
	c.listening = false
	c.mu.Unlock()

	if !listening {
		return
	}
	c.pendingResume.Store(true)
	if err := c.recognizer.Stop(); err != nil {
		c.logger.Warn("failed to mute recognizer", "error", err)
	}
}

func (c *Controller) scheduleResume() {
	if !c.pendingResume.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	if c.micResumeDelay == 0 {
		c.resumeLocked()
		return
	}
	c.resumeTimer = time.AfterFunc(c.micResumeDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.resumeTimer = nil
		// A newer exchange may have muted again.
		if c.state == AwaitingResponse || c.state == Speaking {
			return
		}
		c.resumeLocked()
	})
}

func (c *Controller) resumeLocked() {
	if !c.pendingResume.CompareAndSwap(true, false) {
		return
	}
	if err := c.recognizer.Start(); err != nil {
		c.logger.Warn("failed to resume recognizer", "error", err)
		return
	}
	c.listening = true
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev == s {
		return
	}
	metricStateTransitions.WithLabelValues(prev.String(), s.String()).Inc()
	c.publish(Event{Type: EventState, State: s})
}

func (c *Controller) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	c.mu.Lock()
	subs := append([]func(Event)(nil), c.subscribers...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
