package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/wavebuddy/internal/log"
)

// DefaultSpeakTimeout bounds a single utterance.
const DefaultSpeakTimeout = 30 * time.Second

// sayVoices maps language codes to voices shipped with macOS.
var sayVoices = map[string]string{
	"en": "Samantha",
	"es": "Monica",
	"fr": "Thomas",
	"de": "Anna",
	"it": "Alice",
	"pt": "Luciana",
	"hi": "Lekha",
	"ja": "Kyoko",
	"zh": "Tingting",
}

// CommandSynthesizer speaks by running a local TTS program such as
// espeak-ng or say, passing the text as an argument.
type CommandSynthesizer struct {
	command string
	voices  map[string]string
	timeout time.Duration
	// langAsVoice passes the language code itself as the voice when no
	// mapping exists. espeak voices are named after languages.
	langAsVoice bool
	mu          sync.Mutex
}

// NewCommandSynthesizer returns a synthesizer for command. An empty command
// picks the first TTS program found on PATH; ErrUnsupported means none was.
func NewCommandSynthesizer(command string) (*CommandSynthesizer, error) {
	if command == "" {
		command = detectCommand()
	}
	if command == "" {
		return nil, ErrUnsupported
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupported, command, err)
	}

	s := &CommandSynthesizer{
		command: command,
		voices:  map[string]string{},
		timeout: DefaultSpeakTimeout,
	}
	switch filepath.Base(command) {
	case "say":
		for k, v := range sayVoices {
			s.voices[k] = v
		}
	case "espeak", "espeak-ng":
		s.langAsVoice = true
	}
	return s, nil
}

// SetVoice maps a language code to a voice name.
func (s *CommandSynthesizer) SetVoice(lang, voice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices[strings.ToLower(lang)] = voice
}

// SetTimeout changes the per-utterance limit. Non-positive values are ignored.
func (s *CommandSynthesizer) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Voice returns the voice used for lang, or "" for the program default.
func (s *CommandSynthesizer) Voice(lang string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lang = strings.ToLower(lang)
	if v, ok := s.voices[lang]; ok {
		return v
	}
	// en-US and en_us fall back to en.
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if v, ok := s.voices[lang[:i]]; ok {
			return v
		}
	}
	if s.langAsVoice {
		return lang
	}
	return ""
}

// Speak runs the TTS program and waits for it to exit.
func (s *CommandSynthesizer) Speak(ctx context.Context, text, lang string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args []string
	if voice := s.Voice(lang); voice != "" {
		args = append(args, "-v", voice)
	}
	// A leading dash would be parsed as a flag.
	args = append(args, strings.TrimLeft(text, "- "))

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("speak timed out after %v", timeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speak failed: %w, stderr: %s", err, msg)
		}
		return fmt.Errorf("speak failed: %w", err)
	}

	log.Component("speech").Debug("utterance spoken", "lang", lang, "duration", time.Since(start))
	return nil
}

func detectCommand() string {
	candidates := []string{"espeak-ng", "espeak"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p
		}
	}
	return ""
}
