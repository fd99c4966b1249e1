package hook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/gesture"
)

// installHook writes a hook that records its stdin to out.json in its own
// directory and returns that path.
func installHook(t *testing.T, root, name string, events ...string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	writeManifest(t, root, name, Manifest{Name: name, Executable: "run.sh", Events: events})
	dir := filepath.Join(root, name)
	script := "#!/bin/sh\ncat > out.json\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, "out.json")
}

func newTestDispatcher(t *testing.T, root string) *Dispatcher {
	t.Helper()
	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(m, NewExecutor(5*time.Second))
	t.Cleanup(d.Close)
	return d
}

func TestDispatcher_HandleEvent(t *testing.T) {
	root := t.TempDir()
	exchangeOut := installHook(t, root, "journal", "exchange")
	gestureOut := installHook(t, root, "lights", "gesture")
	d := newTestDispatcher(t, root)

	d.HandleEvent(dialogue.Event{
		Type:   dialogue.EventExchange,
		Time:   time.Now(),
		Source: dialogue.SourceGesture,
		Exchange: &dialogue.Exchange{
			Utterance: dialogue.Utterance{Source: dialogue.SourceGesture, Gesture: gesture.HandRaised, Text: "A child raised their hand."},
			Response:  "Hi there!",
			Language:  "en",
			Spoken:    true,
			Duration:  1500 * time.Millisecond,
		},
	})
	d.Wait()

	data, err := os.ReadFile(exchangeOut)
	if err != nil {
		t.Fatalf("exchange hook did not run: %v", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("hook stdin is not a request: %v", err)
	}
	if req.Event != "exchange" || req.Gesture != "hand_raised" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Exchange == nil || req.Exchange.Response != "Hi there!" || req.Exchange.DurationMs != 1500 {
		t.Errorf("unexpected exchange %+v", req.Exchange)
	}

	if _, err := os.Stat(gestureOut); !os.IsNotExist(err) {
		t.Errorf("gesture hook ran for an exchange event")
	}
}

func TestDispatcher_Closed(t *testing.T) {
	root := t.TempDir()
	out := installHook(t, root, "journal")
	d := newTestDispatcher(t, root)
	d.Close()

	d.HandleEvent(dialogue.Event{Type: dialogue.EventFallback, Text: "oops"})
	d.Wait()

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("hook ran after Close")
	}
}

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name  string
		event dialogue.Event
		check func(t *testing.T, r *Request)
	}{
		{
			name:  "state",
			event: dialogue.Event{Type: dialogue.EventState, State: dialogue.Speaking},
			check: func(t *testing.T, r *Request) {
				if r.State != "speaking" || r.Exchange != nil {
					t.Errorf("unexpected request %+v", r)
				}
			},
		},
		{
			name:  "gesture",
			event: dialogue.Event{Type: dialogue.EventGesture, Gesture: gesture.FistClosed},
			check: func(t *testing.T, r *Request) {
				if r.Gesture != "fist_closed" || r.State != "" {
					t.Errorf("unexpected request %+v", r)
				}
			},
		},
		{
			name: "failed exchange",
			event: dialogue.Event{Type: dialogue.EventExchange, Exchange: &dialogue.Exchange{
				Utterance: dialogue.Utterance{Source: dialogue.SourceSpeech, Text: "why is the sky blue"},
				Err:       errors.New("chat unavailable"),
			}},
			check: func(t *testing.T, r *Request) {
				if r.Exchange == nil || r.Exchange.Error != "chat unavailable" || r.Exchange.Spoken {
					t.Errorf("unexpected exchange %+v", r.Exchange)
				}
				if r.Exchange.Prompt != "why is the sky blue" || r.Gesture != "" {
					t.Errorf("unexpected request %+v", r)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NewRequest(tt.event))
		})
	}
}
