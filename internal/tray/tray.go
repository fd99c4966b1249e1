// Package tray provides the system tray menu for wavebuddy.
package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/gesture"
)

// Tray is the wavebuddy menu bar item.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	state       dialogue.State
	lastGesture gesture.Gesture
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuState       *systray.MenuItem
	menuLastGesture *systray.MenuItem
}

// New creates a Tray showing the given detection state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled:     enabled,
		lastGesture: gesture.None,
	}
}

// OnToggle sets the callback run when detection is switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback run when "Open Dashboard" is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback run when "Quit" is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It must be called from the main goroutine and blocks
// until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Wave Buddy")
	systray.SetTooltip("Wave Buddy gesture and voice assistant")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleLabel(t.enabled), "Toggle gesture detection")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem(stateLabel(t.state), "What Wave Buddy is doing")
	t.menuState.Disable()
	t.menuLastGesture = systray.AddMenuItem(gestureLabel(t.lastGesture), "Last detected gesture")
	t.menuLastGesture.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Wave Buddy")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// HandleEvent keeps the state and last-gesture lines current. It is
// registered as a dialogue controller subscriber.
func (t *Tray) HandleEvent(e dialogue.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case dialogue.EventState:
		t.state = e.State
		if t.menuState != nil {
			t.menuState.SetTitle(stateLabel(e.State))
		}
	case dialogue.EventGesture:
		t.lastGesture = e.Gesture
		if t.menuLastGesture != nil {
			t.menuLastGesture.SetTitle(gestureLabel(e.Gesture))
		}
	}
}

// SetEnabled shows a detection change made elsewhere, such as the
// dashboard. The toggle callback is not run.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// LastGesture returns the most recent gesture shown in the menu.
func (t *Tray) LastGesture() gesture.Gesture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

// State returns the dialogue state shown in the menu.
func (t *Tray) State() dialogue.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Detection on"
	}
	return "○ Detection off"
}

func stateLabel(s dialogue.State) string {
	switch s {
	case dialogue.AwaitingResponse:
		return "Thinking..."
	case dialogue.Speaking:
		return "Talking..."
	case dialogue.Detecting:
		return "Watching"
	default:
		return "Waiting"
	}
}

func gestureLabel(g gesture.Gesture) string {
	if g == "" || g == gesture.None {
		return "Last: none"
	}
	return "Last: " + g.String()
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}
