// Package main is a wavebuddy hook that shows a desktop notification when
// the assistant could not answer or a gesture arrived while it was busy.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ayusman/wavebuddy/internal/hook"
)

// notifyConfig is the "config" object from hook.json.
type notifyConfig struct {
	Title string `json:"title"`
}

func main() {
	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(hook.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	cfg := notifyConfig{Title: "Wave Buddy"}
	if len(req.Config) > 0 {
		json.Unmarshal(req.Config, &cfg)
	}

	body, ok := message(&req)
	if !ok {
		writeResponse(hook.Response{Success: true})
		return
	}

	name, args := notifyCommand(runtime.GOOS, cfg.Title, body)
	if out, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		writeResponse(hook.Response{Error: fmt.Sprintf("%s: %v: %s", name, err, out)})
		return
	}
	writeResponse(hook.Response{Success: true})
}

// message returns the notification text for req, or false when the event
// is not worth interrupting anyone for.
func message(req *hook.Request) (string, bool) {
	switch req.Event {
	case "fallback":
		return "Couldn't answer: " + req.Text, true
	case "dropped":
		if req.Gesture != "" {
			return fmt.Sprintf("Missed %s while busy", strings.ReplaceAll(req.Gesture, "_", " ")), true
		}
		return "Missed a question while busy", true
	case "exchange":
		if req.Exchange != nil && req.Exchange.Error != "" {
			return "Exchange failed: " + req.Exchange.Error, true
		}
	}
	return "", false
}

func notifyCommand(goos, title, body string) (string, []string) {
	if goos == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return "osascript", []string{"-e", script}
	}
	return "notify-send", []string{title, body}
}

func writeResponse(resp hook.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
