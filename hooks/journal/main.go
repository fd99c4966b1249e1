// Package main is a wavebuddy hook that appends every finished exchange to
// a plain text journal a parent can read later.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/wavebuddy/internal/hook"
)

type journalConfig struct {
	// Path is relative to the hook directory unless absolute.
	Path string `json:"path"`
}

func main() {
	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(hook.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}
	if req.Exchange == nil {
		writeResponse(hook.Response{Success: true})
		return
	}

	cfg := journalConfig{Path: "journal.txt"}
	if len(req.Config) > 0 {
		json.Unmarshal(req.Config, &cfg)
	}

	if err := appendEntry(cfg.Path, entry(&req)); err != nil {
		writeResponse(hook.Response{Error: err.Error()})
		return
	}
	writeResponse(hook.Response{Success: true})
}

// entry formats one exchange as a journal paragraph.
func entry(req *hook.Request) string {
	ex := req.Exchange
	ts := req.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", ts.Local().Format("2006-01-02 15:04:05"))
	if req.Gesture != "" && req.Gesture != "none" {
		fmt.Fprintf(&b, "(%s) ", strings.ReplaceAll(req.Gesture, "_", " "))
	}
	fmt.Fprintf(&b, "Child: %s\n", ex.Prompt)

	switch {
	case ex.Error != "":
		fmt.Fprintf(&b, "  No answer: %s\n", ex.Error)
	case ex.Spoken:
		fmt.Fprintf(&b, "  Buddy: %s\n", ex.Response)
	default:
		fmt.Fprintf(&b, "  Buddy (not spoken): %s\n", ex.Response)
	}
	return b.String()
}

func appendEntry(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func writeResponse(resp hook.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
