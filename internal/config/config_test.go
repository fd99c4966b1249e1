package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "CHAT_MAX_TOKENS", "MIC_RESUME_DELAY", "POSE_MODE", "AZURE_OPENAI_API_VERSION"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Chat.MaxTokens != 60 {
		t.Fatalf("expected default max tokens 60, got %d", c.Chat.MaxTokens)
	}
	if c.Chat.AuthHeader != "api-key" {
		t.Fatalf("expected api-key auth header, got %q", c.Chat.AuthHeader)
	}
	if c.Speech.MicResumeDelay != 4*time.Second {
		t.Fatalf("expected 4s mic resume delay, got %v", c.Speech.MicResumeDelay)
	}
	if c.Pose.Mode != "body" {
		t.Fatalf("expected body pose mode, got %q", c.Pose.Mode)
	}
	if c.Chat.APIVersion == "" {
		t.Fatal("expected a default API version")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AZURE_OPENAI_API_KEY", "secret")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com/")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-kids")
	t.Setenv("CHAT_MAX_TOKENS", "100")
	t.Setenv("MIC_RESUME_DELAY", "1500ms")
	t.Setenv("CAMERA_ID", "2")

	c := Load()

	if c.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", c.Server.Port)
	}
	if c.Chat.Endpoint != "https://example.openai.azure.com" {
		t.Errorf("endpoint trailing slash not trimmed: %q", c.Chat.Endpoint)
	}
	if c.Chat.Deployment != "gpt-kids" {
		t.Errorf("deployment = %q", c.Chat.Deployment)
	}
	if c.Chat.MaxTokens != 100 {
		t.Errorf("max tokens = %d, want 100", c.Chat.MaxTokens)
	}
	if c.Speech.MicResumeDelay != 1500*time.Millisecond {
		t.Errorf("mic resume delay = %v", c.Speech.MicResumeDelay)
	}
	if c.Camera.DeviceID != 2 {
		t.Errorf("camera id = %d, want 2", c.Camera.DeviceID)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadDurations(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"bare number is milliseconds", "4000", 4 * time.Second},
		{"zero", "0", 0},
		{"unit suffix", "1500ms", 1500 * time.Millisecond},
		{"seconds", "2s", 2 * time.Second},
		{"unset uses default", "", 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MIC_RESUME_DELAY", tt.value)
			t.Setenv("CHAT_TIMEOUT", tt.value)
			t.Setenv("HOOK_TIMEOUT", tt.value)

			c := Load()
			if c.Speech.MicResumeDelay != tt.want {
				t.Errorf("mic resume delay = %v, want %v", c.Speech.MicResumeDelay, tt.want)
			}
			if tt.value != "" && (c.Chat.Timeout != tt.want || c.Hooks.Timeout != tt.want) {
				t.Errorf("chat timeout = %v, hook timeout = %v, want %v", c.Chat.Timeout, c.Hooks.Timeout, tt.want)
			}
		})
	}
}

func TestValidate_ListsMissingSecrets(t *testing.T) {
	var c Config
	c.Chat.Endpoint = "https://example"

	err := c.Validate()
	if !errors.Is(err, ErrMissingChatConfig) {
		t.Fatalf("expected ErrMissingChatConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "AZURE_OPENAI_API_KEY") || !strings.Contains(err.Error(), "AZURE_OPENAI_DEPLOYMENT") {
		t.Errorf("error should name missing variables: %v", err)
	}
	if strings.Contains(err.Error(), "AZURE_OPENAI_ENDPOINT") {
		t.Errorf("endpoint is set and should not be reported: %v", err)
	}
}

func TestLoadDotenv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadDotenv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
			t.Errorf("LoadDotenv() = %v, want nil", err)
		}
	})

	t.Run("sets variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("WAVEBUDDY_TEST_VALUE=hello\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("WAVEBUDDY_TEST_VALUE", "")
		os.Unsetenv("WAVEBUDDY_TEST_VALUE")

		if err := LoadDotenv(path); err != nil {
			t.Fatalf("LoadDotenv() = %v", err)
		}
		if got := os.Getenv("WAVEBUDDY_TEST_VALUE"); got != "hello" {
			t.Errorf("WAVEBUDDY_TEST_VALUE = %q, want hello", got)
		}
	})
}

func TestDatabasePath(t *testing.T) {
	c := Config{DataDir: "/tmp/wb"}
	if got := c.DatabasePath(); got != filepath.Join("/tmp/wb", "wavebuddy.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
}

func TestHooksDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"default under data dir", "", filepath.Join("/tmp/wb", "hooks")},
		{"explicit", "/opt/hooks", "/opt/hooks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{DataDir: "/tmp/wb"}
			c.Hooks.Dir = tt.dir
			if got := c.HooksDir(); got != tt.want {
				t.Errorf("HooksDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadHooks(t *testing.T) {
	t.Setenv("HOOKS_DIR", "/srv/wavebuddy-hooks")
	t.Setenv("HOOK_TIMEOUT", "2s")

	c := Load()
	if c.Hooks.Dir != "/srv/wavebuddy-hooks" {
		t.Errorf("Hooks.Dir = %q", c.Hooks.Dir)
	}
	if c.Hooks.Timeout != 2*time.Second {
		t.Errorf("Hooks.Timeout = %v, want 2s", c.Hooks.Timeout)
	}
}

func TestListenAddr(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	os.Unsetenv("LISTEN_ADDR")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	c := Load()
	if got := c.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("default ListenAddr() = %q, want loopback only", got)
	}

	tests := []struct {
		host    string
		addr    string
		browser string
	}{
		{"127.0.0.1", "127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"0.0.0.0", "0.0.0.0:8080", "http://localhost:8080"},
		{"", ":8080", "http://localhost:8080"},
		{"::1", "[::1]:8080", "http://[::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			var c Config
			c.Server.Host = tt.host
			c.Server.Port = "8080"
			if got := c.ListenAddr(); got != tt.addr {
				t.Errorf("ListenAddr() = %q, want %q", got, tt.addr)
			}
			if got := c.DashboardURL(); got != tt.browser {
				t.Errorf("DashboardURL() = %q, want %q", got, tt.browser)
			}
		})
	}
}

func TestLoadGestureThresholds(t *testing.T) {
	for _, k := range []string{"GESTURE_TILT_THRESHOLD", "GESTURE_MIN_CONFIDENCE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	if c := Load(); c.Gesture.TiltThreshold != 20 || c.Gesture.MinConfidence != 0 {
		t.Errorf("defaults = %+v", c.Gesture)
	}

	t.Setenv("GESTURE_TILT_THRESHOLD", "35")
	t.Setenv("GESTURE_MIN_CONFIDENCE", "0.5")
	c := Load()
	if c.Gesture.TiltThreshold != 35 || c.Gesture.MinConfidence != 0.5 {
		t.Errorf("Gesture = %+v", c.Gesture)
	}
}
