// Package config loads wavebuddy settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingChatConfig is returned by Validate when a chat secret is not set.
var ErrMissingChatConfig = errors.New("chat endpoint is not configured")

// Config holds every externally supplied setting.
type Config struct {
	Server struct {
		Host      string
		Port      string
		LogLevel  string
		StaticDir string
	}
	Chat struct {
		APIKey     string
		Endpoint   string
		Deployment string
		APIVersion string
		AuthHeader string
		MaxTokens  int
		Timeout    time.Duration
		MaxRetries int
	}
	Camera struct {
		DeviceID        int
		MotionThreshold float64
	}
	Pose struct {
		Mode          string
		ServiceScript string
		Python        string
	}
	Gesture struct {
		TiltThreshold float64
		MinConfidence float64
	}
	Speech struct {
		Language       string
		TTSCommand     string
		MicResumeDelay time.Duration
		DetectLanguage bool
	}
	Hooks struct {
		Dir     string
		Timeout time.Duration
	}
	DataDir string
	Tray    bool
}

// LoadDotenv reads a .env file into the process environment.
// A missing file is not an error; existing variables are not overwritten.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from environment variables and defaults.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("chat.api_version", "2024-02-15-preview")
	v.SetDefault("chat.auth_header", "api-key")
	v.SetDefault("chat.max_tokens", 60)
	v.SetDefault("chat.timeout", "20s")
	v.SetDefault("chat.max_retries", 1)

	v.SetDefault("camera.device_id", 0)
	v.SetDefault("camera.motion_threshold", 1.0)

	v.SetDefault("pose.mode", "body")
	v.SetDefault("pose.python", "")

	v.SetDefault("gesture.tilt_threshold", 20.0)
	v.SetDefault("gesture.min_confidence", 0.0)

	v.SetDefault("speech.language", "en-US")
	v.SetDefault("speech.mic_resume_delay", "4s")
	v.SetDefault("speech.detect_language", false)

	v.SetDefault("hooks.timeout", "5s")

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("tray", false)

	v.BindEnv("server.host", "LISTEN_ADDR")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.static_dir", "STATIC_DIR")

	v.BindEnv("chat.api_key", "AZURE_OPENAI_API_KEY")
	v.BindEnv("chat.endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("chat.deployment", "AZURE_OPENAI_DEPLOYMENT")
	v.BindEnv("chat.api_version", "AZURE_OPENAI_API_VERSION")
	v.BindEnv("chat.auth_header", "CHAT_AUTH_HEADER")
	v.BindEnv("chat.max_tokens", "CHAT_MAX_TOKENS")
	v.BindEnv("chat.timeout", "CHAT_TIMEOUT")
	v.BindEnv("chat.max_retries", "CHAT_MAX_RETRIES")

	v.BindEnv("camera.device_id", "CAMERA_ID")
	v.BindEnv("camera.motion_threshold", "MOTION_THRESHOLD")

	v.BindEnv("pose.mode", "POSE_MODE")
	v.BindEnv("pose.service_script", "POSE_SERVICE_SCRIPT")
	v.BindEnv("pose.python", "POSE_PYTHON")

	v.BindEnv("gesture.tilt_threshold", "GESTURE_TILT_THRESHOLD")
	v.BindEnv("gesture.min_confidence", "GESTURE_MIN_CONFIDENCE")

	v.BindEnv("speech.language", "SPEECH_LANG")
	v.BindEnv("speech.tts_command", "TTS_COMMAND")
	v.BindEnv("speech.mic_resume_delay", "MIC_RESUME_DELAY")
	v.BindEnv("speech.detect_language", "SPEECH_DETECT_LANGUAGE")

	v.BindEnv("hooks.dir", "HOOKS_DIR")
	v.BindEnv("hooks.timeout", "HOOK_TIMEOUT")

	v.BindEnv("data_dir", "DATA_DIR")
	v.BindEnv("tray", "TRAY")

	var c Config
	c.Server.Host = v.GetString("server.host")
	c.Server.Port = fmt.Sprint(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.StaticDir = v.GetString("server.static_dir")

	c.Chat.APIKey = v.GetString("chat.api_key")
	c.Chat.Endpoint = strings.TrimSuffix(v.GetString("chat.endpoint"), "/")
	c.Chat.Deployment = v.GetString("chat.deployment")
	c.Chat.APIVersion = v.GetString("chat.api_version")
	c.Chat.AuthHeader = v.GetString("chat.auth_header")
	c.Chat.MaxTokens = v.GetInt("chat.max_tokens")
	c.Chat.Timeout = durationMS(v, "chat.timeout")
	c.Chat.MaxRetries = v.GetInt("chat.max_retries")

	c.Camera.DeviceID = v.GetInt("camera.device_id")
	c.Camera.MotionThreshold = v.GetFloat64("camera.motion_threshold")

	c.Pose.Mode = v.GetString("pose.mode")
	c.Pose.ServiceScript = v.GetString("pose.service_script")
	c.Pose.Python = v.GetString("pose.python")

	c.Gesture.TiltThreshold = v.GetFloat64("gesture.tilt_threshold")
	c.Gesture.MinConfidence = v.GetFloat64("gesture.min_confidence")

	c.Speech.Language = v.GetString("speech.language")
	c.Speech.TTSCommand = v.GetString("speech.tts_command")
	c.Speech.MicResumeDelay = durationMS(v, "speech.mic_resume_delay")
	c.Speech.DetectLanguage = v.GetBool("speech.detect_language")

	c.Hooks.Dir = v.GetString("hooks.dir")
	c.Hooks.Timeout = durationMS(v, "hooks.timeout")

	c.DataDir = v.GetString("data_dir")
	c.Tray = v.GetBool("tray")

	return c
}

// Validate reports missing chat settings. The chat secrets are the only
// values without a usable default.
func (c Config) Validate() error {
	var missing []string
	if c.Chat.APIKey == "" {
		missing = append(missing, "AZURE_OPENAI_API_KEY")
	}
	if c.Chat.Endpoint == "" {
		missing = append(missing, "AZURE_OPENAI_ENDPOINT")
	}
	if c.Chat.Deployment == "" {
		missing = append(missing, "AZURE_OPENAI_DEPLOYMENT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingChatConfig, strings.Join(missing, ", "))
	}
	return nil
}

// DatabasePath returns the sqlite file inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "wavebuddy.db")
}

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// DashboardURL returns the URL a local browser should open.
func (c Config) DashboardURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, c.Server.Port)
}

// HooksDir returns the hook directory, defaulting to DataDir/hooks.
func (c Config) HooksDir() string {
	if c.Hooks.Dir != "" {
		return c.Hooks.Dir
	}
	return filepath.Join(c.DataDir, "hooks")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wavebuddy"
	}
	return filepath.Join(home, ".wavebuddy")
}

// durationMS reads a duration setting. A bare number such as
// MIC_RESUME_DELAY=4000 is milliseconds; anything else goes through
// time.ParseDuration ("4s", "1500ms").
func durationMS(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return v.GetDuration(key)
}
