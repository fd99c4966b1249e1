package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/ayusman/wavebuddy/internal/app"
	"github.com/ayusman/wavebuddy/internal/chat"
	"github.com/ayusman/wavebuddy/internal/config"
	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/gesture"
	"github.com/ayusman/wavebuddy/internal/hook"
	"github.com/ayusman/wavebuddy/internal/log"
	"github.com/ayusman/wavebuddy/internal/pose"
	"github.com/ayusman/wavebuddy/internal/server"
	"github.com/ayusman/wavebuddy/internal/speech"
	"github.com/ayusman/wavebuddy/internal/store"
	"github.com/ayusman/wavebuddy/internal/tray"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Watch the camera, listen, and answer out loud",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "HTTP port; overrides PORT",
			},
			&cli.BoolFlag{
				Name:  "tray",
				Usage: "Show the system tray menu; overrides TRAY",
			},
			&cli.StringFlag{
				Name:  "web",
				Usage: "Directory with the dashboard files; overrides STATIC_DIR",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	if p := cmd.String("port"); p != "" {
		cfg.Server.Port = p
	}
	if cmd.IsSet("tray") {
		cfg.Tray = cmd.Bool("tray")
	}
	if w := cmd.String("web"); w != "" {
		cfg.Server.StaticDir = w
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.Component("serve")

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client, err := newChatClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	bridge := server.NewBridge()
	synth := speech.Chain{bridge}
	if local, err := speech.NewCommandSynthesizer(cfg.Speech.TTSCommand); err == nil {
		synth = append(synth, local)
	} else {
		logger.Warn("no local text-to-speech, replies are spoken only by the dashboard", "error", err)
	}

	classifier := gesture.NewClassifier()
	classifier.TiltThreshold = cfg.Gesture.TiltThreshold
	classifier.MinConfidence = cfg.Gesture.MinConfidence

	controller := dialogue.NewController(client, synth, bridge,
		dialogue.WithClassifier(classifier),
		dialogue.WithMaxTokens(cfg.Chat.MaxTokens),
		dialogue.WithLanguage(cfg.Speech.Language),
		dialogue.WithLanguageDetection(cfg.Speech.DetectLanguage),
		dialogue.WithMicResumeDelay(cfg.Speech.MicResumeDelay),
	)

	hooks := hook.NewManager(cfg.HooksDir())
	if err := hooks.Discover(); err != nil {
		logger.Warn("failed to load hooks", "dir", hooks.Dir(), "error", err)
	} else if n := len(hooks.List()); n > 0 {
		logger.Info("hooks loaded", "dir", hooks.Dir(), "count", n)
	}
	dispatcher := hook.NewDispatcher(hooks, hook.NewExecutor(cfg.Hooks.Timeout))
	defer dispatcher.Close()
	controller.Subscribe(dispatcher.HandleEvent)

	poseCfg := pose.DefaultConfig()
	poseCfg.Mode = pose.Kind(cfg.Pose.Mode)
	poseCfg.ScriptPath = cfg.Pose.ServiceScript
	poseCfg.Python = cfg.Pose.Python

	a := app.New(app.Config{
		Controller:   controller,
		Store:        st,
		CameraID:     cfg.Camera.DeviceID,
		Pose:         poseCfg,
		MotionThresh: cfg.Camera.MotionThreshold,
	})

	srv := server.New(server.Config{
		StaticDir:  findWebDir(cfg.Server.StaticDir),
		Store:      st,
		Pipeline:   a,
		Controller: controller,
		Bridge:     bridge,
	})

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer a.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx, cfg.ListenAddr()) }()

	if cfg.Tray {
		runTray(ctx, cancel, a, controller, cfg.DashboardURL())
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return <-errc
	case err := <-errc:
		return err
	}
}

// runTray blocks on the tray menu until Quit or ctx ends.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App, controller *dialogue.Controller, url string) {
	logger := log.Component("tray")

	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnDashboard(func() {
		if err := tray.OpenBrowser(url); err != nil {
			logger.Warn("failed to open dashboard", "error", err)
		}
	})
	t.OnQuit(cancel)
	a.OnEnabledChange(t.SetEnabled)
	controller.Subscribe(t.HandleEvent)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func newChatClient(cfg config.Config) (*chat.Client, error) {
	client, err := chat.NewClient(
		chat.WithEndpoint(cfg.Chat.Endpoint),
		chat.WithDeployment(cfg.Chat.Deployment),
		chat.WithAPIKey(cfg.Chat.APIKey),
		chat.WithAPIVersion(cfg.Chat.APIVersion),
		chat.WithAuthHeader(cfg.Chat.AuthHeader),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
		chat.WithTimeout(cfg.Chat.Timeout),
		chat.WithMaxRetries(cfg.Chat.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}
	return client, nil
}

// chatError adds a configuration hint to API errors caused by a bad setting.
func chatError(err error) error {
	var apiErr *chat.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.IsUnauthorized():
		return fmt.Errorf("%w (check AZURE_OPENAI_API_KEY and CHAT_AUTH_HEADER)", err)
	case apiErr.IsNotFound():
		return fmt.Errorf("%w (check AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT)", err)
	}
	return err
}

// findWebDir returns dir when set, else the first "web" directory found
// near the working directory, the executable or ~/.wavebuddy.
func findWebDir(dir string) string {
	candidates := []string{"web", "../web", "../../web"}
	if dir != "" {
		candidates = []string{dir}
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "web"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".wavebuddy", "web"))
	}

	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

var errUsage = errors.New("usage")
