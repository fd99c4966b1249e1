// Package app wires the camera, pose model and dialogue controller into the
// running wavebuddy pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/wavebuddy/internal/capture"
	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/log"
	"github.com/ayusman/wavebuddy/internal/pose"
	"github.com/ayusman/wavebuddy/internal/store"
)

// Pipeline timing.
const (
	// IdleFPS is the frame rate while the scene is still.
	IdleFPS = 5
	// ActiveFPS is the frame rate once motion is seen.
	ActiveFPS = 15
	// IdleTimeout is how long without motion before dropping back to IdleFPS.
	IdleTimeout = 2 * time.Second
	// DefaultTickInterval paces the dialogue controller's detection ticks.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultMotionThreshold is the changed-pixel percentage counted as motion.
	DefaultMotionThreshold = 1.0
)

// Config holds the pieces the app runs. Controller is required.
type Config struct {
	Controller *dialogue.Controller
	Store      *store.Store

	// Camera overrides the device camera opened from CameraID.
	Camera   capture.Camera
	CameraID int

	// Estimator overrides the model service built from Pose.
	Estimator pose.Estimator
	Pose      pose.Config

	MotionThresh float64
	TickInterval time.Duration
}

// App runs the capture pipeline and the dialogue loop.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	estimator  pose.Estimator
	controller *dialogue.Controller
	poses      *poseBuffer

	enabled bool
	active  atomic.Bool
	lastErr error
	frame   []byte
	onPoses func([]pose.Pose)

	enabledSubs []func(bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	logger *slog.Logger
}

// New builds an App. A model service that cannot be resolved is recorded
// in LastError; the camera and dialogue still run.
func New(config Config) *App {
	if config.MotionThresh <= 0 {
		config.MotionThresh = DefaultMotionThreshold
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}

	a := &App{
		config:     config,
		camera:     config.Camera,
		motion:     capture.NewMotionDetector(config.MotionThresh),
		estimator:  config.Estimator,
		controller: config.Controller,
		poses:      &poseBuffer{},
		enabled:    true,
		logger:     log.Component("app"),
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}

	if a.estimator == nil {
		est, err := pose.NewServiceEstimator(config.Pose)
		if err != nil {
			a.lastErr = err
			a.logger.Error("pose model unavailable, gesture detection disabled", "error", err)
		} else {
			a.estimator = est
			a.logger.Info("using pose model service", "mode", config.Pose.Mode)
		}
	}

	if config.Store != nil {
		a.enabled = config.Store.Settings().GetBool(store.SettingEnabled, true)
		a.controller.Subscribe(a.logExchange)
	}

	return a
}

// SetEnabled turns gesture detection on or off and remembers the choice.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	subs := append([]func(bool)(nil), a.enabledSubs...)
	a.mu.Unlock()

	if enabled {
		a.motion.Reset()
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			a.logger.Warn("failed to save enabled setting", "error", err)
		}
	}
	for _, fn := range subs {
		fn(enabled)
	}
}

// OnEnabledChange registers fn to run after every SetEnabled, whichever
// surface made the change.
func (a *App) OnEnabledChange(fn func(enabled bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabledSubs = append(a.enabledSubs, fn)
}

// IsEnabled reports whether gesture detection is on.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera and launches the pipeline and dialogue loop. A
// camera that cannot be opened is fatal.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	a.camera.SetFPS(IdleFPS)

	if err := a.controller.StartListening(); err != nil {
		a.logger.Warn("speech input not available", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.runPipeline(ctx)
	}()
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.config.TickInterval)
		defer ticker.Stop()
		a.controller.Run(ctx, ticker.C, a.poses)
	}()

	a.logger.Info("detection pipeline started", "camera", a.config.CameraID)
	return nil
}

// Stop halts both loops, waits for the running exchange and releases devices.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.controller.Close()

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", "error", err)
	}
	a.motion.Close()
	if a.estimator != nil {
		if err := a.estimator.Close(); err != nil {
			a.logger.Warn("error closing pose model", "error", err)
		}
	}

	a.logger.Info("detection pipeline stopped")
}

// Running reports whether Start has been called without Stop.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// Controller returns the dialogue controller.
func (a *App) Controller() *dialogue.Controller {
	return a.controller
}

// Camera returns the camera in use.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Active reports whether the pipeline is running at ActiveFPS.
func (a *App) Active() bool {
	return a.active.Load()
}

// LastError returns the diagnostic that halted detection, if any.
func (a *App) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// LatestFrame returns the most recent camera frame as JPEG, or nil.
func (a *App) LatestFrame() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame
}

// OnPoses registers fn to receive each frame's poses.
func (a *App) OnPoses(fn func([]pose.Pose)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onPoses = fn
}

func (a *App) setLastError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err
}

func (a *App) logExchange(e dialogue.Event) {
	if e.Type != dialogue.EventExchange || e.Exchange == nil {
		return
	}
	ex := e.Exchange

	rec := &store.Exchange{
		Source:     string(ex.Utterance.Source),
		Prompt:     ex.Utterance.Text,
		Response:   ex.Response,
		Language:   ex.Language,
		Spoken:     ex.Spoken,
		StartedAt:  ex.StartedAt,
		DurationMs: ex.Duration.Milliseconds(),
	}
	if ex.Utterance.Source == dialogue.SourceGesture {
		rec.Gesture = string(ex.Utterance.Gesture)
	}
	if ex.Err != nil {
		rec.Error = ex.Err.Error()
	}

	if err := a.config.Store.Exchanges().Create(rec); err != nil {
		a.logger.Warn("failed to log exchange", "error", err)
	}
}

// poseBuffer holds the poses of the latest frame until the controller takes them.
type poseBuffer struct {
	mu    sync.Mutex
	poses []pose.Pose
}

func (b *poseBuffer) put(poses []pose.Pose) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poses = poses
}

func (b *poseBuffer) TakePoses() []pose.Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.poses
	b.poses = nil
	return out
}

var errNoEstimator = errors.New("no pose estimator")
