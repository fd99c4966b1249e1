package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/wavebuddy/internal/capture"
	"github.com/ayusman/wavebuddy/internal/chat"
	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/pose"
	"github.com/ayusman/wavebuddy/internal/speech"
	"github.com/ayusman/wavebuddy/internal/store"
)

type fixture struct {
	app       *App
	camera    *capture.MockCamera
	estimator *pose.MockEstimator
	responder *chat.MockResponder
	store     *store.Store
}

// alternatingFrames returns black and white frames so every frame after the
// first trips the motion gate.
func alternatingFrames(t *testing.T) []*gocv.Mat {
	t.Helper()
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	t.Cleanup(func() {
		black.Close()
		white.Close()
	})
	return []*gocv.Mat{&black, &white}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	responder := chat.NewMockResponder("Hello! What would you like to know?")
	controller := dialogue.NewController(responder, speech.NewMockSynthesizer(), nil,
		dialogue.WithMicResumeDelay(0))

	f := &fixture{
		camera:    capture.NewMockCamera(alternatingFrames(t), true),
		estimator: pose.NewMockEstimator(),
		responder: responder,
		store:     s,
	}
	f.app = New(Config{
		Controller:   controller,
		Store:        s,
		Camera:       f.camera,
		Estimator:    f.estimator,
		TickInterval: 10 * time.Millisecond,
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestApp_GestureStartsExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	f.estimator.SetPoses(pose.RaisedHandPose())

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "exchange", func() bool { return len(f.responder.Calls()) > 0 })
	f.app.Stop()

	if got := f.responder.Calls()[0].Prompt; got != "The child raised their hand. How should I respond?" {
		t.Errorf("prompt = %q", got)
	}
	if f.app.LatestFrame() == nil {
		t.Error("pipeline should keep a JPEG of the latest frame")
	}

	logged, err := f.store.Exchanges().List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logged) == 0 {
		t.Fatal("exchange was not logged")
	}
	if logged[len(logged)-1].Gesture != "hand_raised" || !logged[len(logged)-1].Spoken {
		t.Errorf("logged exchange = %+v", logged[len(logged)-1])
	}
}

func TestApp_DisabledSkipsEstimation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	f.estimator.SetPoses(pose.RaisedHandPose())
	f.app.SetEnabled(false)

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	f.app.Stop()

	if f.estimator.Calls() != 0 {
		t.Errorf("estimator called %d times while disabled", f.estimator.Calls())
	}
	if len(f.responder.Calls()) != 0 {
		t.Error("no exchange should start while disabled")
	}
}

func TestApp_ModelLoadFailureStopsDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	f.estimator.SetError(fmt.Errorf("%w: no backend", pose.ErrModelLoad))

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "diagnostic", func() bool { return f.app.LastError() != nil })

	calls := f.estimator.Calls()
	time.Sleep(300 * time.Millisecond)
	f.app.Stop()

	if !errors.Is(f.app.LastError(), pose.ErrModelLoad) {
		t.Errorf("LastError() = %v, want ErrModelLoad", f.app.LastError())
	}
	if f.estimator.Calls() != calls {
		t.Error("estimator kept being called after a model load failure")
	}
}

func TestApp_CameraUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	f.camera.FailOpen(capture.ErrDeviceUnavailable)

	err := f.app.Start(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Start() = %v, want ErrDeviceUnavailable", err)
	}
	if f.app.Running() {
		t.Error("app should not be running after camera failure")
	}
}

func TestApp_OnEnabledChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	var got []bool
	f.app.OnEnabledChange(func(enabled bool) { got = append(got, enabled) })

	f.app.SetEnabled(false)
	f.app.SetEnabled(true)

	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("enabled changes = %v, want [false true]", got)
	}
}

func TestApp_EnabledPersists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t)
	if !f.app.IsEnabled() {
		t.Fatal("detection should default to enabled")
	}
	f.app.SetEnabled(false)

	again := New(Config{
		Controller: dialogue.NewController(chat.NewMockResponder("x"), speech.NewMockSynthesizer(), nil),
		Store:      f.store,
		Camera:     capture.NewMockCamera(nil, false),
		Estimator:  pose.NewMockEstimator(),
	})
	if again.IsEnabled() {
		t.Error("disabled setting was not restored")
	}
}

func TestPoseBuffer_KeepsLatestFrameOnly(t *testing.T) {
	b := &poseBuffer{}
	b.put([]pose.Pose{pose.NeutralPose()})
	b.put([]pose.Pose{pose.RaisedHandPose(), pose.TiltedHeadPose()})

	got := b.TakePoses()
	if len(got) != 2 {
		t.Fatalf("TakePoses() returned %d poses, want 2", len(got))
	}
	if again := b.TakePoses(); again != nil {
		t.Errorf("second TakePoses() = %v, want nil", again)
	}
}
