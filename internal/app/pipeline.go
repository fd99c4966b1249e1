package app

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/wavebuddy/internal/capture"
	"github.com/ayusman/wavebuddy/internal/pose"
)

// runPipeline reads frames until ctx ends. It idles at IdleFPS, switches to
// ActiveFPS when the motion gate fires, and hands each active frame's poses
// to the controller. A model load failure ends the loop.
func (a *App) runPipeline(ctx context.Context) {
	frameInterval := time.Second / time.Duration(IdleFPS)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	lastMotion := time.Now()
	a.active.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if !errors.Is(err, capture.ErrFrameNotReady) {
				a.logger.Warn("error reading frame", "error", err)
			}
			continue
		}
		metricFrames.Inc()
		a.storeFrame(frame)

		if !a.IsEnabled() {
			frame.Close()
			continue
		}

		moved, _ := a.motion.Detect(frame)
		switch {
		case moved:
			lastMotion = time.Now()
			if !a.active.Load() {
				a.setActive(true, ticker)
			}
		case a.active.Load() && time.Since(lastMotion) > IdleTimeout:
			a.setActive(false, ticker)
		}

		if !a.active.Load() {
			frame.Close()
			continue
		}

		poses, err := a.estimate(frame)
		frame.Close()
		if err != nil {
			if errors.Is(err, pose.ErrModelLoad) {
				a.setLastError(err)
				a.logger.Error("pose model failed, stopping detection", "error", err)
				return
			}
			if !errors.Is(err, errNoEstimator) {
				a.logger.Warn("pose estimation failed", "error", err)
			}
			continue
		}

		a.poses.put(poses)
		a.mu.RLock()
		fn := a.onPoses
		a.mu.RUnlock()
		if fn != nil {
			fn(poses)
		}
	}
}

func (a *App) estimate(frame *gocv.Mat) ([]pose.Pose, error) {
	if a.estimator == nil {
		return nil, errNoEstimator
	}
	start := time.Now()
	poses, err := a.estimator.Estimate(frame)
	metricEstimate.Observe(float64(time.Since(start).Milliseconds()))
	return poses, err
}

func (a *App) setActive(active bool, ticker *time.Ticker) {
	fps := IdleFPS
	if active {
		fps = ActiveFPS
	}
	a.active.Store(active)
	a.camera.SetFPS(fps)
	ticker.Reset(time.Second / time.Duration(fps))

	if active {
		metricActive.Set(1)
	} else {
		metricActive.Set(0)
	}
	a.logger.Debug("pipeline rate changed", "active", active, "fps", fps)
}

// storeFrame keeps a JPEG copy of frame for the live stream.
func (a *App) storeFrame(frame *gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.mu.Lock()
	a.frame = data
	a.mu.Unlock()
}
