package pose

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeResponse(t *testing.T) {
	line := []byte(`{"poses":[{"score":0.9,"keypoints":[` +
		`{"name":"nose","x":0.5,"y":0.25,"score":0.99},` +
		`{"name":"left_wrist","x":0.25,"y":0.5,"score":0.8}]}]}` + "\n")

	poses, err := decodeResponse(line, 640, 480, KindBody, 0.3)
	if err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if len(poses) != 1 {
		t.Fatalf("got %d poses, want 1", len(poses))
	}

	p := poses[0]
	if p.Kind != KindBody || p.Score != 0.9 {
		t.Errorf("pose = %+v", p)
	}

	nose, ok := p.Find(Nose)
	if !ok {
		t.Fatal("nose missing")
	}
	if math.Abs(nose.X-320) > 1e-9 || math.Abs(nose.Y-120) > 1e-9 {
		t.Errorf("nose scaled to (%f,%f), want (320,120)", nose.X, nose.Y)
	}

	wrist, ok := p.Find(LeftWrist)
	if !ok {
		t.Fatal("left_wrist should be renamed to leftWrist")
	}
	if wrist.Confidence != 0.8 {
		t.Errorf("confidence = %f, want 0.8", wrist.Confidence)
	}
}

func TestDecodeResponse_HandNamesUntouched(t *testing.T) {
	line := []byte(`{"poses":[{"score":0.9,"keypoints":[{"name":"thumb_tip","x":0.1,"y":0.1,"score":0.9}]}]}`)

	poses, err := decodeResponse(line, 100, 100, KindHand, 0)
	if err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if _, ok := poses[0].Find(ThumbTip); !ok {
		t.Error("hand keypoint names should keep snake case")
	}
}

func TestDecodeResponse_DropsLowScores(t *testing.T) {
	line := []byte(`{"poses":[{"score":0.1,"keypoints":[]},{"score":0.8,"keypoints":[]}]}`)

	poses, err := decodeResponse(line, 640, 480, KindBody, 0.3)
	if err != nil {
		t.Fatalf("decodeResponse() error = %v", err)
	}
	if len(poses) != 1 || poses[0].Score != 0.8 {
		t.Errorf("poses = %+v, want only the 0.8 pose", poses)
	}
}

func TestDecodeResponse_Errors(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"error":"no WebGL backend"}`), 640, 480, KindBody, 0)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("error = %v, want ErrModelLoad", err)
		}
		if !isModelError(err) {
			t.Error("isModelError should recognise model errors")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"poses":`), 640, 480, KindBody, 0)
		if err == nil || errors.Is(err, ErrModelLoad) {
			t.Errorf("error = %v, want a parse error", err)
		}
	})
}

func TestCamelName(t *testing.T) {
	tests := map[string]string{
		"nose":        "nose",
		"left_wrist":  "leftWrist",
		"right_ear":   "rightEar",
		"leftWrist":   "leftWrist",
		"left__elbow": "leftElbow",
	}
	for in, want := range tests {
		if got := camelName(in); got != want {
			t.Errorf("camelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewServiceEstimator_MissingScript(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := NewServiceEstimator(Config{Mode: KindBody})
	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("error = %v, want ErrModelLoad", err)
	}
}

func TestNewServiceEstimator_ExplicitCommand(t *testing.T) {
	e, err := NewServiceEstimator(Config{Command: []string{"/bin/cat"}})
	if err != nil {
		t.Fatalf("NewServiceEstimator() error = %v", err)
	}
	if e.config.Mode != KindBody {
		t.Errorf("mode = %s, want body default", e.config.Mode)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() before start = %v, want nil", err)
	}
}

func TestServiceEstimator_StartFailure(t *testing.T) {
	e, err := NewServiceEstimator(Config{Command: []string{"/nonexistent/pose-service"}})
	if err != nil {
		t.Fatalf("NewServiceEstimator() error = %v", err)
	}

	e.mu.Lock()
	err = e.ensureStarted()
	e.mu.Unlock()

	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("ensureStarted() = %v, want ErrModelLoad", err)
	}
}
