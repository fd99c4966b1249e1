// Package pose defines keypoint types and the interface to the external
// pose/hand estimation model.
package pose

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrModelLoad is returned when the estimation model cannot be started, for
// example when no compatible inference backend is installed. It is not
// retryable: the detection loop stops and reports it.
var ErrModelLoad = errors.New("pose model failed to load")

// Kind selects which model produced a pose.
type Kind string

const (
	// KindBody is a full-body keypoint model (nose, ears, wrists, ...).
	KindBody Kind = "body"
	// KindHand is a 21-point hand model (wrist, finger joints and tips).
	KindHand Kind = "hand"
)

// Body keypoint names.
const (
	Nose          = "nose"
	LeftEye       = "leftEye"
	RightEye      = "rightEye"
	LeftEar       = "leftEar"
	RightEar      = "rightEar"
	LeftShoulder  = "leftShoulder"
	RightShoulder = "rightShoulder"
	LeftElbow     = "leftElbow"
	RightElbow    = "rightElbow"
	LeftWrist     = "leftWrist"
	RightWrist    = "rightWrist"
	LeftHip       = "leftHip"
	RightHip      = "rightHip"
)

// Hand keypoint names. Fingertips end in "_tip" and base knuckles in "_mcp".
const (
	Wrist           = "wrist"
	ThumbCMC        = "thumb_cmc"
	ThumbMCP        = "thumb_mcp"
	ThumbIP         = "thumb_ip"
	ThumbTip        = "thumb_tip"
	IndexMCP        = "index_finger_mcp"
	IndexPIP        = "index_finger_pip"
	IndexDIP        = "index_finger_dip"
	IndexTip        = "index_finger_tip"
	MiddleMCP       = "middle_finger_mcp"
	MiddlePIP       = "middle_finger_pip"
	MiddleDIP       = "middle_finger_dip"
	MiddleTip       = "middle_finger_tip"
	RingMCP         = "ring_finger_mcp"
	RingPIP         = "ring_finger_pip"
	RingDIP         = "ring_finger_dip"
	RingTip         = "ring_finger_tip"
	PinkyMCP        = "pinky_finger_mcp"
	PinkyPIP        = "pinky_finger_pip"
	PinkyDIP        = "pinky_finger_dip"
	PinkyTip        = "pinky_finger_tip"
)

// Keypoint is a named 2-D landmark in frame pixel coordinates.
// Smaller Y is higher in the image.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Pose is every keypoint found for one subject in one frame.
type Pose struct {
	Kind      Kind       `json:"kind"`
	Score     float64    `json:"score"`
	Keypoints []Keypoint `json:"keypoints"`
}

// Find returns the first keypoint with the given name.
func (p *Pose) Find(name string) (Keypoint, bool) {
	if p == nil {
		return Keypoint{}, false
	}
	for _, kp := range p.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Clone returns a deep copy.
func (p Pose) Clone() Pose {
	out := p
	out.Keypoints = append([]Keypoint(nil), p.Keypoints...)
	return out
}

// Estimator runs a keypoint model over a frame.
type Estimator interface {
	// Estimate returns the poses found in frame, or an empty slice.
	Estimate(frame *gocv.Mat) ([]Pose, error)

	// Close releases the model.
	Close() error
}

// Config holds estimator options.
type Config struct {
	// Mode selects the body or hand model.
	Mode Kind

	// ScriptPath is the model service script. Empty means search the usual locations.
	ScriptPath string

	// Python is the interpreter used to run the script. Empty means search for a venv, then python3.
	Python string

	// Command, when set, replaces the python invocation entirely.
	Command []string

	// MinScore drops poses whose overall score is lower.
	MinScore float64
}

// DefaultConfig returns body-mode defaults.
func DefaultConfig() Config {
	return Config{
		Mode:     KindBody,
		MinScore: 0.3,
	}
}
