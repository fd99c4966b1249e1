package pose

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockEstimator returns preset poses. Tests and the demo mode use it.
type MockEstimator struct {
	poses []Pose
	err   error
	calls int
	mu    sync.Mutex
}

// NewMockEstimator returns an estimator that finds nothing.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{}
}

// SetPoses sets the poses returned by Estimate.
func (m *MockEstimator) SetPoses(poses ...Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// SetError makes Estimate fail with err.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Estimate ran.
func (m *MockEstimator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockEstimator) Estimate(frame *gocv.Mat) ([]Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Pose, len(m.poses))
	for i, p := range m.poses {
		out[i] = p.Clone()
	}
	return out, nil
}

func (m *MockEstimator) Close() error { return nil }

// NeutralPose is a child facing the camera with hands down and head level.
func NeutralPose() Pose {
	return Pose{
		Kind:  KindBody,
		Score: 0.92,
		Keypoints: []Keypoint{
			{Name: Nose, X: 320, Y: 180, Confidence: 0.99},
			{Name: LeftEye, X: 335, Y: 165, Confidence: 0.98},
			{Name: RightEye, X: 305, Y: 165, Confidence: 0.98},
			{Name: LeftEar, X: 355, Y: 172, Confidence: 0.9},
			{Name: RightEar, X: 285, Y: 174, Confidence: 0.9},
			{Name: LeftShoulder, X: 390, Y: 260, Confidence: 0.95},
			{Name: RightShoulder, X: 250, Y: 262, Confidence: 0.95},
			{Name: LeftElbow, X: 410, Y: 340, Confidence: 0.9},
			{Name: RightElbow, X: 230, Y: 342, Confidence: 0.9},
			{Name: LeftWrist, X: 415, Y: 420, Confidence: 0.85},
			{Name: RightWrist, X: 225, Y: 418, Confidence: 0.85},
		},
	}
}

// RaisedHandPose is NeutralPose with the left wrist above the head.
func RaisedHandPose() Pose {
	p := NeutralPose()
	for i := range p.Keypoints {
		switch p.Keypoints[i].Name {
		case LeftElbow:
			p.Keypoints[i].Y = 200
		case LeftWrist:
			p.Keypoints[i].X, p.Keypoints[i].Y = 420, 90
		}
	}
	return p
}

// TiltedHeadPose is NeutralPose with the head leaning to one side.
func TiltedHeadPose() Pose {
	p := NeutralPose()
	for i := range p.Keypoints {
		switch p.Keypoints[i].Name {
		case LeftEar:
			p.Keypoints[i].Y = 150
		case RightEar:
			p.Keypoints[i].Y = 200
		}
	}
	return p
}

// ClosedFistPose is a hand with every fingertip curled below its knuckle.
func ClosedFistPose() Pose {
	return handPose(func(mcpY float64) float64 { return mcpY + 25 })
}

// OpenHandPose is a hand with every finger extended upward.
func OpenHandPose() Pose {
	return handPose(func(mcpY float64) float64 { return mcpY - 90 })
}

func handPose(tipY func(mcpY float64) float64) Pose {
	type finger struct {
		mcp, tip string
		x, y     float64
	}
	fingers := []finger{
		{ThumbMCP, ThumbTip, 380, 330},
		{IndexMCP, IndexTip, 350, 300},
		{MiddleMCP, MiddleTip, 325, 295},
		{RingMCP, RingTip, 300, 300},
		{PinkyMCP, PinkyTip, 280, 310},
	}

	p := Pose{
		Kind:      KindHand,
		Score:     0.95,
		Keypoints: []Keypoint{{Name: Wrist, X: 330, Y: 400, Confidence: 0.97}},
	}
	for _, f := range fingers {
		p.Keypoints = append(p.Keypoints,
			Keypoint{Name: f.mcp, X: f.x, Y: f.y, Confidence: 0.95},
			Keypoint{Name: f.tip, X: f.x, Y: tipY(f.y), Confidence: 0.9},
		)
	}
	return p
}
