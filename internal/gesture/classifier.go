// Package gesture turns a single pose into a gesture tag using fixed
// geometric rules on keypoint positions.
package gesture

import (
	"math"
	"strings"

	"github.com/ayusman/wavebuddy/internal/pose"
)

// Gesture is a recognised gesture tag.
type Gesture string

const (
	None       Gesture = "none"
	HandRaised Gesture = "hand_raised"
	HeadTilted Gesture = "head_tilted"
	FistClosed Gesture = "fist_closed"
)

// DefaultTiltThreshold is the ear height difference, in pixels, above which
// the head counts as tilted.
const DefaultTiltThreshold = 20.0

// fingers is how many fingertip and knuckle keypoints a hand must carry.
const fingers = 5

// Classifier holds the tunable thresholds. The zero value is not usable;
// use NewClassifier.
type Classifier struct {
	// TiltThreshold is compared strictly: a difference equal to it is not a tilt.
	TiltThreshold float64
	// MinConfidence treats keypoints scoring below it as missing.
	MinConfidence float64
}

// NewClassifier returns a classifier with the default thresholds.
func NewClassifier() *Classifier {
	return &Classifier{TiltThreshold: DefaultTiltThreshold}
}

var defaultClassifier = NewClassifier()

// Classify checks HandRaised, HeadTilted and FistClosed in that order and
// returns the first that matches, or None.
func Classify(p *pose.Pose) Gesture { return defaultClassifier.Classify(p) }

// IsHandRaised reports whether either wrist is above the nose.
func IsHandRaised(p *pose.Pose) bool { return defaultClassifier.HandRaised(p) }

// IsHeadTilted reports whether the ears differ in height by more than 20 pixels.
func IsHeadTilted(p *pose.Pose) bool { return defaultClassifier.HeadTilted(p) }

// IsFistClosed reports whether the fingertips sit below their knuckles on average.
func IsFistClosed(p *pose.Pose) bool { return defaultClassifier.FistClosed(p) }

func (c *Classifier) Classify(p *pose.Pose) Gesture {
	switch {
	case c.HandRaised(p):
		return HandRaised
	case c.HeadTilted(p):
		return HeadTilted
	case c.FistClosed(p):
		return FistClosed
	default:
		return None
	}
}

// HandRaised is true when the left or right wrist has a smaller y than the
// nose. Image y grows downward.
func (c *Classifier) HandRaised(p *pose.Pose) bool {
	nose, ok := c.find(p, pose.Nose)
	if !ok {
		return false
	}
	for _, name := range []string{pose.LeftWrist, pose.RightWrist} {
		if wrist, ok := c.find(p, name); ok && wrist.Y < nose.Y {
			return true
		}
	}
	return false
}

func (c *Classifier) HeadTilted(p *pose.Pose) bool {
	left, ok := c.find(p, pose.LeftEar)
	if !ok {
		return false
	}
	right, ok := c.find(p, pose.RightEar)
	if !ok {
		return false
	}
	return math.Abs(left.Y-right.Y) > c.TiltThreshold
}

// FistClosed needs exactly five "_tip" and five "_mcp" keypoints. Any other
// count means the hand is not a closed fist.
func (c *Classifier) FistClosed(p *pose.Pose) bool {
	if p == nil {
		return false
	}

	var tipSum, mcpSum float64
	var tips, mcps int
	for _, kp := range p.Keypoints {
		if kp.Confidence < c.MinConfidence {
			continue
		}
		switch {
		case strings.HasSuffix(kp.Name, "_tip"):
			tipSum += kp.Y
			tips++
		case strings.HasSuffix(kp.Name, "_mcp"):
			mcpSum += kp.Y
			mcps++
		}
	}
	if tips != fingers || mcps != fingers {
		return false
	}
	return tipSum/fingers > mcpSum/fingers
}

func (c *Classifier) find(p *pose.Pose, name string) (pose.Keypoint, bool) {
	kp, ok := p.Find(name)
	if !ok || kp.Confidence < c.MinConfidence {
		return pose.Keypoint{}, false
	}
	return kp, true
}
