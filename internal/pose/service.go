package pose

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/wavebuddy/internal/log"
)

// ServiceIdleTimeout is how long the model service may sit unused before it is stopped.
const ServiceIdleTimeout = 30 * time.Second

const scriptName = "pose_service.py"

// ServiceEstimator runs the keypoint model in a long-lived subprocess.
//
// Each frame is written to the child's stdin as a 4-byte big-endian length
// followed by JPEG bytes. The child answers with one JSON line:
//
//	{"poses":[{"score":0.9,"keypoints":[{"name":"nose","x":0.5,"y":0.3,"score":0.99}]}]}
//
// with x and y normalized to [0,1]. A line of the form {"error":"..."} means
// the model could not be loaded.
type ServiceEstimator struct {
	config    Config
	argv      []string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
	mu        sync.Mutex
}

// NewServiceEstimator resolves the service command. The process itself is
// started lazily on the first frame.
func NewServiceEstimator(config Config) (*ServiceEstimator, error) {
	if config.Mode == "" {
		config.Mode = KindBody
	}

	argv := config.Command
	if len(argv) == 0 {
		script := config.ScriptPath
		if script == "" {
			script = findServiceScript()
		}
		if script == "" {
			return nil, fmt.Errorf("%w: %s not found", ErrModelLoad, scriptName)
		}
		python := config.Python
		if python == "" {
			python = findVenvPython()
		}
		if python == "" {
			python = "python3"
		}
		argv = []string{python, script, "--mode", string(config.Mode)}
	}

	return &ServiceEstimator{config: config, argv: argv}, nil
}

// Estimate sends frame to the service and returns the decoded poses in frame pixels.
func (e *ServiceEstimator) Estimate(frame *gocv.Mat) ([]Pose, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	line, err := e.roundTrip(buf.GetBytes())
	if err != nil {
		e.shutdown()
		return nil, fmt.Errorf("%w: service stopped responding: %v", ErrModelLoad, err)
	}

	poses, err := decodeResponse(line, frame.Cols(), frame.Rows(), e.config.Mode, e.config.MinScore)
	if err != nil {
		if isModelError(err) {
			e.shutdown()
		}
		return nil, err
	}

	e.resetIdleTimer()
	return poses, nil
}

// Close stops the service process.
func (e *ServiceEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown()
}

func (e *ServiceEstimator) roundTrip(data []byte) ([]byte, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))

	if _, err := e.stdin.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	line, err := e.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

func (e *ServiceEstimator) ensureStarted() error {
	if e.started {
		return nil
	}

	cmd := exec.Command(e.argv[0], e.argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrModelLoad, e.argv[0], err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.started = true

	log.Component("pose").Info("model service started", "mode", e.config.Mode, "pid", cmd.Process.Pid)
	return nil
}

func (e *ServiceEstimator) shutdown() error {
	if !e.started {
		return nil
	}

	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
	return err
}

func (e *ServiceEstimator) resetIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(ServiceIdleTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.shutdown()
	})
}

type serviceResponse struct {
	Error string        `json:"error"`
	Poses []servicePose `json:"poses"`
}

type servicePose struct {
	Score     float64           `json:"score"`
	Keypoints []serviceKeypoint `json:"keypoints"`
}

type serviceKeypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

type modelError struct{ msg string }

func (e *modelError) Error() string { return fmt.Sprintf("%v: %s", ErrModelLoad, e.msg) }
func (e *modelError) Unwrap() error { return ErrModelLoad }

func isModelError(err error) bool {
	_, ok := err.(*modelError)
	return ok
}

// decodeResponse parses one service line and scales keypoints to pixels.
func decodeResponse(line []byte, width, height int, kind Kind, minScore float64) ([]Pose, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, &modelError{msg: resp.Error}
	}

	poses := make([]Pose, 0, len(resp.Poses))
	for _, sp := range resp.Poses {
		if sp.Score < minScore {
			continue
		}
		p := Pose{
			Kind:      kind,
			Score:     sp.Score,
			Keypoints: make([]Keypoint, 0, len(sp.Keypoints)),
		}
		for _, kp := range sp.Keypoints {
			name := kp.Name
			if kind == KindBody {
				name = camelName(name)
			}
			p.Keypoints = append(p.Keypoints, Keypoint{
				Name:       name,
				X:          kp.X * float64(width),
				Y:          kp.Y * float64(height),
				Confidence: kp.Score,
			})
		}
		poses = append(poses, p)
	}
	return poses, nil
}

// camelName turns "left_wrist" into "leftWrist". Body models disagree on
// naming; the classifier uses the camel-case form.
func camelName(name string) string {
	if !strings.Contains(name, "_") {
		return name
	}
	parts := strings.Split(name, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func findServiceScript() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".wavebuddy", "scripts", scriptName),
	}
	return firstExisting(candidates)
}

func findVenvPython() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".wavebuddy", "venv", "bin", "python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
