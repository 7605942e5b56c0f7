package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultCaptureCommand grabs one frame from {device} and writes a PNG to
// stdout.
var DefaultCaptureCommand = []string{
	"ffmpeg", "-hide_banner", "-loglevel", "error",
	"-f", "video4linux2", "-i", "{device}",
	"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-",
}

const devicePlaceholder = "{device}"

// V4LDevices is a MediaDevices backed by Video4Linux device nodes and an
// external capture command.
type V4LDevices struct {
	// Pattern globs the device nodes, /dev/video* by default.
	Pattern string
	// Command is the capture command line. {device} is replaced by the node.
	Command []string

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewV4LDevices(command []string) *V4LDevices {
	if len(command) == 0 {
		command = DefaultCaptureCommand
	}
	return &V4LDevices{Pattern: "/dev/video*", Command: command, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Enumerate lists device nodes. The first node is treated as the front
// camera, the second as the back one.
func (v *V4LDevices) Enumerate(_ context.Context) ([]DeviceInfo, error) {
	paths, err := filepath.Glob(v.Pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]DeviceInfo, 0, len(paths))
	for i, p := range paths {
		facing := FacingUser
		if i%2 == 1 {
			facing = FacingEnvironment
		}
		out = append(out, DeviceInfo{ID: p, Label: filepath.Base(p), Facing: facing})
	}
	return out, nil
}

// Open picks the node matching the facing mode, falling back to the first
// node, and checks that it can be opened.
func (v *V4LDevices) Open(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := v.Enumerate(ctx)
	if err != nil {
		return nil, asDeviceError(err)
	}
	if len(devices) == 0 {
		return nil, &DeviceError{Name: NotFoundError}
	}

	dev := devices[0]
	for _, d := range devices {
		if d.Facing == c.Facing {
			dev = d
			break
		}
	}

	f, err := os.OpenFile(dev.ID, os.O_RDWR, 0)
	if err != nil {
		return nil, asDeviceError(err)
	}
	_ = f.Close()

	return &v4lStream{dev: dev.ID, v: v}, nil
}

type v4lStream struct {
	dev string
	v   *V4LDevices

	mu      sync.Mutex
	stopped bool
}

func (s *v4lStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrCameraStopped
	}

	if len(s.v.Command) == 0 {
		return nil, &DeviceError{Name: NotSupportedError}
	}
	args := make([]string, 0, len(s.v.Command)-1)
	for _, a := range s.v.Command[1:] {
		args = append(args, strings.ReplaceAll(a, devicePlaceholder, s.dev))
	}

	out, err := s.v.run(ctx, s.v.Command[0], args...)
	if err != nil {
		return nil, asDeviceError(err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, &DeviceError{Name: NotReadableError, Err: fmt.Errorf("decode frame: %w", err)}
	}
	return img, nil
}

func (s *v4lStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
