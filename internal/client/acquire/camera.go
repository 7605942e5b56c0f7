package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

// Facing is the preferred camera direction.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

func (f Facing) Opposite() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// Constraints describe the stream being requested.
type Constraints struct {
	Facing Facing
}

// DeviceInfo describes one physical camera.
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
}

// Stream is an open camera. Stop releases the device and is idempotent.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop()
}

// MediaDevices is the device layer the camera path runs on.
type MediaDevices interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// CaptureQuality is the JPEG quality of captured stills.
const CaptureQuality = 80

// Camera owns at most one open stream. Any previous stream is stopped before
// a new one is requested.
type Camera struct {
	devices  MediaDevices
	sink     Sink
	previews models.PreviewFactory
	logger   logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	stream Stream
	facing Facing
}

type CameraOption func(*Camera)

func WithCameraPreviews(f models.PreviewFactory) CameraOption {
	return func(c *Camera) { c.previews = f }
}

func WithCameraLogger(l logging.Logger) CameraOption {
	return func(c *Camera) { c.logger = l }
}

func NewCamera(devices MediaDevices, sink Sink, opts ...CameraOption) *Camera {
	c := &Camera{
		devices: devices,
		sink:    sink,
		logger:  logging.Discard(),
		now:     time.Now,
		facing:  FacingUser,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens a stream with the preferred facing mode.
func (c *Camera) Start(ctx context.Context, facing Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx, facing)
}

func (c *Camera) openLocked(ctx context.Context, facing Facing) error {
	c.stopLocked()

	stream, err := c.devices.Open(ctx, Constraints{Facing: facing})
	if err != nil {
		return asDeviceError(err)
	}
	c.stream = stream
	c.facing = facing
	c.logger.Debug(ctx, "camera started", "facing", facing)
	return nil
}

// SwitchCamera restarts the stream with the opposite facing mode. It does
// nothing and returns false when fewer than two cameras are present.
func (c *Camera) SwitchCamera(ctx context.Context) (bool, error) {
	devices, err := c.devices.Enumerate(ctx)
	if err != nil {
		return false, asDeviceError(err)
	}
	if len(devices) < 2 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openLocked(ctx, c.facing.Opposite()); err != nil {
		return false, err
	}
	return true, nil
}

// Capture grabs the current frame, stops the stream and forwards the still
// as a JPEG.
func (c *Camera) Capture(ctx context.Context) error {
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return ErrCameraStopped
	}
	frame, err := stream.Frame(ctx)
	if err != nil {
		c.mu.Unlock()
		return asDeviceError(err)
	}
	c.stopLocked()
	c.mu.Unlock()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(CaptureQuality)); err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}

	name := fmt.Sprintf("capture-%s.jpg", c.now().UTC().Format("20060102-150405"))
	f, err := models.NewFileFromBytes(name, "image/jpeg", buf.Bytes(), models.SourceCamera)
	if err != nil {
		return err
	}

	preview, err := makePreview(ctx, c.previews, f)
	if err != nil {
		return fmt.Errorf("preview %s: %w", f.Name, err)
	}
	return c.sink(ctx, f, preview)
}

// Close stops the stream. Safe to call at any time.
func (c *Camera) Close() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Active reports whether a stream is open.
func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *Camera) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

func (c *Camera) stopLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
}
