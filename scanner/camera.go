package scanner

import (
	"context"
	"image"
	"sync"
)

// Camera is a capture device a Reader can sample.
type Camera interface {
	ID() string
	// Open claims the device. It fails with ErrCameraBusy when already
	// claimed and ErrPermissionDenied when access is refused.
	Open(ctx context.Context) (Stream, error)
}

// Torch is implemented by cameras with a controllable flashlight.
type Torch interface {
	SetTorch(on bool) error
}

// Stream yields frames until closed. Close releases the device.
type Stream interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Flusher is implemented by streams that buffer frames. Buffered frames are
// dropped when the reader resumes so a stale frame is not decoded again.
type Flusher interface {
	Flush()
}

// FrameCamera is a camera whose frames are uploaded by a gate device. It
// keeps only the newest frame.
type FrameCamera struct {
	id string

	mu     sync.Mutex
	stream *frameStream
}

func NewFrameCamera(id string) *FrameCamera {
	return &FrameCamera{id: id}
}

func (c *FrameCamera) ID() string {
	return c.id
}

func (c *FrameCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil, &DeviceError{Device: c.id, Err: ErrCameraBusy}
	}
	c.stream = &frameStream{
		camera: c,
		frames: make(chan image.Image, 1),
		closed: make(chan struct{}),
	}
	return c.stream, nil
}

// Push offers a frame, replacing any frame not yet consumed. It reports
// false when the camera is not open.
func (c *FrameCamera) Push(img image.Image) bool {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return false
	}
	return s.offer(img)
}

// IsOpen reports whether a reader currently holds the camera.
func (c *FrameCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

type frameStream struct {
	camera *FrameCamera
	frames chan image.Image
	closed chan struct{}
	once   sync.Once
}

func (s *frameStream) offer(img image.Image) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	for {
		select {
		case s.frames <- img:
			return true
		default:
		}
		// Slot taken: drop the older frame and retry.
		select {
		case <-s.frames:
		default:
		}
	}
}

func (s *frameStream) Next(ctx context.Context) (image.Image, error) {
	select {
	case img := <-s.frames:
		return img, nil
	case <-s.closed:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *frameStream) Flush() {
	select {
	case <-s.frames:
	default:
	}
}

func (s *frameStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.camera.mu.Lock()
		if s.camera.stream == s {
			s.camera.stream = nil
		}
		s.camera.mu.Unlock()
	})
	return nil
}
