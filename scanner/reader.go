// Package scanner samples camera frames, decodes optical codes and hands
// each decoded code to one consumer at a time.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Reader samples the active camera and emits decoded codes on Codes. After
// each hit it pauses until Resume, so a code held in front of the camera is
// emitted once per presentation rather than once per frame.
type Reader struct {
	decoder Decoder
	cameras []Camera
	logger  *slog.Logger

	codes  chan string
	faults chan error
	resume chan struct{}

	// life serializes Start, Stop and SwitchDevice so that stopping one
	// stream and opening the next is a single step.
	life sync.Mutex

	mu      sync.Mutex
	active  int
	stream  Stream
	cancel  context.CancelFunc
	done    chan struct{}
	paused  bool
	torchOn bool
}

func NewReader(decoder Decoder, logger *slog.Logger, cameras ...Camera) *Reader {
	return &Reader{
		decoder: decoder,
		cameras: cameras,
		logger:  logger,
		codes:   make(chan string, 1),
		faults:  make(chan error, 1),
		resume:  make(chan struct{}, 1),
	}
}

// Codes delivers decoded codes. At most one is outstanding at a time.
func (r *Reader) Codes() <-chan string {
	return r.codes
}

// Faults delivers device errors raised while capturing. Capture stops after
// a fault; the operator may Start again or fall back to manual entry.
func (r *Reader) Faults() <-chan error {
	return r.faults
}

// Start claims a camera and begins sampling. deviceHint selects a camera by
// ID; an unknown or empty hint keeps the current one. Starting a running
// reader restarts it. A code already handed to the consumer keeps the
// reader paused across the restart until Resume.
func (r *Reader) Start(ctx context.Context, deviceHint string) error {
	r.life.Lock()
	defer r.life.Unlock()
	return r.start(ctx, deviceHint)
}

func (r *Reader) start(ctx context.Context, deviceHint string) error {
	r.stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cameras) == 0 {
		return &DeviceError{Err: ErrNoCamera}
	}
	for i, cam := range r.cameras {
		if cam.ID() == deviceHint {
			r.active = i
			break
		}
	}
	cam := r.cameras[r.active]

	stream, err := cam.Open(ctx)
	if err != nil {
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			err = &DeviceError{Device: cam.ID(), Err: err}
		}
		r.logger.Warn("camera open failed", "device", cam.ID(), "error", err)
		return err
	}

	// A code nobody picked up is dropped along with its pause. A code the
	// consumer already holds stays outstanding.
	select {
	case <-r.codes:
		r.paused = false
	default:
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.stream = stream
	r.cancel = cancel
	r.done = make(chan struct{})
	r.torchOn = false

	go r.loop(loopCtx, stream, r.done)
	r.logger.Info("scanner started", "device", cam.ID(), "paused", r.paused)
	return nil
}

func (r *Reader) loop(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)

	for {
		if r.isPaused() {
			select {
			case <-r.resume:
			case <-ctx.Done():
				return
			}
			continue
		}

		img, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrNotRunning) {
				return
			}
			select {
			case r.faults <- err:
			default:
			}
			return
		}

		code, err := r.decoder.Decode(img)
		if err != nil || code == "" {
			continue
		}

		r.mu.Lock()
		r.paused = true
		r.mu.Unlock()

		select {
		case r.codes <- code:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reader) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Resume re-arms the reader after a code was handled.
func (r *Reader) Resume() {
	r.mu.Lock()
	if f, ok := r.stream.(Flusher); ok {
		f.Flush()
	}
	r.paused = false
	r.mu.Unlock()

	select {
	case r.resume <- struct{}{}:
	default:
	}
}

func (r *Reader) Paused() bool {
	return r.isPaused()
}

func (r *Reader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Stop releases the camera. The stream is closed before waiting for the
// sampling goroutine, so the device is freed even mid-decode.
func (r *Reader) Stop() {
	r.life.Lock()
	defer r.life.Unlock()
	r.stop()
}

func (r *Reader) stop() {
	r.mu.Lock()
	stream, cancel, done := r.stream, r.cancel, r.done
	r.stream, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if stream == nil {
		return
	}
	cancel()
	if err := stream.Close(); err != nil {
		r.logger.Warn("camera close failed", "error", err)
	}
	<-done
}

// ActiveDevice returns the ID of the selected camera.
func (r *Reader) ActiveDevice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cameras) == 0 {
		return ""
	}
	return r.cameras[r.active].ID()
}

// SwitchDevice moves to the next camera, restarting capture if it was
// running. With a single camera it does nothing.
func (r *Reader) SwitchDevice(ctx context.Context) (string, error) {
	r.life.Lock()
	defer r.life.Unlock()

	r.mu.Lock()
	n := len(r.cameras)
	if n < 2 {
		r.mu.Unlock()
		return r.ActiveDevice(), nil
	}
	running := r.stream != nil
	next := r.cameras[(r.active+1)%n].ID()
	if !running {
		r.active = (r.active + 1) % n
		r.mu.Unlock()
		return next, nil
	}
	r.mu.Unlock()

	if err := r.start(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

// SetTorch switches the flashlight. Cameras without one report
// ErrTorchUnsupported and capture carries on.
func (r *Reader) SetTorch(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		return ErrNotRunning
	}
	cam := r.cameras[r.active]
	torch, ok := cam.(Torch)
	if !ok {
		return &DeviceError{Device: cam.ID(), Err: ErrTorchUnsupported}
	}
	if err := torch.SetTorch(on); err != nil {
		return &DeviceError{Device: cam.ID(), Err: err}
	}
	r.torchOn = on
	return nil
}

func (r *Reader) TorchOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torchOn
}
