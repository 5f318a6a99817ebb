package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textFrame is a frame whose "printed" code the fake decoder reads back.
type textFrame struct {
	*image.Gray
	text string
}

func frame(text string) image.Image {
	return textFrame{Gray: image.NewGray(image.Rect(0, 0, 1, 1)), text: text}
}

type textDecoder struct{}

func (textDecoder) Decode(img image.Image) (string, error) {
	f, ok := img.(textFrame)
	if !ok || f.text == "" {
		return "", ErrNoCode
	}
	return f.text, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, r *Reader) string {
	t.Helper()
	select {
	case code := <-r.Codes():
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a code")
		return ""
	}
}

func assertNoCode(t *testing.T, r *Reader) {
	t.Helper()
	select {
	case code := <-r.Codes():
		t.Fatalf("unexpected code %q", code)
	case <-time.After(50 * time.Millisecond):
	}
}

// pushUntilTaken keeps offering a frame until the reader consumes it.
func pushUntilTaken(t *testing.T, cam *FrameCamera, r *Reader, img image.Image) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		require.True(t, cam.Push(img))
		select {
		case code := <-r.Codes():
			return code
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for a code")
		}
	}
}

func TestReader_EmitsOncePerPresentation(t *testing.T) {
	cam := NewFrameCamera("rear")
	r := NewReader(textDecoder{}, quietLogger(), cam)
	require.NoError(t, r.Start(context.Background(), ""))
	defer r.Stop()

	require.True(t, cam.Push(frame("")))
	require.True(t, cam.Push(frame("ABC123-XYZ789")))
	assert.Equal(t, "ABC123-XYZ789", receive(t, r))
	assert.True(t, r.Paused())

	// Same code still in view: nothing until the consumer resumes.
	cam.Push(frame("ABC123-XYZ789"))
	assertNoCode(t, r)

	r.Resume()
	assert.False(t, r.Paused())
	assertNoCode(t, r)

	assert.Equal(t, "DEF456", pushUntilTaken(t, cam, r, frame("DEF456")))
}

func TestReader_StopReleasesCamera(t *testing.T) {
	cam := NewFrameCamera("rear")
	r := NewReader(textDecoder{}, quietLogger(), cam)
	require.NoError(t, r.Start(context.Background(), ""))
	assert.True(t, cam.IsOpen())
	assert.True(t, r.Running())

	r.Stop()
	assert.False(t, cam.IsOpen())
	assert.False(t, r.Running())
	assert.False(t, cam.Push(frame("X")))

	// Stopping twice is harmless.
	r.Stop()
}

func TestReader_StopWhileCodePending(t *testing.T) {
	cam := NewFrameCamera("rear")
	r := NewReader(textDecoder{}, quietLogger(), cam)
	require.NoError(t, r.Start(context.Background(), ""))

	require.True(t, cam.Push(frame("PENDING")))
	require.Eventually(t, r.Paused, time.Second, 5*time.Millisecond)
	r.Stop()
	assert.False(t, cam.IsOpen())

	require.NoError(t, r.Start(context.Background(), ""))
	defer r.Stop()
	assertNoCode(t, r)
}

func TestReader_CameraBusy(t *testing.T) {
	cam := NewFrameCamera("rear")
	first := NewReader(textDecoder{}, quietLogger(), cam)
	require.NoError(t, first.Start(context.Background(), ""))
	defer first.Stop()

	second := NewReader(textDecoder{}, quietLogger(), cam)
	err := second.Start(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCameraBusy)
	assert.True(t, IsDeviceFault(err))
	assert.Contains(t, Hint(err), "another app")
}

func TestReader_NoCamera(t *testing.T) {
	r := NewReader(textDecoder{}, quietLogger())
	err := r.Start(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoCamera)
	assert.NotEmpty(t, Hint(err))
}

type deniedCamera struct{}

func (deniedCamera) ID() string { return "front" }
func (deniedCamera) Open(ctx context.Context) (Stream, error) {
	return nil, ErrPermissionDenied
}

func TestReader_PermissionDenied(t *testing.T) {
	r := NewReader(textDecoder{}, quietLogger(), deniedCamera{})
	err := r.Start(context.Background(), "")

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "front", devErr.Device)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, Hint(err), "permission")
}

type torchCamera struct {
	*FrameCamera
	lit bool
}

func (c *torchCamera) SetTorch(on bool) error {
	c.lit = on
	return nil
}

func TestReader_SwitchAndTorch(t *testing.T) {
	rear := &torchCamera{FrameCamera: NewFrameCamera("rear")}
	front := NewFrameCamera("front")
	r := NewReader(textDecoder{}, quietLogger(), rear, front)

	assert.ErrorIs(t, r.SetTorch(true), ErrNotRunning)

	require.NoError(t, r.Start(context.Background(), "rear"))
	defer r.Stop()
	require.NoError(t, r.SetTorch(true))
	assert.True(t, rear.lit)
	assert.True(t, r.TorchOn())

	next, err := r.SwitchDevice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "front", next)
	assert.Equal(t, "front", r.ActiveDevice())
	assert.False(t, rear.IsOpen())
	assert.True(t, front.IsOpen())
	assert.False(t, r.TorchOn())

	err = r.SetTorch(true)
	assert.ErrorIs(t, err, ErrTorchUnsupported)
	assert.True(t, r.Running(), "an unsupported torch is not fatal")

	assert.Equal(t, "X1", pushUntilTaken(t, front, r, frame("X1")))
}

func TestReader_SwitchWithSingleCamera(t *testing.T) {
	cam := NewFrameCamera("only")
	r := NewReader(textDecoder{}, quietLogger(), cam)
	require.NoError(t, r.Start(context.Background(), ""))
	defer r.Stop()

	id, err := r.SwitchDevice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only", id)
	assert.True(t, cam.IsOpen())
}

type failingStream struct{}

func (failingStream) Next(ctx context.Context) (image.Image, error) {
	return nil, ErrCameraBusy
}
func (failingStream) Close() error { return nil }

type flakyCamera struct{}

func (flakyCamera) ID() string { return "usb" }
func (flakyCamera) Open(ctx context.Context) (Stream, error) {
	return failingStream{}, nil
}

func TestReader_ReportsCaptureFaults(t *testing.T) {
	r := NewReader(textDecoder{}, quietLogger(), flakyCamera{})
	require.NoError(t, r.Start(context.Background(), ""))
	defer r.Stop()

	select {
	case err := <-r.Faults():
		assert.ErrorIs(t, err, ErrCameraBusy)
	case <-time.After(2 * time.Second):
		t.Fatal("no fault reported")
	}
}

func TestReader_ConcurrentStartsLeaveNoCameraClaimed(t *testing.T) {
	for round := 0; round < 200; round++ {
		cams := make([]Camera, 8)
		frames := make([]*FrameCamera, 8)
		for i := range cams {
			frames[i] = NewFrameCamera(fmt.Sprintf("cam-%d", i))
			cams[i] = frames[i]
		}
		r := NewReader(textDecoder{}, quietLogger(), cams...)

		var start, wg sync.WaitGroup
		start.Add(1)
		for _, cam := range frames {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				start.Wait()
				_ = r.Start(context.Background(), id)
			}(cam.ID())
		}
		start.Done()
		wg.Wait()

		r.Stop()
		for _, cam := range frames {
			require.False(t, cam.IsOpen(), "round %d: %s still claimed after Stop", round, cam.ID())
		}
	}
}

func TestReader_SwitchKeepsOutstandingCodePaused(t *testing.T) {
	rear := NewFrameCamera("rear")
	front := NewFrameCamera("front")
	r := NewReader(textDecoder{}, quietLogger(), rear, front)
	require.NoError(t, r.Start(context.Background(), "rear"))
	defer r.Stop()

	assert.Equal(t, "HELD", pushUntilTaken(t, rear, r, frame("HELD")))

	// The consumer is still validating HELD when the camera changes.
	_, err := r.SwitchDevice(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Paused())

	require.True(t, front.Push(frame("NEXT")))
	assertNoCode(t, r)

	r.Resume()
	assert.Equal(t, "NEXT", pushUntilTaken(t, front, r, frame("NEXT")))
}
