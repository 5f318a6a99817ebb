package gate

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate-backend/checkin"
	"ticketgate-backend/models"
	"ticketgate-backend/scanner"
	"ticketgate-backend/store"
)

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
		return "", scanner.ErrNoCode
	}
	return f.text, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []models.ScanOutcome
	err  error
}

func (n *recordingNotifier) TicketValidated(ctx context.Context, eventID string, o models.ScanOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, o)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, n Notifier) (*Registry, *store.Memory) {
	t.Helper()
	vip := "VIP"
	m := store.NewMemory()
	m.PutTicket(models.Ticket{ID: "t1", EventID: "E1", TicketCode: "ABC123-XYZ789", AttendeeName: "Ada Lovelace", TierName: &vip})
	m.PutTicket(models.Ticket{ID: "t2", EventID: "E1", TicketCode: "GEN-0001", AttendeeName: "Grace Hopper"})
	m.PutTicket(models.Ticket{ID: "t3", EventID: "E2", TicketCode: "OTHER-0001", AttendeeName: "Alan Turing"})

	v := checkin.NewValidator(m, discardLogger())
	r := NewRegistry(v, n, RegistryConfig{
		NewDecoder: func() scanner.Decoder { return textDecoder{} },
	}, discardLogger())
	t.Cleanup(r.Close)
	return r, m
}

func nextUpdate(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an update")
		return Update{}
	}
}

// pushUntilOutcome offers a frame until an outcome arrives.
func pushUntilOutcome(t *testing.T, s *Session, ch <-chan Update, img image.Image) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		_ = s.PushFrame("", img)
		select {
		case u := <-ch:
			return u
		case <-deadline:
			t.Fatal("timed out waiting for a camera outcome")
			return Update{}
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitValidRecordsAndCues(t *testing.T) {
	n := &recordingNotifier{}
	r, m := newRegistry(t, n)
	s := r.Open("sess-1", "E1")
	updates, cancel := s.Subscribe()
	defer cancel()

	out := s.Submit(context.Background(), "  ABC123-XYZ789 ", models.SourceManual)
	assert.Equal(t, models.ScanValid, out.Status)
	assert.Equal(t, models.SourceManual, out.Source)
	assert.Equal(t, "VIP", out.TierName)

	u := nextUpdate(t, updates)
	require.NotNil(t, u.Cue)
	assert.Equal(t, "Entry valid. VIP", u.Cue.Speech)
	assert.Equal(t, 200, u.Cue.VibrateMs)
	assert.Equal(t, models.Tally{Scans: 1, Valid: 1}, u.Tally)

	ticket, _ := m.Ticket("t1")
	assert.True(t, ticket.Validated)

	s.Close()
	assert.Equal(t, 1, n.count())
}

func TestSubmitOutcomesFillFeedNewestFirst(t *testing.T) {
	r, _ := newRegistry(t, &recordingNotifier{})
	s := r.Open("sess-1", "E1")
	ctx := context.Background()

	s.Submit(ctx, "GEN-0001", models.SourceManual)
	s.Submit(ctx, "GEN-0001", models.SourceManual)
	s.Submit(ctx, "OTHER-0001", models.SourceManual)
	s.Submit(ctx, "NOPE", models.SourceManual)

	recent := s.Recent()
	require.Len(t, recent, 4)
	assert.Equal(t, models.ScanInvalid, recent[0].Status)
	assert.Equal(t, models.ScanWrongEvent, recent[1].Status)
	assert.Equal(t, "Alan Turing", recent[1].AttendeeName)
	assert.Equal(t, models.ScanAlreadyUsed, recent[2].Status)
	assert.Equal(t, models.ScanValid, recent[3].Status)
	assert.Equal(t, models.Tally{Scans: 4, Valid: 1}, s.Tally())
}

func TestCueSpeechPerStatus(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")

	cases := map[models.ScanStatus]string{
		models.ScanAlreadyUsed: "Already used",
		models.ScanWrongEvent:  "Wrong event",
		models.ScanInvalid:     "Invalid ticket",
		models.ScanError:       "Error",
	}
	for status, speech := range cases {
		cue := s.cueFor(models.ScanOutcome{Status: status})
		assert.Equal(t, speech, cue.Speech, status)
	}
}

func TestMutedSuppressesSpeechButKeepsVibration(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")
	s.SetMuted(true)

	cue := s.cueFor(models.ScanOutcome{Status: models.ScanValid, TierName: "General"})
	assert.Empty(t, cue.Speech)
	assert.True(t, cue.Muted)
	assert.Equal(t, 200, cue.VibrateMs)
	assert.True(t, s.State().Muted)
}

func TestNotifierFailureDoesNotAffectOutcome(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	r, m := newRegistry(t, n)
	s := r.Open("sess-1", "E1")

	out := s.Submit(context.Background(), "GEN-0001", models.SourceManual)
	assert.Equal(t, models.ScanValid, out.Status)
	s.Close()

	assert.Equal(t, 1, n.count())
	ticket, _ := m.Ticket("t2")
	assert.True(t, ticket.Validated)
}

func TestCameraScanFlowsThroughValidator(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")
	updates, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.StartScanner("rear"))
	assert.True(t, s.State().Running)
	assert.Equal(t, "rear", s.State().Device)

	u := pushUntilOutcome(t, s, updates, frame("GEN-0001"))
	require.NotNil(t, u.Outcome)
	assert.Equal(t, models.ScanValid, u.Outcome.Status)
	assert.Equal(t, models.SourceCamera, u.Outcome.Source)

	// The same code held in front of the camera again is already used.
	u = pushUntilOutcome(t, s, updates, frame("GEN-0001"))
	require.NotNil(t, u.Outcome)
	assert.Equal(t, models.ScanAlreadyUsed, u.Outcome.Status)

	s.StopScanner()
	assert.False(t, s.State().Running)
	assert.ErrorIs(t, s.PushFrame("rear", frame("GEN-0001")), scanner.ErrNotRunning)
}

func TestSwitchCameraCyclesDevices(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")

	require.NoError(t, s.StartScanner("rear"))
	next, err := s.SwitchCamera()
	require.NoError(t, err)
	assert.Equal(t, "front", next)
	assert.True(t, s.State().Running)

	next, err = s.SwitchCamera()
	require.NoError(t, err)
	assert.Equal(t, "rear", next)
}

func TestTorchUnsupportedIsNotFatal(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")
	require.NoError(t, s.StartScanner(""))

	err := s.SetTorch(true)
	assert.ErrorIs(t, err, scanner.ErrTorchUnsupported)
	assert.True(t, s.State().Running)
	assert.False(t, s.State().TorchOn)
}

func TestPushFrameUnknownDevice(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")
	assert.ErrorIs(t, s.PushFrame("side", frame("x")), ErrUnknownDevice)
}

func TestRegistryKeysByDeviceSessionAndEvent(t *testing.T) {
	r, _ := newRegistry(t, nil)

	a := r.Open("sess-1", "E1")
	assert.Same(t, a, r.Open("sess-1", "E1"))
	b := r.Open("sess-1", "E2")
	c := r.Open("sess-2", "E1")
	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, r.Len())

	a.Submit(context.Background(), "GEN-0001", models.SourceManual)
	assert.Equal(t, 1, a.Tally().Scans)
	assert.Equal(t, 0, c.Tally().Scans)

	r.CloseSession("sess-1")
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("sess-1", "E1")
	assert.False(t, ok)
	_, ok = r.Get("sess-2", "E1")
	assert.True(t, ok)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	r, _ := newRegistry(t, nil)
	s := r.Open("sess-1", "E1")
	updates, _ := s.Subscribe()

	r.CloseSession("sess-1")
	_, open := <-updates
	assert.False(t, open)
}

func TestCloseIdle(t *testing.T) {
	r, _ := newRegistry(t, nil)
	r.Open("sess-1", "E1")

	assert.Equal(t, 0, r.CloseIdle(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, r.CloseIdle(time.Now().Add(time.Second)))
	assert.Equal(t, 0, r.Len())
}
