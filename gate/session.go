// Package gate runs one scanning session per gate device: decoded codes
// flow from the scanner into the validator, and each outcome lands in the
// device's feed and is announced to its listeners.
package gate

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"ticketgate-backend/checkin"
	"ticketgate-backend/models"
	"ticketgate-backend/scanner"
)

// VibratePulse is the haptic pulse sent with every outcome.
const VibratePulse = 200 * time.Millisecond

// DefaultDevices are the cameras a gate device may upload frames for.
var DefaultDevices = []string{"rear", "front"}

// Notifier hears about successful check-ins. Failures are logged only.
type Notifier interface {
	TicketValidated(ctx context.Context, eventID string, outcome models.ScanOutcome) error
}

// Cue is the operator signal for one outcome.
type Cue struct {
	Speech    string `json:"speech,omitempty"`
	VibrateMs int    `json:"vibrate_ms"`
	Muted     bool   `json:"muted"`
}

// Update is pushed to listeners after every outcome or device fault.
type Update struct {
	Outcome *models.ScanOutcome `json:"outcome,omitempty"`
	Cue     *Cue                `json:"cue,omitempty"`
	Tally   models.Tally        `json:"tally"`
	Fault   string              `json:"fault,omitempty"`
	Hint    string              `json:"hint,omitempty"`
}

// ScannerState is the camera status shown to the operator.
type ScannerState struct {
	Running bool   `json:"running"`
	Paused  bool   `json:"paused"`
	Device  string `json:"device"`
	TorchOn bool   `json:"torch_on"`
	Muted   bool   `json:"muted"`
}

var ErrUnknownDevice = errors.New("unknown camera device")

type Session struct {
	ID      string
	EventID string

	validator *checkin.Validator
	feed      *checkin.Feed
	reader    *scanner.Reader
	cameras   map[string]*scanner.FrameCamera
	notifier  Notifier
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// scanMu serializes validations so the feed is ordered by completion.
	scanMu sync.Mutex

	mu       sync.Mutex
	muted    bool
	subs     map[chan Update]struct{}
	lastSeen time.Time

	pumpDone chan struct{}

	bg sync.WaitGroup
}

type sessionConfig struct {
	id, eventID  string
	validator    *checkin.Validator
	decoder      scanner.Decoder
	notifier     Notifier
	feedCapacity int
	devices      []string
	logger       *slog.Logger
}

func newSession(cfg sessionConfig) *Session {
	devices := cfg.devices
	if len(devices) == 0 {
		devices = DefaultDevices
	}
	cameras := make(map[string]*scanner.FrameCamera, len(devices))
	list := make([]scanner.Camera, 0, len(devices))
	for _, id := range devices {
		cam := scanner.NewFrameCamera(id)
		cameras[id] = cam
		list = append(list, cam)
	}

	logger := cfg.logger.With("session_id", cfg.id, "event_id", cfg.eventID)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        cfg.id,
		EventID:   cfg.eventID,
		validator: cfg.validator,
		feed:      checkin.NewFeed(cfg.feedCapacity),
		reader:    scanner.NewReader(cfg.decoder, logger, list...),
		cameras:   cameras,
		notifier:  cfg.notifier,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[chan Update]struct{}),
		lastSeen:  time.Now(),
		pumpDone:  make(chan struct{}),
	}
	go s.pump()
	return s
}

// Submit validates a code that did not come through the server-side
// reader: typed in by the operator, or decoded on the device. It takes the
// same path as camera scans but never touches the camera.
func (s *Session) Submit(ctx context.Context, code, source string) models.ScanOutcome {
	s.touch()
	if source != models.SourceCamera {
		source = models.SourceManual
	}
	return s.handle(ctx, code, source)
}

func (s *Session) handle(ctx context.Context, code, source string) models.ScanOutcome {
	s.scanMu.Lock()
	outcome := s.validator.Validate(ctx, s.EventID, code)
	outcome.Source = source
	s.feed.Append(outcome)
	s.scanMu.Unlock()

	cue := s.cueFor(outcome)
	s.broadcast(Update{Outcome: &outcome, Cue: &cue, Tally: s.feed.Tally()})

	if outcome.Status == models.ScanValid && s.notifier != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.notifier.TicketValidated(nctx, s.EventID, outcome); err != nil {
				s.logger.Warn("failed to publish check-in", "code", outcome.TicketCode, "error", err)
			}
		}()
	}
	return outcome
}

func (s *Session) cueFor(o models.ScanOutcome) Cue {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()

	cue := Cue{VibrateMs: int(VibratePulse / time.Millisecond), Muted: muted}
	if muted {
		return cue
	}
	switch o.Status {
	case models.ScanValid:
		cue.Speech = "Entry valid. " + o.TierName
	case models.ScanAlreadyUsed:
		cue.Speech = "Already used"
	case models.ScanWrongEvent:
		cue.Speech = "Wrong event"
	case models.ScanInvalid:
		cue.Speech = "Invalid ticket"
	default:
		cue.Speech = "Error"
	}
	return cue
}

// StartScanner claims a camera and starts feeding decoded codes to the
// validator. The reader stays paused while a code is being validated.
func (s *Session) StartScanner(device string) error {
	s.touch()
	return s.reader.Start(s.ctx, device)
}

// pump moves decoded codes from the reader into the validator for the
// lifetime of the session.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for {
		select {
		case code := <-s.reader.Codes():
			// Validation runs on the session context so that stopping the
			// camera does not abandon a check-in already underway.
			s.handle(s.ctx, code, models.SourceCamera)
			s.reader.Resume()
		case err := <-s.reader.Faults():
			s.logger.Warn("camera fault", "error", err)
			s.reader.Stop()
			s.broadcast(Update{Fault: err.Error(), Hint: scanner.Hint(err), Tally: s.feed.Tally()})
		case <-s.ctx.Done():
			return
		}
	}
}

// StopScanner releases the camera. A validation already underway still
// commits.
func (s *Session) StopScanner() {
	s.touch()
	s.reader.Stop()
}

// PushFrame hands an uploaded frame to the camera it came from. An empty
// device means the active camera.
func (s *Session) PushFrame(device string, img image.Image) error {
	s.touch()
	if device == "" {
		device = s.reader.ActiveDevice()
	}
	cam, ok := s.cameras[device]
	if !ok {
		return ErrUnknownDevice
	}
	if !cam.Push(img) {
		return scanner.ErrNotRunning
	}
	return nil
}

// SwitchCamera moves to the next camera, restarting capture on it when the
// scanner was running.
func (s *Session) SwitchCamera() (string, error) {
	s.touch()
	return s.reader.SwitchDevice(s.ctx)
}

func (s *Session) SetTorch(on bool) error {
	s.touch()
	return s.reader.SetTorch(on)
}

func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Session) State() ScannerState {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()
	return ScannerState{
		Running: s.reader.Running(),
		Paused:  s.reader.Paused(),
		Device:  s.reader.ActiveDevice(),
		TorchOn: s.reader.TorchOn(),
		Muted:   muted,
	}
}

func (s *Session) Recent() []models.ScanOutcome {
	return s.feed.Recent()
}

func (s *Session) Tally() models.Tally {
	return s.feed.Tally()
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Slow listeners miss updates rather than stall scanning.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Session) broadcast(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close stops the camera, ends all subscriptions and waits for pending
// notifications.
func (s *Session) Close() {
	s.reader.Stop()
	s.cancel()
	<-s.pumpDone

	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.bg.Wait()
}

func (s *Session) hasSubscribers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}
