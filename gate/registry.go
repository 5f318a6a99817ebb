package gate

import (
	"log/slog"
	"sync"
	"time"

	"ticketgate-backend/checkin"
	"ticketgate-backend/scanner"
)

type key struct {
	session string
	event   string
}

// Registry holds the live gate sessions, one per device session and event.
// Feeds and tallies live only as long as their session.
type Registry struct {
	validator    *checkin.Validator
	decoder      func() scanner.Decoder
	notifier     Notifier
	feedCapacity int
	devices      []string
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[key]*Session
}

type RegistryConfig struct {
	FeedCapacity int
	Devices      []string
	// NewDecoder builds one decoder per session. Defaults to QR.
	NewDecoder func() scanner.Decoder
}

func NewRegistry(validator *checkin.Validator, notifier Notifier, cfg RegistryConfig, logger *slog.Logger) *Registry {
	newDecoder := cfg.NewDecoder
	if newDecoder == nil {
		newDecoder = func() scanner.Decoder { return scanner.NewQRDecoder() }
	}
	return &Registry{
		validator:    validator,
		decoder:      newDecoder,
		notifier:     notifier,
		feedCapacity: cfg.FeedCapacity,
		devices:      cfg.Devices,
		logger:       logger,
		sessions:     make(map[key]*Session),
	}
}

// Open returns the gate session for the device session and event, creating
// it on first use.
func (r *Registry) Open(sessionID, eventID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{sessionID, eventID}
	if s, ok := r.sessions[k]; ok {
		return s
	}
	s := newSession(sessionConfig{
		id:           sessionID,
		eventID:      eventID,
		validator:    r.validator,
		decoder:      r.decoder(),
		notifier:     r.notifier,
		feedCapacity: r.feedCapacity,
		devices:      r.devices,
		logger:       r.logger,
	})
	r.sessions[k] = s
	r.logger.Info("gate session opened", "session_id", sessionID, "event_id", eventID)
	return s
}

func (r *Registry) Get(sessionID, eventID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key{sessionID, eventID}]
	return s, ok
}

// CloseSession closes every gate the device session has open. It is called
// on logout.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	var closing []*Session
	for k, s := range r.sessions {
		if k.session == sessionID {
			closing = append(closing, s)
			delete(r.sessions, k)
		}
	}
	r.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
}

// CloseIdle closes sessions with no activity since before cutoff and
// returns how many were closed.
func (r *Registry) CloseIdle(cutoff time.Time) int {
	r.mu.Lock()
	var closing []*Session
	for k, s := range r.sessions {
		if s.lastActive().Before(cutoff) && !s.hasSubscribers() {
			closing = append(closing, s)
			delete(r.sessions, k)
		}
	}
	r.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
	return len(closing)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[key]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
