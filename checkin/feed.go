package checkin

import (
	"sync"

	"ticketgate-backend/models"
)

const DefaultFeedCapacity = 10

// Feed keeps the most recent scan outcomes of one gate session in a ring
// buffer, plus a running tally. Nothing is persisted.
type Feed struct {
	mu    sync.Mutex
	buf   []models.ScanOutcome
	head  int // next slot to write
	size  int
	tally models.Tally
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{buf: make([]models.ScanOutcome, capacity)}
}

// Append records an outcome, evicting the oldest when full.
func (f *Feed) Append(o models.ScanOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf[f.head] = o
	f.head = (f.head + 1) % len(f.buf)
	if f.size < len(f.buf) {
		f.size++
	}

	f.tally.Scans++
	if o.Status == models.ScanValid {
		f.tally.Valid++
	}
}

// Recent returns the retained outcomes, most recent first.
func (f *Feed) Recent() []models.ScanOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.ScanOutcome, f.size)
	n := len(f.buf)
	for i := 0; i < f.size; i++ {
		out[i] = f.buf[(f.head-1-i+n)%n]
	}
	return out
}

func (f *Feed) Tally() models.Tally {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tally
}

func (f *Feed) Capacity() int {
	return len(f.buf)
}

func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.buf {
		f.buf[i] = models.ScanOutcome{}
	}
	f.head = 0
	f.size = 0
	f.tally = models.Tally{}
}
