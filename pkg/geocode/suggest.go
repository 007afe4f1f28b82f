package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrSuperseded is returned to a Suggest call replaced by a newer one.
var ErrSuperseded = errors.New("suggestion superseded")

// Suggester runs type-ahead searches with at most one request in flight.
// Each call cancels the previous one, whose results are discarded. An
// optional delay debounces bursts of keystrokes.
type Suggester struct {
	searcher Searcher
	delay    time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewSuggester(s Searcher, delay time.Duration) *Suggester {
	return &Suggester{searcher: s, delay: delay}
}

// Suggest searches for query unless a newer call arrives first. An empty
// query cancels any outstanding search and returns ErrEmptyQuery.
func (s *Suggester) Suggest(ctx context.Context, query string) ([]Candidate, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	mine := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.seq == mine {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, s.outcome(ctx, mine)
		case <-timer.C:
		}
	}

	results, err := s.searcher.Search(ctx, query)
	if s.superseded(mine) {
		return nil, ErrSuperseded
	}
	return results, err
}

// Cancel abandons any outstanding search.
func (s *Suggester) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}

func (s *Suggester) superseded(mine uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq != mine
}

func (s *Suggester) outcome(ctx context.Context, mine uint64) error {
	if s.superseded(mine) {
		return ErrSuperseded
	}
	return ctx.Err()
}
