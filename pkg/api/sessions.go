package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"multicab_router/pkg/geocode"
	"multicab_router/pkg/present"
)

// Session is one browser's search state plus the recorder its map commands
// are collected in.
type Session struct {
	id      string
	search  *present.SearchSession
	rec     *present.Recorder
	suggest *geocode.Suggester

	lastSeen time.Time
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// SessionStore keeps search sessions in memory and evicts idle ones.
type SessionStore struct {
	planner  present.Planner
	searcher geocode.Searcher
	debounce time.Duration
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates a store. searcher may be nil, which disables
// suggestions. idle <= 0 keeps sessions forever.
func NewSessionStore(planner present.Planner, searcher geocode.Searcher, debounce, idle time.Duration) *SessionStore {
	return &SessionStore{
		planner:  planner,
		searcher: searcher,
		debounce: debounce,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session with every route layer added and hidden.
func (s *SessionStore) Create() *Session {
	rec := present.NewRecorder()
	sess := &Session{
		id:     uuid.NewString(),
		search: present.NewSearchSession(s.planner, rec),
		rec:    rec,
	}
	sess.search.Open()
	if s.searcher != nil {
		sess.suggest = geocode.NewSuggester(s.searcher, s.debounce)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.lastSeen = s.now()
	s.sessions[sess.id] = sess
	return sess
}

// Get returns a live session and marks it as used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(sess, now) {
		s.remove(sess)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

// Delete ends a session.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		s.remove(sess)
	}
	return ok
}

// Len returns the number of sessions held.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, sess := range s.sessions {
		if s.expired(sess, now) {
			s.remove(sess)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx ends.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("Evicted %d idle sessions", n)
			}
		}
	}
}

func (s *SessionStore) expired(sess *Session, now time.Time) bool {
	return s.idle > 0 && now.Sub(sess.lastSeen) > s.idle
}

func (s *SessionStore) remove(sess *Session) {
	if sess.suggest != nil {
		sess.suggest.Cancel()
	}
	delete(s.sessions, sess.id)
}
