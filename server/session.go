package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geohead/incidentdash/dashboard"
)

var (
	errSessionNotFound = errors.New("session not found")
	errSessionLimit    = errors.New("session limit reached")
)

// session is one client's dashboard. mu serializes its recomputes.
type session struct {
	id   string
	mu   sync.Mutex
	dash *dashboard.Dashboard
	used time.Time
}

// sessions holds open dashboards. Idle ones expire after ttl; they are
// dropped when touched or swept on create.
type sessions struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu   sync.Mutex
	byID map[string]*session
}

func newSessions(ttl time.Duration, max int) *sessions {
	return &sessions{
		ttl:  ttl,
		max:  max,
		now:  time.Now,
		byID: make(map[string]*session),
	}
}

func (s *sessions) create(d *dashboard.Dashboard) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if len(s.byID) >= s.max {
		return nil, errSessionLimit
	}
	sess := &session{id: uuid.NewString(), dash: d, used: s.now()}
	s.byID[sess.id] = sess
	return sess, nil
}

func (s *sessions) get(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, errSessionNotFound
	}
	now := s.now()
	if now.Sub(sess.used) > s.ttl {
		delete(s.byID, id)
		return nil, errSessionNotFound
	}
	sess.used = now
	return sess, nil
}

func (s *sessions) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	return ok
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *sessions) sweepLocked() {
	now := s.now()
	for id, sess := range s.byID {
		if now.Sub(sess.used) > s.ttl {
			delete(s.byID, id)
		}
	}
}
