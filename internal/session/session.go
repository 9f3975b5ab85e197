package session

import (
	"sync"
	"time"
)

// Session is a user's in-progress conversation: which kind, which step, and
// the answers collected so far.
type Session struct {
	Kind      string
	Step      int
	Fields    map[string]any
	UpdatedAt time.Time
}

func (s *Session) clone() Session {
	out := *s
	out.Fields = make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	return out
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Store keeps conversation progress per user in memory. Nothing is
// persisted; a restart drops every in-flight conversation.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]*userLock
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store whose sessions expire after ttl without
// activity. A zero ttl keeps sessions until they are cleared.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]*userLock),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lock serializes work on one user's conversation. Messages from different
// users never wait on each other. The returned func releases the lock.
func (s *Store) Lock(userID int64) (unlock func()) {
	s.mu.Lock()
	l := s.locks[userID]
	if l == nil {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// Get returns a copy of the user's active session.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	if s.expired(sess, s.now()) {
		delete(s.sessions, userID)
		return Session{}, false
	}
	return sess.clone(), true
}

// Begin starts a fresh session of kind at step 0, replacing whatever the
// user had in progress.
func (s *Store) Begin(userID int64, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = &Session{
		Kind:      kind,
		Fields:    make(map[string]any),
		UpdatedAt: s.now(),
	}
}

// SetStep moves the session to step. It reports false when the user has no
// active session.
func (s *Store) SetStep(userID int64, step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(userID)
	if !ok {
		return false
	}
	sess.Step = step
	sess.UpdatedAt = s.now()
	return true
}

// PutField records an answer. It reports false when the user has no
// active session.
func (s *Store) PutField(userID int64, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(userID)
	if !ok {
		return false
	}
	sess.Fields[key] = value
	sess.UpdatedAt = s.now()
	return true
}

// Clear ends the user's session, if any.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Sweep drops every session idle for longer than the ttl and returns how
// many were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired ones included until
// the next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live must be called with mu held.
func (s *Store) live(userID int64) (*Session, bool) {
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	if s.expired(sess, s.now()) {
		delete(s.sessions, userID)
		return nil, false
	}
	return sess, true
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.UpdatedAt) > s.ttl
}
