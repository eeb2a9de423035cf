// Package session tracks active traveler conversations and serializes the
// turns of each traveler.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrEmptyUser = errors.New("user id is empty")
)

// Session is one traveler's conversation between idle expiries.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Transport      string    `json:"transport"`
	Status         Status    `json:"status"`
	ActiveTurnID   string    `json:"active_turn_id,omitempty"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Turn is an in-flight message for one traveler. End must be called once the
// message is handled.
type Turn struct {
	ID      string
	Session *Session
	// Started reports whether this turn opened a new session.
	Started bool

	once    sync.Once
	release func()
}

func (t *Turn) End() {
	if t == nil {
		return
	}
	t.once.Do(t.release)
}

type userLock struct {
	ch   chan struct{}
	refs int
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	locks             map[string]*userLock
	inactivityTimeout time.Duration
	serialize         bool
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		locks:             make(map[string]*userLock),
		inactivityTimeout: inactivityTimeout,
		serialize:         true,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetSerialize toggles the per-traveler turn lock. With it off, turns for the
// same traveler may run concurrently.
func (m *Manager) SetSerialize(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serialize = on
}

// Begin waits for the traveler's previous turn to finish, then opens a new
// turn on the traveler's active session, creating one if needed.
func (m *Manager) Begin(ctx context.Context, userID, transport string) (*Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUser
	}

	m.mu.RLock()
	serialize := m.serialize
	m.mu.RUnlock()

	var lock *userLock
	if serialize {
		var err error
		lock, err = m.acquire(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	turnID := uuid.NewString()
	now := time.Now().UTC()

	m.mu.Lock()
	s, started := m.activeLocked(userID, transport, now)
	s.ActiveTurnID = turnID
	s.Turns++
	s.LastActivityAt = now
	snapshot := clone(s)
	sessionID := s.ID
	m.mu.Unlock()

	t := &Turn{ID: turnID, Session: snapshot, Started: started}
	t.release = func() {
		m.finishTurn(sessionID, turnID)
		if lock != nil {
			<-lock.ch
			m.dropRef(userID, lock)
		}
	}
	return t, nil
}

func (m *Manager) activeLocked(userID, transport string, now time.Time) (*Session, bool) {
	if id, ok := m.sessionByUser[userID]; ok {
		if s, ok := m.sessions[id]; ok && s.Status == StatusActive {
			if transport != "" {
				s.Transport = transport
			}
			return s, false
		}
	}
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Transport:      transport,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s
	m.sessionByUser[userID] = s.ID
	return s, true
}

func (m *Manager) acquire(ctx context.Context, userID string) (*userLock, error) {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return l, nil
	case <-ctx.Done():
		m.dropRef(userID, l)
		return nil, ctx.Err()
	}
}

func (m *Manager) dropRef(userID string, l *userLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs <= 0 && m.locks[userID] == l {
		delete(m.locks, userID)
	}
}

func (m *Manager) finishTurn(sessionID, turnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if s.ActiveTurnID == turnID {
		s.ActiveTurnID = ""
	}
	s.LastActivityAt = time.Now().UTC()
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// ForUser returns the traveler's active session.
func (m *Manager) ForUser(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.ActiveTurnID = ""
	s.LastActivityAt = time.Now().UTC()
	if m.sessionByUser[s.UserID] == s.ID {
		delete(m.sessionByUser, s.UserID)
	}
	return clone(s), nil
}

// StartJanitor expires idle sessions until ctx is done. The returned channel
// is closed when the janitor goroutine exits.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
	return done
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions without an in-flight turn and drops them.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status == StatusEnded {
			delete(m.sessions, id)
			continue
		}
		if s.ActiveTurnID != "" || now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		if m.sessionByUser[s.UserID] == s.ID {
			delete(m.sessionByUser, s.UserID)
		}
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
