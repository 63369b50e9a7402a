// Package session holds the client's authentication state, the controller
// that drives it, and the guard that gates protected routes on it.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
)

// State is the derived phase of a Session
type State string

const (
	StateUninitialized State = "uninitialized"
	StateValidating    State = "validating"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Session is an immutable snapshot of the authentication state
type Session struct {
	Token   string
	User    *client.User
	Loading bool

	initialized bool
}

// State derives the phase from the snapshot
func (s Session) State() State {
	switch {
	case !s.initialized:
		return StateUninitialized
	case s.Loading:
		return StateValidating
	case s.User != nil:
		return StateAuthenticated
	default:
		return StateAnonymous
	}
}

// Authenticated reports whether a validated user is present
func (s Session) Authenticated() bool {
	return s.User != nil
}

// Slot is the persisted bearer-token entry
type Slot interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// Subscriber receives every new snapshot, synchronously
type Subscriber func(Session)

var ErrUserWithoutToken = errors.New("session: user requires a token")

// Store owns the current Session and the persisted token slot. Every
// mutation is one atomic replace followed by synchronous delivery to
// subscribers, in mutation order. Slot writes happen under the same lock
// as the in-memory replace, so the persisted token and the session never
// disagree once a mutation returns. Subscribers must not mutate the store.
type Store struct {
	slot   Slot
	logger zerolog.Logger

	publishMu sync.Mutex

	mu      sync.RWMutex
	current Session
	epoch   uint64
	subs    map[int]Subscriber
	nextSub int
}

// NewStore creates an empty, uninitialized store
func NewStore(slot Slot, logger zerolog.Logger) *Store {
	return &Store{
		slot:   slot,
		logger: logger,
		subs:   make(map[int]Subscriber),
	}
}

// Snapshot returns the current session
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token returns the current bearer token
func (s *Store) Token() string {
	return s.Snapshot().Token
}

// Epoch changes whenever the session changes identity: a sign-in, a
// sign-out, or an invalidation.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Subscribe registers fn and returns a function that removes it
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Init loads the persisted token. With a token the session enters the
// validating phase; without one it is anonymous. Init returns the token.
func (s *Store) Init() (string, error) {
	token, err := s.slot.Load()
	if err != nil {
		// an unreadable slot is treated as empty
		s.apply(func(cur Session) (Session, bool, bool) {
			return Session{initialized: true}, true, false
		})
		return "", fmt.Errorf("failed to load persisted token: %w", err)
	}

	s.apply(func(cur Session) (Session, bool, bool) {
		return Session{Token: token, Loading: token != "", initialized: true}, true, false
	})
	return token, nil
}

// Set persists token and replaces the session with {token, user}
func (s *Store) Set(token string, user *client.User) error {
	if token == "" && user != nil {
		return ErrUserWithoutToken
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	return s.setLocked(token, user)
}

// SetIfEpoch is Set guarded against the store having changed identity
// since epoch was read. It reports whether the write happened.
func (s *Store) SetIfEpoch(epoch uint64, token string, user *client.User) (bool, error) {
	if token == "" && user != nil {
		return false, ErrUserWithoutToken
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if s.Epoch() != epoch {
		return false, nil
	}
	if err := s.setLocked(token, user); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) setLocked(token string, user *client.User) error {
	if err := s.slot.Save(token); err != nil {
		return err
	}
	s.replaceLocked(Session{Token: token, User: user, initialized: true}, true)
	return nil
}

// Hydrate attaches user to the session if token is still the current
// token, ending the validating phase. Stale results are dropped.
func (s *Store) Hydrate(token string, user *client.User) bool {
	return s.apply(func(cur Session) (Session, bool, bool) {
		if cur.Token == "" || cur.Token != token {
			return cur, false, false
		}
		return Session{Token: token, User: user, initialized: true}, true, false
	})
}

// FinishLoading ends the validating phase without changing the user
func (s *Store) FinishLoading() {
	s.apply(func(cur Session) (Session, bool, bool) {
		if !cur.Loading {
			return cur, false, false
		}
		cur.Loading = false
		return cur, true, false
	})
}

// Clear deletes the persisted token and empties the session. Clearing an
// empty store changes nothing and notifies nobody; the return value
// reports whether anything was cleared.
func (s *Store) Clear() (bool, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	err := s.slot.Delete()
	cur := s.Snapshot()
	if cur.Token == "" && cur.User == nil && !cur.Loading && cur.initialized {
		return false, err
	}
	s.replaceLocked(Session{initialized: true}, true)
	return true, err
}

// InvalidateToken clears the session only if token is still current, so a
// late rejection of an old token cannot sign out a newer session.
func (s *Store) InvalidateToken(token string) bool {
	if token == "" {
		return false
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	cur := s.Snapshot()
	if cur.Token != token {
		return false
	}
	if err := s.slot.Delete(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete rejected token from keychain")
	}
	s.replaceLocked(Session{initialized: true}, true)
	return true
}

// apply runs fn against the current session and publishes the result.
// fn returns the next session, whether it differs, and whether the
// change is an identity change.
func (s *Store) apply(fn func(Session) (Session, bool, bool)) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	next, changed, identity := fn(s.Snapshot())
	if !changed {
		return false
	}
	s.replaceLocked(next, identity)
	return true
}

// replaceLocked swaps the session and notifies subscribers. publishMu
// must be held.
func (s *Store) replaceLocked(next Session, identity bool) {
	s.mu.Lock()
	s.current = next
	if identity {
		s.epoch++
	}
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}
