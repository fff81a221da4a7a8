// Package session owns the browser session's API token. It is the only writer
// of persisted session state; everything else reads through it or subscribes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "casasweb/internal/log"
)

var (
	ErrNoSession  = errors.New("session id is required")
	ErrEmptyToken = errors.New("token is required")
)

// Persister is the storage behind the store. repos.SessionRepo implements it.
type Persister interface {
	SaveToken(sid, token string) error
	ClearToken(sid string) error
	Token(sid string) (string, error)
	Authenticated() ([]string, error)
}

// Change is delivered to subscribers whenever a session's authentication flips.
type Change struct {
	SID           string
	Authenticated bool
}

type subscriber struct {
	sid string
	fn  func(Change)
}

type Store struct {
	repo Persister

	// writeMu serializes Login and Logout.
	writeMu sync.Mutex

	mu       sync.Mutex
	observed map[string]bool // sids last seen authenticated
	subs     map[int]subscriber
	nextSub  int
}

// Open builds a store and derives the initial state from what is persisted.
func Open(repo Persister) (*Store, error) {
	s := &Store{
		repo:     repo,
		observed: map[string]bool{},
		subs:     map[int]subscriber{},
	}
	ids, err := repo.Authenticated()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, id := range ids {
		s.observed[id] = true
	}
	return s, nil
}

func (s *Store) Login(sid, token string) error {
	if sid == "" {
		return ErrNoSession
	}
	if token == "" {
		return ErrEmptyToken
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.repo.SaveToken(sid, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.observe(sid, true)
	return nil
}

func (s *Store) Logout(sid string) error {
	if sid == "" {
		return ErrNoSession
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.repo.ClearToken(sid); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.observe(sid, false)
	return nil
}

// Token re-derives the session from storage and returns its token ("" when
// signed out). A difference from the last observed state is published.
func (s *Store) Token(sid string) (string, error) {
	if sid == "" {
		return "", nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tok, err := s.repo.Token(sid)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	s.observe(sid, tok != "")
	return tok, nil
}

// IsAuthenticated reports whether sid holds a token. Storage errors read as false.
func (s *Store) IsAuthenticated(sid string) bool {
	tok, err := s.Token(sid)
	return err == nil && tok != ""
}

// Subscribe registers fn for changes to sid, or to every session when sid is "".
// The returned func cancels the subscription.
func (s *Store) Subscribe(sid string, fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{sid: sid, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Refresh compares every persisted session with the observed state and
// publishes the differences. It picks up writes made by other processes.
// It holds the writer lock so a Login or Logout cannot land between the
// snapshot and the comparison.
func (s *Store) Refresh() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ids, err := s.repo.Authenticated()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	current := make(map[string]bool, len(ids))
	for _, id := range ids {
		current[id] = true
	}

	s.mu.Lock()
	var gone []string
	for id := range s.observed {
		if !current[id] {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()

	for _, id := range gone {
		s.observe(id, false)
	}
	for id := range current {
		s.observe(id, true)
	}
	return nil
}

// Watch calls Refresh every interval until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Refresh(); err != nil {
				applog.Error(nil, "session.watch.fail", err, nil)
			}
		}
	}
}

func (s *Store) observe(sid string, authenticated bool) {
	s.mu.Lock()
	prev := s.observed[sid]
	if authenticated {
		s.observed[sid] = true
	} else {
		delete(s.observed, sid)
	}
	if prev == authenticated {
		s.mu.Unlock()
		return
	}
	var fns []func(Change)
	for _, sub := range s.subs {
		if sub.sid == "" || sub.sid == sid {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	ch := Change{SID: sid, Authenticated: authenticated}
	for _, fn := range fns {
		fn(ch)
	}
}
