// Package manage keeps the state of the "my listings" screen for each browser
// session: the single create/edit form, the listing collection and the notice
// shown above them.
//
// The collection is only ever replaced by a full re-fetch after the API has
// confirmed a change. Fetches are sequenced so an older response that arrives
// late never overwrites a newer one.
package manage

import (
	"context"
	"errors"
	"sync"
	"time"

	"casasweb/internal/apiclient"
	"casasweb/internal/domain"
	"casasweb/internal/validate"
)

var (
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	ErrNotConfirmed   = errors.New("deletion was not confirmed")
	ErrUnknownListing = errors.New("listing is not in the current collection")
	// ErrRefresh wraps a failed re-fetch that followed a successful change.
	ErrRefresh = errors.New("listing refresh failed")
)

// ListingClient is the authenticated part of the remote API.
type ListingClient interface {
	ListMine(ctx context.Context, token string) ([]domain.Listing, error)
	Create(ctx context.Context, token string, in domain.ListingInput) (domain.Listing, error)
	Update(ctx context.Context, token, id string, in domain.ListingInput) (domain.Listing, error)
	Delete(ctx context.Context, token, id string) error
}

type Mode int

const (
	ModeCreate Mode = iota
	ModeEditing
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is the banner above the form. A zero ExpiresAt never expires.
type Notice struct {
	Kind      NoticeKind
	Text      string
	ExpiresAt time.Time
}

// View is a render-ready copy of one session's state.
type View struct {
	Listings   []domain.Listing
	Draft      domain.Draft
	EditingID  string
	Mode       Mode
	Errors     validate.Errors
	Notice     *Notice
	Submitting bool
}

type state struct {
	draft      domain.Draft
	editingID  string
	listings   []domain.Listing
	errors     validate.Errors
	notice     *Notice
	submitting bool
	fetchSeq   uint64
	appliedSeq uint64
	lastSeen   time.Time
}

type Manager struct {
	client    ListingClient
	noticeTTL time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*state
}

type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(client ListingClient, noticeTTL time.Duration, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		noticeTTL: noticeTTL,
		now:       time.Now,
		states:    map[string]*state{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// stateLocked returns sid's state, creating it. m.mu must be held.
func (m *Manager) stateLocked(sid string) *state {
	st, ok := m.states[sid]
	if !ok {
		st = &state{}
		m.states[sid] = st
	}
	st.lastSeen = m.now()
	return st
}

// Load re-fetches the collection and returns the resulting view.
func (m *Manager) Load(ctx context.Context, sid, token string) (View, error) {
	if err := m.refresh(ctx, sid, token); err != nil {
		m.setNotice(sid, m.errorNotice(err))
		return m.View(sid), err
	}
	return m.View(sid), nil
}

func (m *Manager) refresh(ctx context.Context, sid, token string) error {
	m.mu.Lock()
	st := m.stateLocked(sid)
	st.fetchSeq++
	seq := st.fetchSeq
	m.mu.Unlock()

	ls, err := m.client.ListMine(ctx, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[sid] != st {
		// Forgotten while the request was in flight.
		return nil
	}
	if seq > st.appliedSeq {
		st.listings = ls
		st.appliedSeq = seq
	}
	return nil
}

// Select puts the form in edit mode for listing id.
func (m *Manager) Select(sid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(sid)
	for _, l := range st.listings {
		if l.ID == id {
			st.draft = domain.DraftFromListing(l)
			st.editingID = id
			st.errors = nil
			return nil
		}
	}
	return ErrUnknownListing
}

// Cancel leaves edit mode and clears the form.
func (m *Manager) Cancel(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(sid)
	st.draft = domain.Draft{}
	st.editingID = ""
	st.errors = nil
}

// Submit creates a listing, or updates the one being edited. Invalid drafts
// return validate.Errors without touching the network. On failure the draft
// and mode are kept so the user can retry.
func (m *Manager) Submit(ctx context.Context, sid, token string, d domain.Draft) error {
	m.mu.Lock()
	st := m.stateLocked(sid)
	if st.submitting {
		m.mu.Unlock()
		return ErrSubmitInFlight
	}
	st.draft = d
	in, errs := validate.Draft(d)
	if errs != nil {
		st.errors = errs
		m.mu.Unlock()
		return errs
	}
	st.errors = nil
	st.submitting = true
	editingID := st.editingID
	m.mu.Unlock()

	var err error
	if editingID == "" {
		_, err = m.client.Create(ctx, token, in)
	} else {
		_, err = m.client.Update(ctx, token, editingID, in)
	}
	if err != nil {
		m.mu.Lock()
		st.submitting = false
		st.notice = m.errorNotice(err)
		m.mu.Unlock()
		return err
	}

	refreshErr := m.refresh(ctx, sid, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	st.submitting = false
	st.draft = domain.Draft{}
	st.editingID = ""
	text := "Listing added"
	if editingID != "" {
		text = "Listing updated"
	}
	st.notice = m.successNotice(text)
	if refreshErr != nil {
		st.notice = m.errorNotice(refreshErr)
		return errors.Join(ErrRefresh, refreshErr)
	}
	return nil
}

// Delete removes listing id once the user has confirmed. The form state is left as is.
func (m *Manager) Delete(ctx context.Context, sid, token, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := m.client.Delete(ctx, token, id); err != nil {
		m.setNotice(sid, m.errorNotice(err))
		return err
	}
	if err := m.refresh(ctx, sid, token); err != nil {
		m.setNotice(sid, m.errorNotice(err))
		return errors.Join(ErrRefresh, err)
	}
	m.setNotice(sid, m.successNotice("Listing deleted"))
	return nil
}

// Listing returns listing id from the current collection.
func (m *Manager) Listing(sid, id string) (domain.Listing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.stateLocked(sid).listings {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Listing{}, false
}

// View snapshots sid's state. Expired notices are dropped.
func (m *Manager) View(sid string) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(sid)
	if st.notice != nil && !st.notice.ExpiresAt.IsZero() && !m.now().Before(st.notice.ExpiresAt) {
		st.notice = nil
	}
	v := View{
		Listings:   append([]domain.Listing{}, st.listings...),
		Draft:      st.draft,
		EditingID:  st.editingID,
		Mode:       ModeCreate,
		Submitting: st.submitting,
	}
	if st.editingID != "" {
		v.Mode = ModeEditing
	}
	if len(st.errors) > 0 {
		v.Errors = validate.Errors{}
		for k, e := range st.errors {
			v.Errors[k] = e
		}
	}
	if st.notice != nil {
		n := *st.notice
		v.Notice = &n
	}
	return v
}

// Forget drops all state for sid, e.g. when the session signs out.
func (m *Manager) Forget(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sid)
}

// Expire drops the state of sessions untouched for longer than maxIdle, so
// browsers that never sign out do not hold memory forever. It returns how many
// were dropped. A session with a submission in flight is kept.
func (m *Manager) Expire(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	n := 0
	for sid, st := range m.states {
		if !st.submitting && st.lastSeen.Before(cutoff) {
			delete(m.states, sid)
			n++
		}
	}
	return n
}

// ExpireEvery calls Expire on every tick until ctx is done.
func (m *Manager) ExpireEvery(ctx context.Context, every, maxIdle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Expire(maxIdle)
		}
	}
}

func (m *Manager) setNotice(sid string, n *Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateLocked(sid).notice = n
}

func (m *Manager) successNotice(text string) *Notice {
	return &Notice{Kind: NoticeSuccess, Text: text, ExpiresAt: m.now().Add(m.noticeTTL)}
}

func (m *Manager) errorNotice(err error) *Notice {
	return &Notice{Kind: NoticeError, Text: apiclient.Describe(err)}
}
