package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"casasweb/internal/repos"
	"casasweb/internal/session"
)

func newRepo(t *testing.T) *repos.SessionRepo {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sealer, err := repos.NewSealer("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return repos.NewSessionRepo(db, sealer)
}

type recorder struct {
	mu      sync.Mutex
	changes []session.Change
}

func (r *recorder) add(c session.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []session.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Change(nil), r.changes...)
}

func TestLoginLogout(t *testing.T) {
	st, err := session.Open(newRepo(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range []string{"T1", "T2", "T3"} {
		if err := st.Login("sid-a", tok); err != nil {
			t.Fatalf("login: %v", err)
		}
		if !st.IsAuthenticated("sid-a") {
			t.Fatal("expected authenticated after login")
		}
		got, _ := st.Token("sid-a")
		if got != tok {
			t.Fatalf("expected persisted token %q, got %q", tok, got)
		}
		if err := st.Logout("sid-a"); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if st.IsAuthenticated("sid-a") {
			t.Fatal("expected unauthenticated after logout")
		}
	}
}

func TestLoginRejectsEmptyInput(t *testing.T) {
	st, _ := session.Open(newRepo(t))
	if err := st.Login("", "T1"); err != session.ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := st.Login("sid", ""); err != session.ErrEmptyToken {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestSubscribersNotifiedOnFlip(t *testing.T) {
	st, _ := session.Open(newRepo(t))
	var mine, all recorder
	cancel := st.Subscribe("sid-a", mine.add)
	defer cancel()
	st.Subscribe("", all.add)

	_ = st.Login("sid-a", "T1")
	_ = st.Login("sid-a", "T1b") // still authenticated: no new change
	_ = st.Login("sid-b", "T2")
	_ = st.Logout("sid-a")

	got := mine.all()
	if len(got) != 2 || !got[0].Authenticated || got[1].Authenticated {
		t.Fatalf("unexpected sid-a changes: %+v", got)
	}
	if n := len(all.all()); n != 3 {
		t.Fatalf("expected 3 changes on the wildcard subscriber, got %d", n)
	}

	cancel()
	_ = st.Login("sid-a", "T3")
	if n := len(mine.all()); n != 2 {
		t.Fatalf("cancelled subscriber still notified (%d changes)", n)
	}
}

func TestOutOfBandChangesAreObserved(t *testing.T) {
	repo := newRepo(t)
	if err := repo.SaveToken("sid-a", "T1"); err != nil {
		t.Fatal(err)
	}
	st, err := session.Open(repo)
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsAuthenticated("sid-a") {
		t.Fatal("state should be derived from storage at open")
	}

	var rec recorder
	st.Subscribe("sid-a", rec.add)

	// Another process signs the session out behind the store's back.
	if err := repo.ClearToken("sid-a"); err != nil {
		t.Fatal(err)
	}
	if err := st.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := rec.all()
	if len(got) != 1 || got[0].Authenticated {
		t.Fatalf("expected one sign-out change, got %+v", got)
	}

	// And back in, observed on the next read.
	_ = repo.SaveToken("sid-a", "T2")
	if tok, _ := st.Token("sid-a"); tok != "T2" {
		t.Fatalf("expected T2, got %q", tok)
	}
	if got := rec.all(); len(got) != 2 || !got[1].Authenticated {
		t.Fatalf("expected a sign-in change, got %+v", got)
	}
}

func TestWatchPublishesExternalLogout(t *testing.T) {
	repo := newRepo(t)
	st, _ := session.Open(repo)
	_ = st.Login("sid-a", "T1")

	done := make(chan session.Change, 1)
	st.Subscribe("sid-a", func(c session.Change) { done <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Watch(ctx, 10*time.Millisecond)

	_ = repo.ClearToken("sid-a")
	select {
	case c := <-done:
		if c.Authenticated {
			t.Fatalf("expected sign-out, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not observe the external logout")
	}
}

// hookedRepo runs onSnapshot while Refresh is reading the persisted sessions.
type hookedRepo struct {
	*repos.SessionRepo
	onSnapshot func()
}

func (h *hookedRepo) Authenticated() ([]string, error) {
	ids, err := h.SessionRepo.Authenticated()
	if h.onSnapshot != nil {
		fn := h.onSnapshot
		h.onSnapshot = nil
		fn()
	}
	return ids, err
}

func TestRefreshDoesNotRaceLogin(t *testing.T) {
	repo := &hookedRepo{SessionRepo: newRepo(t)}
	st, err := session.Open(repo)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	st.Subscribe("tab", rec.add)

	loggedIn := make(chan error, 1)
	repo.onSnapshot = func() {
		// A sign-in from another tab arrives after the snapshot was taken.
		go func() { loggedIn <- st.Login("tab", "T1") }()
		select {
		case <-loggedIn:
			t.Error("login completed while refresh was comparing state")
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := st.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	select {
	case err := <-loggedIn:
		if err != nil {
			t.Fatalf("login: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("login never completed")
	}

	got := rec.all()
	if len(got) != 1 || !got[0].Authenticated {
		t.Fatalf("expected a single sign-in change, got %+v", got)
	}
	if !st.IsAuthenticated("tab") {
		t.Fatal("session should stay authenticated")
	}
}
