package auth

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var sessionBase = time.Unix(1700000000, 0).UTC()

// testClock returns a frozen clock and a function that advances it.
func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	current := start
	read := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}
	return read, advance
}

func newClockedManager(lifetime time.Duration, opts ...SessionOption) (*SessionManager, func(time.Duration)) {
	m := NewSessionManager(lifetime, opts...)
	clock, advance := testClock(sessionBase)
	m.now = clock
	return m, advance
}

func TestSessionLifecycle(t *testing.T) {
	manager, _ := newClockedManager(time.Hour)

	token, expiresAt, err := manager.Create("user-123")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if want := sessionBase.Add(time.Hour); !expiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", expiresAt, want)
	}

	userID, expires, ok, err := manager.Validate(token)
	if err != nil || !ok {
		t.Fatalf("Validate = ok=%v err=%v", ok, err)
	}
	if userID != "user-123" {
		t.Fatalf("user id = %q", userID)
	}
	if !expires.Equal(expiresAt) {
		t.Fatalf("validate expiry = %v, want %v", expires, expiresAt)
	}

	if err := manager.Revoke(token); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if _, _, ok, err := manager.Validate(token); err != nil || ok {
		t.Fatalf("revoked token: ok=%v err=%v", ok, err)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	manager, _ := newClockedManager(time.Hour)
	if _, _, err := manager.Create(""); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("error = %v, want ErrUserRequired", err)
	}
}

func TestDefaultLifetimeIsOneWeek(t *testing.T) {
	manager, _ := newClockedManager(0)
	_, expiresAt, err := manager.Create("user-123")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if want := sessionBase.Add(7 * 24 * time.Hour); !expiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", expiresAt, want)
	}
}

func TestExpiredSessionDeletedOnValidate(t *testing.T) {
	store := NewMemorySessionStore()
	manager, advance := newClockedManager(time.Hour, WithStore(store))

	token, _, err := manager.Create("user-123")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	advance(time.Hour + time.Second)
	if _, _, ok, err := manager.Validate(token); err != nil || ok {
		t.Fatalf("expired token: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.Get(token); ok {
		t.Fatal("expired session should be deleted on validation")
	}
}

func TestPurgeExpiredDropsStaleSessions(t *testing.T) {
	store := NewMemorySessionStore()
	manager, advance := newClockedManager(time.Hour, WithStore(store))

	stale, _, err := manager.Create("user-stale")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	advance(2 * time.Hour)
	fresh, _, err := manager.Create("user-fresh")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := manager.PurgeExpired(); err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if _, ok, _ := store.Get(stale); ok {
		t.Fatal("stale session survived the purge")
	}
	if _, ok, _ := store.Get(fresh); !ok {
		t.Fatal("live session was purged")
	}
}

func TestSessionSharedAcrossManagers(t *testing.T) {
	store := NewMemorySessionStore()
	first, _ := newClockedManager(time.Hour, WithStore(store))
	token, _, err := first.Create("persistent-user")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	second, _ := newClockedManager(time.Hour, WithStore(store))
	userID, _, ok, err := second.Validate(token)
	if err != nil || !ok {
		t.Fatalf("Validate = ok=%v err=%v", ok, err)
	}
	if userID != "persistent-user" {
		t.Fatalf("user id = %q", userID)
	}
}

func TestIdleTimeoutSlidesExpiry(t *testing.T) {
	store := NewMemorySessionStore()
	manager, advance := newClockedManager(time.Hour, WithStore(store), WithIdleTimeout(10*time.Minute))

	token, initial, err := manager.Create("user-refresh")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if want := sessionBase.Add(10 * time.Minute); !initial.Equal(want) {
		t.Fatalf("initial expiry = %v, want %v", initial, want)
	}

	advance(5 * time.Minute)
	_, slid, ok, err := manager.Validate(token)
	if err != nil || !ok {
		t.Fatalf("Validate = ok=%v err=%v", ok, err)
	}
	if want := sessionBase.Add(15 * time.Minute); !slid.Equal(want) {
		t.Fatalf("slid expiry = %v, want %v", slid, want)
	}
	if record, _, _ := store.Get(token); !record.ExpiresAt.Equal(slid) {
		t.Fatalf("stored expiry = %v, want %v", record.ExpiresAt, slid)
	}
}

func TestIdleTimeoutExpiresInactiveSession(t *testing.T) {
	manager, advance := newClockedManager(time.Hour, WithIdleTimeout(10*time.Minute))

	token, _, err := manager.Create("user-idle")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	advance(11 * time.Minute)
	if _, _, ok, err := manager.Validate(token); err != nil || ok {
		t.Fatalf("idle token: ok=%v err=%v", ok, err)
	}
}

func TestIdleSlideCappedByLifetime(t *testing.T) {
	manager, advance := newClockedManager(30*time.Minute, WithIdleTimeout(20*time.Minute))

	token, _, err := manager.Create("user-capped")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	advance(15 * time.Minute)
	_, slid, ok, err := manager.Validate(token)
	if err != nil || !ok {
		t.Fatalf("Validate = ok=%v err=%v", ok, err)
	}
	if want := sessionBase.Add(30 * time.Minute); !slid.Equal(want) {
		t.Fatalf("slid expiry = %v, want the %v lifetime cap", slid, want)
	}
}
