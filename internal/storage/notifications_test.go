package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestListNotificationsNewestFirstWithPaging(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	current := base
	store := newTestStore(t, WithClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	user := createTestUser(t, store)

	for i := 0; i < 15; i++ {
		if _, err := store.CreateNotification(CreateNotificationParams{UserID: user, Type: "upload_complete", Message: fmt.Sprintf("video %d", i)}); err != nil {
			t.Fatalf("CreateNotification error: %v", err)
		}
	}

	page := store.ListNotifications(user, 0, 0)
	if len(page) != 10 {
		t.Fatalf("default limit should be 10, got %d", len(page))
	}
	if page[0].Message != "video 14" {
		t.Fatalf("expected newest first, got %q", page[0].Message)
	}

	rest := store.ListNotifications(user, 10, 10)
	if len(rest) != 5 {
		t.Fatalf("expected 5 remaining, got %d", len(rest))
	}
	if rest[4].Message != "video 0" {
		t.Fatalf("expected oldest last, got %q", rest[4].Message)
	}

	if got := store.ListNotifications(user, 10, 100); len(got) != 0 {
		t.Fatalf("offset beyond end should return empty, got %d", len(got))
	}
}

func TestMarkNotificationRead(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)

	created, err := store.CreateNotification(CreateNotificationParams{UserID: user, Type: "channel_connected", Message: "linked"})
	if err != nil {
		t.Fatalf("CreateNotification error: %v", err)
	}

	updated, err := store.MarkNotificationRead(user, created.ID)
	if err != nil {
		t.Fatalf("MarkNotificationRead error: %v", err)
	}
	if !updated.Read {
		t.Fatalf("expected read flag")
	}

	if _, err := store.MarkNotificationRead("other-user", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)

	for i := 0; i < 3; i++ {
		if _, err := store.CreateNotification(CreateNotificationParams{UserID: user, Type: "upload_complete", Message: "done"}); err != nil {
			t.Fatalf("CreateNotification error: %v", err)
		}
	}

	changed, err := store.MarkAllNotificationsRead(user)
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead error: %v", err)
	}
	if changed != 3 {
		t.Fatalf("expected 3 changed, got %d", changed)
	}

	changed, err = store.MarkAllNotificationsRead(user)
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead error: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected no further changes, got %d", changed)
	}
}
