package memory

import (
	"testing"

	"assessment-service/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	store.Put(&app.Session{ID: "s1", LearnerID: "u1", Scope: "chapter-1"})
	got, ok := store.Get("s1")
	if !ok {
		t.Fatalf("expected session present")
	}
	if got.LearnerID != "u1" {
		t.Fatalf("unexpected session %+v", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
	if list := store.List(); len(list) != 1 || list[0].ID != "s1" {
		t.Fatalf("unexpected session list %+v", list)
	}

	store.Delete("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed")
	}
	if len(store.List()) != 0 {
		t.Fatalf("expected empty list after delete")
	}
}
