package session

import (
	"sync"
	"testing"
)

func TestGetOrCreateReturnsSameObject(t *testing.T) {
	m := NewManager(testModel(), Settings{MaxAssignments: -1}, "")

	first := m.GetOrCreate("alice")
	second := m.GetOrCreate("alice")
	if first != second {
		t.Fatal("get-or-create must never return two objects for one id")
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Count())
	}
}

func TestGetOrCreateConcurrentFirstSight(t *testing.T) {
	m := NewManager(testModel(), Settings{MaxAssignments: -1}, "")

	const callers = 16
	results := make([]*UserSession, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.GetOrCreate("new-user")
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent first requests created divergent sessions")
		}
	}
	if m.Count() != 1 {
		t.Fatalf("expected exactly 1 session, got %d", m.Count())
	}
}

func TestGetDoesNotCreate(t *testing.T) {
	m := NewManager(testModel(), Settings{}, "")
	if _, ok := m.Get("ghost"); ok {
		t.Fatal("get of an unknown user must report absence")
	}
	if m.Count() != 0 {
		t.Fatal("get must not create sessions")
	}
}

func TestManagerResumesFromDisk(t *testing.T) {
	dir := t.TempDir()
	persisted := populatedSession(t)
	if err := persisted.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	m := NewManager(testModel(), Settings{MaxAssignments: 10}, dir)
	resumed := m.GetOrCreate("carol")
	if len(resumed.Ordering()) != 3 {
		t.Fatalf("expected resumed ordering of 3 items, got %v", resumed.Ordering())
	}
	if resumed.CurrentIndex() != persisted.CurrentIndex() {
		t.Fatal("resumed cursor diverged from persisted state")
	}
}

func TestDeleteIsExplicit(t *testing.T) {
	m := NewManager(testModel(), Settings{}, "")
	m.GetOrCreate("alice")

	if !m.Delete("alice") {
		t.Fatal("delete of an existing session must succeed")
	}
	if m.Delete("alice") {
		t.Fatal("double delete must report false")
	}
}
