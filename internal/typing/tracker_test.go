package typing

import (
	"testing"
	"time"
)

func waitForEmpty(t *testing.T, tr *Tracker, threadID string, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if len(tr.ActiveLabels(threadID)) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("indicator for %s did not expire within %v", threadID, within)
}

func TestStartAutoExpires(t *testing.T) {
	tr := NewTracker(50 * time.Millisecond)
	tr.Start("t1", "u1", "ivanova@example.com")

	if got := tr.ActiveLabels("t1"); len(got) != 1 || got[0] != "ivanova@example.com" {
		t.Fatalf("ActiveLabels = %v, want [ivanova@example.com]", got)
	}
	waitForEmpty(t, tr, "t1", time.Second)
}

func TestStartResetsExpiry(t *testing.T) {
	tr := NewTracker(80 * time.Millisecond)
	tr.Start("t1", "u1", "u1")

	// Повторные события до истечения продлевают жизнь записи.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		tr.Start("t1", "u1", "u1")
		if len(tr.ActiveLabels("t1")) != 1 {
			t.Fatalf("entry expired despite refresh on iteration %d", i)
		}
	}
	waitForEmpty(t, tr, "t1", time.Second)
}

func TestStopRemovesImmediately(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.Start("t1", "u1", "u1")
	tr.Start("t1", "u2", "u2")

	tr.Stop("t1", "u1")
	got := tr.ActiveLabels("t1")
	if len(got) != 1 || got[0] != "u2" {
		t.Fatalf("ActiveLabels after Stop = %v, want [u2]", got)
	}
}

func TestEntriesAreScopedPerThreadAndUser(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.Start("t1", "u1", "a")
	tr.Start("t2", "u1", "b")

	if got := tr.ActiveLabels("t1"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("t1 labels = %v, want [a]", got)
	}
	if got := tr.ActiveLabels("t2"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("t2 labels = %v, want [b]", got)
	}
}

func TestResetClearsAll(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.Start("t1", "u1", "a")
	tr.Start("t2", "u2", "b")

	tr.Reset()
	if got := tr.ActiveLabels("t1"); len(got) != 0 {
		t.Fatalf("t1 labels after Reset = %v", got)
	}
	if got := tr.ActiveLabels("t2"); len(got) != 0 {
		t.Fatalf("t2 labels after Reset = %v", got)
	}
}

func TestStaleTimerDoesNotKillFreshEntry(t *testing.T) {
	tr := NewTracker(100 * time.Millisecond)
	tr.Start("t1", "u1", "a")
	time.Sleep(60 * time.Millisecond)
	// Перезапуск незадолго до границы старого таймера.
	tr.Start("t1", "u1", "a")
	time.Sleep(60 * time.Millisecond)

	if got := tr.ActiveLabels("t1"); len(got) != 1 {
		t.Fatalf("fresh entry removed by stale timer, labels = %v", got)
	}
	waitForEmpty(t, tr, "t1", time.Second)
}
