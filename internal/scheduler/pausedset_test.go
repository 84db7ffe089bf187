package scheduler

import "testing"

func TestPausedSet_PauseResume(t *testing.T) {
	p := NewPausedSet()
	if p.IsPaused(1) {
		t.Fatalf("expected id 1 to start unpaused")
	}

	p.Pause(1)
	if !p.IsPaused(1) {
		t.Fatalf("expected id 1 to be paused")
	}
	if p.IsPaused(2) {
		t.Fatalf("expected id 2 to remain unaffected")
	}

	p.Resume(1)
	if p.IsPaused(1) {
		t.Fatalf("expected id 1 to be resumed")
	}
}

func TestPausedSet_ResumeOfUnpausedIDIsNoop(t *testing.T) {
	p := NewPausedSet()
	p.Resume(42)
	if p.IsPaused(42) {
		t.Fatalf("resuming an id that was never paused should not mark it paused")
	}
}
