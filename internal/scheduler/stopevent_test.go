package scheduler

import "testing"

func TestStopEvent_SetIsSticky(t *testing.T) {
	var s StopEvent
	if s.Stopped() {
		t.Fatalf("expected a fresh StopEvent to report unstopped")
	}
	s.Set()
	if !s.Stopped() {
		t.Fatalf("expected Stopped to report true after Set")
	}
	s.Set()
	if !s.Stopped() {
		t.Fatalf("expected Set to be idempotent")
	}
}
