package logging

import "testing"

func TestNew_LevelFallback(t *testing.T) {
	log, err := New("not-a-level", "engagement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(0) {
		t.Fatal("expected info level to be enabled")
	}
	if log.Core().Enabled(-1) {
		t.Fatal("expected debug level to be disabled")
	}
}

func TestNew_Debug(t *testing.T) {
	log, err := New("DEBUG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Fatal("expected debug level to be enabled")
	}
}
