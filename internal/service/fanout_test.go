package service

import (
	"context"
	"errors"
	"testing"

	"fixture-edge/internal/domain"
)

func TestNewFanoutSkipsNil(t *testing.T) {
	if NewFanout(nil, nil) != nil {
		t.Fatal("expected nil when every dispatcher is nil")
	}
	only := &recordingDispatcher{}
	if got := NewFanout(nil, only); got != Dispatcher(only) {
		t.Fatalf("expected the single dispatcher back, got %T", got)
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	first := &recordingDispatcher{}
	boom := errors.New("telegram down")
	last := &recordingDispatcher{}

	err := NewFanout(first, &recordingDispatcher{err: boom}, last).Notify(context.Background(), domain.Alert{EventKey: "evt-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the failing dispatcher's error, got %v", err)
	}
	if len(first.alerts) != 1 || len(last.alerts) != 1 {
		t.Fatalf("expected both healthy dispatchers to receive the alert, got %d and %d", len(first.alerts), len(last.alerts))
	}
}
