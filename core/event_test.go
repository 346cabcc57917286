package core

import "testing"

func TestNewEvent_Fields(t *testing.T) {
	ev := NewEvent("xc-1", "session.input")
	if ev.ID == "" {
		t.Fatal("expected generated event id")
	}
	if ev.ExecutionID != "xc-1" || ev.Type != "session.input" {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if ev.Timestamp.Location().String() != "UTC" {
		t.Error("timestamp should be UTC")
	}
}

func TestEvent_WithDataCopies(t *testing.T) {
	ev := NewDataEvent("xc-1", "tool.call", map[string]any{"name": "search"})
	ev2 := ev.WithData("args", "q=1")
	if _, ok := ev.Data["args"]; ok {
		t.Error("WithData must not mutate the original event")
	}
	if ev2.Data["name"] != "search" || ev2.Data["args"] != "q=1" {
		t.Errorf("unexpected derived data: %+v", ev2.Data)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
