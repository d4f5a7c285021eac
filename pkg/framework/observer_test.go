package framework

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTraceCollector_CollectsEvents(t *testing.T) {
	tc := &TraceCollector{}

	tc.OnEvent(Event{Type: EventStageEnter, Stage: "CONTEXT", RunID: "r1"})
	tc.OnEvent(Event{Type: EventStageExit, Stage: "CONTEXT", Elapsed: 5 * time.Millisecond})
	tc.OnEvent(Event{Type: EventBranchDone, Stage: "INVESTIGATE", Branch: "repo"})

	events := tc.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventStageEnter {
		t.Errorf("events[0].Type = %q, want %q", events[0].Type, EventStageEnter)
	}
	if events[1].Elapsed != 5*time.Millisecond {
		t.Errorf("events[1].Elapsed = %v, want 5ms", events[1].Elapsed)
	}
	if events[2].Branch != "repo" {
		t.Errorf("events[2].Branch = %q, want %q", events[2].Branch, "repo")
	}
}

func TestTraceCollector_EventsOfTypeAndStages(t *testing.T) {
	tc := &TraceCollector{}
	tc.OnEvent(Event{Type: EventStageEnter, Stage: "CONTEXT"})
	tc.OnEvent(Event{Type: EventRoute, Stage: "ROUTE"})
	tc.OnEvent(Event{Type: EventStageEnter, Stage: "ROUTE"})
	tc.OnEvent(Event{Type: EventRunComplete})

	enters := tc.EventsOfType(EventStageEnter)
	if len(enters) != 2 {
		t.Fatalf("expected 2 stage_enter events, got %d", len(enters))
	}
	got := strings.Join(tc.Stages(), ",")
	if got != "CONTEXT,ROUTE" {
		t.Errorf("Stages() = %q, want CONTEXT,ROUTE", got)
	}
}

func TestTraceCollector_ResetAndCopy(t *testing.T) {
	tc := &TraceCollector{}
	tc.OnEvent(Event{Type: EventStageEnter, Stage: "A"})

	events := tc.Events()
	events[0].Stage = "mutated"
	if tc.Events()[0].Stage != "A" {
		t.Error("Events() did not return a copy, mutation leaked")
	}

	tc.Reset()
	if len(tc.Events()) != 0 {
		t.Errorf("expected 0 events after reset, got %d", len(tc.Events()))
	}
}

func TestObserverFunc(t *testing.T) {
	var received Event
	fn := ObserverFunc(func(e Event) { received = e })

	fn.OnEvent(Event{Type: EventBranchFault, Error: errors.New("test")})
	if received.Type != EventBranchFault {
		t.Errorf("expected EventBranchFault, got %q", received.Type)
	}
	if received.Error == nil || received.Error.Error() != "test" {
		t.Errorf("expected error 'test', got %v", received.Error)
	}
}

func TestMultiObserver_SkipsNil(t *testing.T) {
	tc1 := &TraceCollector{}
	tc2 := &TraceCollector{}

	multi := MultiObserver{tc1, nil, tc2}
	multi.OnEvent(Event{Type: EventStageEnter, Stage: "X"})

	if len(tc1.Events()) != 1 || len(tc2.Events()) != 1 {
		t.Errorf("expected one event per collector, got %d and %d", len(tc1.Events()), len(tc2.Events()))
	}
}

func TestLogObserver_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := &LogObserver{Logger: logger}

	obs.OnEvent(Event{Type: EventBranchStart, Stage: "INVESTIGATE", Branch: "repo"})
	obs.OnEvent(Event{Type: EventBranchFault, Stage: "INVESTIGATE", Branch: "doc", Error: errors.New("boom")})
	obs.OnEvent(Event{Type: EventBarrierClosed, Stage: "INVESTIGATE", Metadata: map[string]any{"applied": 2}})

	out := buf.String()
	if strings.Contains(out, "branch=repo") {
		t.Errorf("branch_start should be debug-level, got: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "error=boom") {
		t.Errorf("expected WARN line with error, got: %s", out)
	}
	if !strings.Contains(out, "applied=2") {
		t.Errorf("expected metadata attr, got: %s", out)
	}
}

func TestLogObserver_NilLogger(t *testing.T) {
	obs := &LogObserver{}
	obs.OnEvent(Event{Type: EventStageEnter, Stage: "A"})
	obs.OnEvent(Event{Type: EventRunHalted, Error: errors.New("boom")})
}

func TestEmit_NilObserver(t *testing.T) {
	Emit(nil, Event{Type: EventStageEnter})
}
