package framework

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies run events for filtering and routing.
type EventType string

const (
	EventStageEnter    EventType = "stage_enter"
	EventStageExit     EventType = "stage_exit"
	EventFanOut        EventType = "fan_out"
	EventBranchStart   EventType = "branch_start"
	EventBranchDone    EventType = "branch_done"
	EventBranchFault   EventType = "branch_fault"
	EventBarrierClosed EventType = "barrier_closed"
	EventRoute         EventType = "route"
	EventRunComplete   EventType = "run_complete"
	EventRunHalted     EventType = "run_halted"
)

// Event is a single observation from a run. The Metadata map is the
// forward-compatible extension point: new fields go there without
// breaking the struct.
type Event struct {
	Type     EventType
	RunID    string
	Stage    string
	Branch   string
	Elapsed  time.Duration
	Error    error
	Metadata map[string]any
}

// Observer receives events during a run. Single-method design (like
// http.Handler) so adding new event types never breaks existing observers.
// Branch events arrive from branch goroutines, so implementations must be
// safe for concurrent use.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans out events to multiple observers.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, obs := range m {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

// LogObserver writes run events as structured slog lines.
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) OnEvent(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", e.Stage))
	}
	if e.Branch != "" {
		attrs = append(attrs, slog.String("branch", e.Branch))
	}
	if e.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}

	level := slog.LevelInfo
	switch e.Type {
	case EventBranchStart, EventStageEnter:
		level = slog.LevelDebug
	case EventBranchFault, EventRunHalted:
		level = slog.LevelWarn
	}
	if e.Error != nil && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger.LogAttrs(context.Background(), level, "run", attrs...)
}

// TraceCollector accumulates run events in memory for post-run analysis.
// Safe for concurrent use.
type TraceCollector struct {
	mu     sync.Mutex
	events []Event
}

func (t *TraceCollector) OnEvent(e Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Events returns a copy of all collected events.
func (t *TraceCollector) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Reset clears collected events.
func (t *TraceCollector) Reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

// EventsOfType returns only events matching the given type.
func (t *TraceCollector) EventsOfType(typ EventType) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for _, e := range t.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Stages returns the stage names of every stage_enter event, in order.
func (t *TraceCollector) Stages() []string {
	var out []string
	for _, e := range t.EventsOfType(EventStageEnter) {
		out = append(out, e.Stage)
	}
	return out
}

// Emit safely delivers an event to a possibly-nil observer.
func Emit(obs Observer, e Event) {
	if obs != nil {
		obs.OnEvent(e)
	}
}
