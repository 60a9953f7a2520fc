// Package events provides a small pub/sub bus for bench progress and
// pool fault notifications.
package events

import (
	"fmt"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// EventRunStart is emitted when a bench run begins
	EventRunStart EventType = "run_start"
	// EventStrategyStart is emitted before a strategy reads its input
	EventStrategyStart EventType = "strategy_start"
	// EventStrategyComplete is emitted when a strategy has written all records
	EventStrategyComplete EventType = "strategy_complete"
	// EventStrategyFailed is emitted when a strategy aborts with an error
	EventStrategyFailed EventType = "strategy_failed"
	// EventJobPanicked is emitted when a pool job panics
	EventJobPanicked EventType = "job_panicked"
	// EventRunComplete is emitted when every configured strategy has finished
	EventRunComplete EventType = "run_complete"
)

// Event represents a bench or pool event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Run      string  `json:"run,omitempty"`
	Strategy string  `json:"strategy,omitempty"`
	Workers  int     `json:"workers,omitempty"`
	Lines    int     `json:"lines,omitempty"`
	Elapsed  string  `json:"elapsed,omitempty"`
	Speedup  float64 `json:"speedup,omitempty"`
	JobSeq   uint64  `json:"job_seq,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// NewRunStartEvent creates a run start event
func NewRunStartEvent(run string) Event {
	return Event{
		Type:      EventRunStart,
		Timestamp: time.Now(),
		Data:      EventData{Run: run},
	}
}

// NewStrategyStartEvent creates a strategy start event
func NewStrategyStartEvent(strategy string, workers int) Event {
	return Event{
		Type:      EventStrategyStart,
		Timestamp: time.Now(),
		Source:    strategy,
		Data: EventData{
			Strategy: strategy,
			Workers:  workers,
		},
	}
}

// NewStrategyCompleteEvent creates a strategy completion event
func NewStrategyCompleteEvent(strategy string, lines int, elapsed time.Duration, speedup float64) Event {
	return Event{
		Type:      EventStrategyComplete,
		Timestamp: time.Now(),
		Source:    strategy,
		Data: EventData{
			Strategy: strategy,
			Lines:    lines,
			Elapsed:  elapsed.String(),
			Speedup:  speedup,
		},
	}
}

// NewStrategyFailedEvent creates a strategy failure event
func NewStrategyFailedEvent(strategy string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventStrategyFailed,
		Timestamp: time.Now(),
		Source:    strategy,
		Data: EventData{
			Strategy: strategy,
			Error:    errMsg,
		},
	}
}

// NewJobPanickedEvent creates an event for a recovered job panic
func NewJobPanickedEvent(worker string, seq uint64, value any) Event {
	return Event{
		Type:      EventJobPanicked,
		Timestamp: time.Now(),
		Source:    worker,
		Data: EventData{
			JobSeq: seq,
			Error:  toString(value),
		},
	}
}

// NewRunCompleteEvent creates a run completion event
func NewRunCompleteEvent(run string, elapsed time.Duration) Event {
	return Event{
		Type:      EventRunComplete,
		Timestamp: time.Now(),
		Data: EventData{
			Run:     run,
			Elapsed: elapsed.String(),
		},
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case error:
		return x.Error()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
