package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a diagnostics event emitted while planning or executing a series.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated (planner, executor, driver).
	Source string `json:"source"`

	// RunID is the associated series run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// JobIndex is the associated job index, or -1.
	JobIndex int `json:"job_index"`

	// Worklist is the label of the associated worklist, if applicable.
	Worklist string `json:"worklist,omitempty"`

	// Code is the warning or error code, if applicable.
	Code string `json:"code,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for diagnostics events.
const (
	EventTypeSeriesGenerated = "series.generated"
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeJobStarted      = "job.started"
	EventTypeJobCommitted    = "job.committed"
	EventTypeJobAborted      = "job.aborted"
	EventTypeWarning         = "warning"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

func levelRank(level string) int {
	switch level {
	case EventLevelInfo:
		return 0
	case EventLevelWarning:
		return 1
	case EventLevelError:
		return 2
	default:
		return -1
	}
}

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events synchronously to its subscribers in
// publication order.
type EventPublisher struct {
	config      EventsConfig
	subscribers []subscriberEntry
	filters     []EventFilter
	mu          sync.RWMutex
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	return &EventPublisher{config: cfg}
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) {
	if ep == nil || !ep.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if levelRank(event.Level) < levelRank(ep.config.MinLevel) {
		return
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, filter := range ep.filters {
		if !filter(event) {
			return
		}
	}
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// PublishSeriesGenerated publishes a series generated event.
func (ep *EventPublisher) PublishSeriesGenerated(scenario string, worklists, warnings int) {
	ep.Publish(Event{
		Type:     EventTypeSeriesGenerated,
		Source:   "planner",
		JobIndex: -1,
		Message:  fmt.Sprintf("Generated %s series with %d worklists", scenario, worklists),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"scenario": scenario,
			"warnings": warnings,
		},
	})
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, user string, jobs int) {
	ep.Publish(Event{
		Type:     EventTypeRunStarted,
		Source:   "driver",
		RunID:    runID,
		JobIndex: -1,
		Message:  fmt.Sprintf("Run %s started by %s with %d jobs", runID, user, jobs),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"user": user,
			"jobs": jobs,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID string, duration time.Duration) {
	ep.Publish(Event{
		Type:     EventTypeRunCompleted,
		Source:   "driver",
		RunID:    runID,
		JobIndex: -1,
		Message:  fmt.Sprintf("Run %s completed", runID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID string, jobIndex int, reason string) {
	ep.Publish(Event{
		Type:     EventTypeRunFailed,
		Source:   "driver",
		RunID:    runID,
		JobIndex: jobIndex,
		Message:  fmt.Sprintf("Run %s failed at job %d: %s", runID, jobIndex, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishJobStarted publishes a job started event.
func (ep *EventPublisher) PublishJobStarted(runID string, index int, worklist string) {
	ep.Publish(Event{
		Type:     EventTypeJobStarted,
		Source:   "executor",
		RunID:    runID,
		JobIndex: index,
		Worklist: worklist,
		Message:  fmt.Sprintf("Job %d started for worklist %s", index, worklist),
		Level:    EventLevelInfo,
	})
}

// PublishJobCommitted publishes a job committed event.
func (ep *EventPublisher) PublishJobCommitted(runID string, index int, worklist string, transfers int) {
	ep.Publish(Event{
		Type:     EventTypeJobCommitted,
		Source:   "executor",
		RunID:    runID,
		JobIndex: index,
		Worklist: worklist,
		Message:  fmt.Sprintf("Job %d committed %d transfers", index, transfers),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"transfers": transfers,
		},
	})
}

// PublishJobAborted publishes a job aborted event with the collected codes.
func (ep *EventPublisher) PublishJobAborted(runID string, index int, worklist string, codes []string) {
	ep.Publish(Event{
		Type:     EventTypeJobAborted,
		Source:   "executor",
		RunID:    runID,
		JobIndex: index,
		Worklist: worklist,
		Message:  fmt.Sprintf("Job %d aborted: %v", index, codes),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"codes": codes,
		},
	})
}

// PublishWarning publishes a non-blocking warning.
func (ep *EventPublisher) PublishWarning(source string, index int, code, message string) {
	ep.Publish(Event{
		Type:     EventTypeWarning,
		Source:   source,
		JobIndex: index,
		Code:     code,
		Message:  message,
		Level:    EventLevelWarning,
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// FilterByType creates a filter that only allows specific event types.
func FilterByType(types ...string) EventFilter {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event Event) bool {
		return allowed[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// LogSubscriber returns a subscriber writing events to the logger.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		l := logger.WithFields(map[string]interface{}{
			"event_type": event.Type,
			"source":     event.Source,
		})
		if event.JobIndex >= 0 {
			l = l.WithJob(event.JobIndex)
		}
		if event.Code != "" {
			l = l.WithField("code", event.Code)
		}
		switch event.Level {
		case EventLevelError:
			l.Error(event.Message)
		case EventLevelWarning:
			l.Warn(event.Message)
		default:
			l.Debug(event.Message)
		}
	}
}
