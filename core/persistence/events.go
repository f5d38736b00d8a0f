package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
)

// EventType identifies a lifecycle event emitted around store operations.
type EventType string

const (
	DocumentCreateStart   EventType = "create:start"
	DocumentCreateSuccess EventType = "create:success"
	DocumentCreateFailed  EventType = "create:failed"
	DocumentReadStart     EventType = "read:start"
	DocumentReadSuccess   EventType = "read:success"
	DocumentReadFailed    EventType = "read:failed"
	DocumentUpdateStart   EventType = "update:start"
	DocumentUpdateSuccess EventType = "update:success"
	DocumentUpdateFailed  EventType = "update:failed"
	DocumentDeleteStart   EventType = "delete:start"
	DocumentDeleteSuccess EventType = "delete:success"
	DocumentDeleteFailed  EventType = "delete:failed"
	RollbackStart         EventType = "rollback:start"
	RollbackSuccess       EventType = "rollback:success"
	RollbackFailed        EventType = "rollback:failed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  int64     `json:"timestamp"`
	Operation  string    `json:"operation"`
	Collection string    `json:"collection"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Duration   *int64    `json:"duration,omitempty"`
}

// CallbackFunction handles one delivered event.
type CallbackFunction func(ctx context.Context, event Event) error

type subscriptionInfo struct {
	id          string
	event       EventType
	unsubscribe func()
}

type Emitter struct {
	collection    string
	bus           *events.TypedEventBus[Event]
	subMu         sync.Mutex
	subscriptions map[string]*subscriptionInfo
}

func NewEmitter(collection string) (*Emitter, error) {
	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &Emitter{
		collection:    collection,
		bus:           bus,
		subscriptions: make(map[string]*subscriptionInfo),
	}, nil
}

func (e *Emitter) Emit(event Event) {
	if e != nil && e.bus != nil {
		e.bus.Emit(string(event.Type), event)
	}
}

// WithEvents brackets an operation with start and success or failure
// events carrying the operation duration.
func WithEvents[T any](
	e *Emitter,
	operation string,
	start, success, failed EventType,
	input any,
	fn func() (T, error),
) (T, error) {
	startTime := time.Now()
	e.Emit(Event{
		Type:       start,
		Timestamp:  startTime.UnixMilli(),
		Operation:  operation,
		Collection: e.collection,
		Input:      input,
	})

	result, err := fn()
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		errStr := err.Error()
		e.Emit(Event{
			Type:       failed,
			Timestamp:  time.Now().UnixMilli(),
			Operation:  operation,
			Collection: e.collection,
			Input:      input,
			Error:      &errStr,
			Duration:   &duration,
		})
		return result, err
	}

	e.Emit(Event{
		Type:       success,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: e.collection,
		Input:      input,
		Output:     result,
		Duration:   &duration,
	})
	return result, nil
}

// Subscribe registers a callback for one event type and returns an ID for
// unsubscribing.
func (e *Emitter) Subscribe(event EventType, callback CallbackFunction) string {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	unsubscribe := e.bus.Subscribe(string(event), callback)
	id := uuid.New().String()
	e.subscriptions[id] = &subscriptionInfo{id: id, event: event, unsubscribe: unsubscribe}
	return id
}

func (e *Emitter) Unsubscribe(id string) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	if info, ok := e.subscriptions[id]; ok {
		info.unsubscribe()
		delete(e.subscriptions, id)
	}
}
