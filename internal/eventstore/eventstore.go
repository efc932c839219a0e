// internal/eventstore/eventstore.go
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event is one journal entry. Events of an aggregate are numbered from 1.
type Event struct {
	ID            int64             `json:"id"`
	EventID       uuid.UUID         `json:"event_id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	EventType     string            `json:"event_type"`
	EventData     json.RawMessage   `json:"event_data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewEvent marshals payload into an unsaved event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: data}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.EventData, v)
}

// Journal is the write side the domain services depend on.
type Journal interface {
	Append(ctx context.Context, aggregateType, aggregateID string, events ...Event) error
}

type streamKey struct {
	aggregateType string
	aggregateID   string
}

// EventStore is an append-only, in-process journal. Appends to one
// aggregate are guarded by optimistic concurrency on the version number.
type EventStore struct {
	mu      sync.RWMutex
	streams map[streamKey][]Event
	log     []Event
	tracer  trace.Tracer
	now     func() time.Time
}

// NewEventStore creates an empty journal.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[streamKey][]Event),
		tracer:  otel.Tracer("libralend/eventstore"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AppendEvents atomically appends events when the aggregate is still at
// expectedVersion.
func (es *EventStore) AppendEvents(ctx context.Context, aggregateType, aggregateID string, expectedVersion int, events []Event) error {
	_, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	key := streamKey{aggregateType: aggregateType, aggregateID: aggregateID}
	stream := es.streams[key]

	if currentVersion := len(stream); currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	for i, event := range events {
		event.ID = int64(len(es.log) + 1)
		event.EventID = uuid.New()
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = expectedVersion + i + 1
		event.CreatedAt = es.now()

		stream = append(stream, event)
		es.log = append(es.log, event)

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", event.ID),
			attribute.Int("event.version", event.Version),
			attribute.String("event.type", event.EventType),
		))
	}
	es.streams[key] = stream

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// Append appends events after whatever the aggregate already holds. Use it
// when the caller already serializes writers of the aggregate.
func (es *EventStore) Append(ctx context.Context, aggregateType, aggregateID string, events ...Event) error {
	for {
		version, err := es.GetCurrentVersion(ctx, aggregateType, aggregateID)
		if err != nil {
			return err
		}
		err = es.AppendEvents(ctx, aggregateType, aggregateID, version, events)
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
	}
}

// LoadEvents returns the events of an aggregate with fromVersion <= version
// <= toVersion. A toVersion of 0 means no upper bound.
func (es *EventStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string, fromVersion, toVersion int) ([]Event, error) {
	_, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, event := range es.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}] {
		if event.Version < fromVersion {
			continue
		}
		if toVersion > 0 && event.Version > toVersion {
			break
		}
		events = append(events, event)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// GetCurrentVersion returns the latest version for an aggregate, 0 if none.
func (es *EventStore) GetCurrentVersion(ctx context.Context, aggregateType, aggregateID string) (int, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}]), nil
}

// StreamEvents returns up to batchSize events with ID > fromID across all
// aggregates, in append order.
func (es *EventStore) StreamEvents(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	_, span := es.tracer.Start(ctx, "eventstore.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	es.mu.RLock()
	defer es.mu.RUnlock()

	if fromID < 0 {
		fromID = 0
	}
	if fromID >= int64(len(es.log)) || batchSize <= 0 {
		return nil, nil
	}
	end := fromID + int64(batchSize)
	if end > int64(len(es.log)) {
		end = int64(len(es.log))
	}
	events := make([]Event, end-fromID)
	copy(events, es.log[fromID:end])

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
