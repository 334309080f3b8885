package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/kingsalliance/bidbot/internal/event"
)

// EventStore implements event.Store backed by bun.
type EventStore struct {
	db *bun.DB
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *bun.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	// id and created_at come from column defaults.
	_, err := s.db.NewInsert().Model(&events).
		Column("aggregate_id", "type", "data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("inserting events: %w", err)
	}
	return nil
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	err := s.db.NewSelect().Model(&events).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	var events []event.Event
	err := s.db.NewSelect().Model(&events).
		Where("type = ?", eventType).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return events, nil
}
