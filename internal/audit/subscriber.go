package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/gram-swasthya/platform/internal/shared/events"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Subscriber consumes domain events from the bus and turns them into audit
// entries
type Subscriber struct {
	store Store
	bus   events.EventBus
}

// NewSubscriber creates an audit subscriber
func NewSubscriber(store Store, bus events.EventBus) *Subscriber {
	return &Subscriber{store: store, bus: bus}
}

// Start subscribes to all audited event patterns
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"report.*", "audit-report-subscriber"},
		{"hierarchy.*", "audit-hierarchy-subscriber"},
		{"staff.*", "audit-staff-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// eventToEntry converts a domain event to an audit entry. The store assigns
// sequence, prev_hash and hash on append.
func (s *Subscriber) eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}
	resourceType := parts[0]

	entry := &Entry{
		ID:            types.NewID(),
		ActorID:       event.ActorID,
		ActorRole:     event.ActorRole,
		Action:        event.Type,
		ResourceType:  resourceType,
		CorrelationID: event.CorrelationID,
	}
	entry.Timestamp = event.Timestamp.UTC()

	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
		entry.ResourceID = resourceIDFromData(data, resourceType)
	}

	return entry
}
