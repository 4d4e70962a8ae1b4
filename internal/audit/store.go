package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/metrics"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

const (
	// StreamName is the stream holding all audit entries
	StreamName = "$audit"
	// EventType is the event type for audit entries
	EventType = "AuditEntry"
)

// Store is the append-only audit log interface
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter ListFilter) ([]*Entry, int, error)
	Verify(ctx context.Context) (bool, int64, error)
}

// KurrentDBStore keeps the audit log in a KurrentDB stream. The store is
// inherently append-only; events cannot be modified or deleted.
type KurrentDBStore struct {
	client *esdb.Client

	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewKurrentDBStore creates a KurrentDB-backed audit store
func NewKurrentDBStore(client *esdb.Client) *KurrentDBStore {
	return &KurrentDBStore{client: client}
}

// Initialize loads the chain head from the stream
func (s *KurrentDBStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	stream, err := s.client.ReadStream(ctx, StreamName, opts, 1)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				// Stream does not exist yet
				return nil
			}
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		return nil
	}

	if event.Event != nil && event.Event.EventType == EventType {
		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			s.lastHash = entry.Hash
			s.sequence = entry.Sequence
		}
	}

	return nil
}

// Append chains the entry onto the log and appends it to the stream
func (s *KurrentDBStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	entry.Sequence = s.sequence
	entry.PrevHash = s.lastHash
	entry.Hash = entry.ComputeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   EventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    []byte(fmt.Sprintf(`{"sequence":%d,"hash":"%s"}`, entry.Sequence, entry.Hash)),
	}

	_, err = s.client.AppendToStream(ctx, StreamName, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		// Roll the chain head back so the next append reuses the slot
		s.sequence--
		return errors.Wrap(err, "failed to append audit entry")
	}

	s.lastHash = entry.Hash
	metrics.RecordAuditEntry()

	return nil
}

// List returns entries newest-first, filtered in memory
func (s *KurrentDBStore) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	maxEvents := uint64(1000)
	if filter.Limit > 0 {
		maxEvents = uint64(filter.Limit + filter.Offset + 100)
	}

	stream, err := s.client.ReadStream(ctx, StreamName, opts, maxEvents)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return []*Entry{}, 0, nil
			}
		}
		return nil, 0, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*Entry
	total := 0

	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}
		if !matchesFilter(&entry, filter) {
			continue
		}

		total++
		if total <= filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, total, nil
}

// Verify walks the chain oldest-first and checks every hash link. Returns
// whether the chain is intact and the sequence of the first broken entry.
func (s *KurrentDBStore) Verify(ctx context.Context) (bool, int64, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Forwards,
		From:      esdb.Start{},
	}

	stream, err := s.client.ReadStream(ctx, StreamName, opts, ^uint64(0)>>1)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return true, 0, nil
			}
		}
		return false, 0, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	prevHash := ""
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}

		if entry.PrevHash != prevHash || !entry.VerifyHash() {
			return false, entry.Sequence, nil
		}
		prevHash = entry.Hash
	}

	return true, 0, nil
}

func matchesFilter(e *Entry, filter ListFilter) bool {
	if filter.ActorID != nil && e.ActorID != *filter.ActorID {
		return false
	}
	if filter.Action != "" && e.Action != filter.Action {
		return false
	}
	if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != nil {
		if e.ResourceID == nil || *e.ResourceID != *filter.ResourceID {
			return false
		}
	}
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

// MemoryStore is an in-process audit store for tests and local development
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Sequence = int64(len(s.entries)) + 1
	if len(s.entries) > 0 {
		entry.PrevHash = s.entries[len(s.entries)-1].Hash
	} else {
		entry.PrevHash = ""
	}
	entry.Hash = entry.ComputeHash()

	s.entries = append(s.entries, entry)
	metrics.RecordAuditEntry()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if matchesFilter(s.entries[i], filter) {
			matched = append(matched, s.entries[i])
		}
	}

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, total, nil
}

func (s *MemoryStore) Verify(ctx context.Context) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := ""
	for _, e := range s.entries {
		if e.PrevHash != prevHash || !e.VerifyHash() {
			return false, e.Sequence, nil
		}
		prevHash = e.Hash
	}
	return true, 0, nil
}

// Entries returns a copy of all entries, oldest first
func (s *MemoryStore) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

var _ Store = (*KurrentDBStore)(nil)
var _ Store = (*MemoryStore)(nil)

// resourceIDFromData pulls a resource ID out of event payloads that carry
// one under common field names
func resourceIDFromData(data map[string]any, resourceType string) *types.ID {
	for _, field := range []string{resourceType + "_id", "id"} {
		val, ok := data[field]
		if !ok {
			continue
		}
		if str, ok := val.(string); ok {
			if id, err := types.ParseID(str); err == nil {
				return &id
			}
		}
	}
	return nil
}
