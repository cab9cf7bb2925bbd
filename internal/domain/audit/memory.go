package audit

import (
	"context"
	"sync"
)

// Memory keeps events in process for tests and database-less runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, before, after any) error {
	evt, err := NewEvent(ctx, orgID, actorID, action, entityType, entityID, before, after)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *Memory) Events(action string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, evt := range m.events {
		if action == "" || evt.Action == action {
			out = append(out, evt)
		}
	}
	return out
}

// List mirrors Service.List: newest first, filtered, then paged.
func (m *Memory) List(_ context.Context, orgID string, filter Filter, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		evt := m.events[i]
		if evt.OrganizationID != orgID ||
			(filter.Action != "" && evt.Action != filter.Action) ||
			(filter.EntityType != "" && evt.EntityType != filter.EntityType) ||
			(filter.EntityID != "" && evt.EntityID != filter.EntityID) {
			continue
		}
		matched = append(matched, evt)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
