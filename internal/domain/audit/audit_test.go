package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/requestctx"
)

func TestNewEventCarriesRequestMetadata(t *testing.T) {
	ctx := requestctx.WithClientIP(requestctx.WithRequestID(context.Background(), "req-9"), "192.0.2.7")
	evt, err := NewEvent(ctx, "org-1", "user-1", ActionPeriodReopen, EntityPayrollPeriod, "p-1", nil, map[string]string{"justification": "late overtime"})
	require.NoError(t, err)

	assert.Equal(t, "req-9", evt.RequestID)
	assert.Equal(t, "192.0.2.7", evt.IP)
	assert.Nil(t, evt.Before)
	assert.JSONEq(t, `{"justification":"late overtime"}`, string(evt.After))
}

func TestMemoryFiltersByAction(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Record(ctx, "org-1", "u", ActionPeriodClose, EntityPayrollPeriod, "p-1", nil, nil))
	require.NoError(t, m.Record(ctx, "org-1", "u", ActionPeriodReopen, EntityPayrollPeriod, "p-1", nil, nil))

	assert.Len(t, m.Events(""), 2)
	assert.Len(t, m.Events(ActionPeriodReopen), 1)
}

func TestBuildQueryAddsFilters(t *testing.T) {
	query, args := buildQuery("org-1", Filter{Action: ActionPeriodClose, EntityID: "p-1"})
	assert.Contains(t, query, "action = $2")
	assert.Contains(t, query, "entity_id = $3")
	assert.Equal(t, []any{"org-1", ActionPeriodClose, "p-1"}, args)
}

func TestMemoryListPagesNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		require.NoError(t, m.Record(ctx, "org-1", "u", ActionPeriodClose, EntityPayrollPeriod, id, nil, nil))
	}
	require.NoError(t, m.Record(ctx, "org-2", "u", ActionPeriodClose, EntityPayrollPeriod, "p-9", nil, nil))

	page, err := m.List(ctx, "org-1", Filter{Action: ActionPeriodClose}, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p-3", page[0].EntityID)

	rest, err := m.List(ctx, "org-1", Filter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "p-1", rest[0].EntityID)

	one, err := m.List(ctx, "org-1", Filter{EntityID: "p-2"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
