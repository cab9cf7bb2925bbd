package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nomina/internal/platform/querier"
	"nomina/internal/requestctx"
)

const (
	ActionPeriodCreate  = "payroll.period.create"
	ActionPeriodRun     = "payroll.period.run"
	ActionPeriodClose   = "payroll.period.close"
	ActionPeriodReopen  = "payroll.period.reopen"
	ActionRecalcApply   = "payroll.period.recalculate"
	ActionRollbackCrit  = "payroll.period.rollback_failed"
	ActionEmployeeSave  = "payroll.employee.save"
	EntityPayrollPeriod = "payroll_period"
	EntityEmployee      = "employee"
)

type Event struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	ActorID        string          `json:"actorId"`
	Action         string          `json:"action"`
	EntityType     string          `json:"entityType"`
	EntityID       string          `json:"entityId"`
	RequestID      string          `json:"requestId"`
	IP             string          `json:"ip"`
	CreatedAt      time.Time       `json:"createdAt"`
	Before         json.RawMessage `json:"before,omitempty"`
	After          json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
}

// Recorder is what domain services need to leave an audit trail.
type Recorder interface {
	Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, before, after any) error
}

type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

// NewEvent builds an event, taking request id and client ip from ctx.
func NewEvent(ctx context.Context, orgID, actorID, action, entityType, entityID string, before, after any) (Event, error) {
	evt := Event{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		RequestID:      requestctx.GetRequestID(ctx),
		IP:             requestctx.GetClientIP(ctx),
		CreatedAt:      time.Now().UTC(),
	}
	if before != nil {
		payload, err := json.Marshal(before)
		if err != nil {
			return Event{}, fmt.Errorf("encode before: %w", err)
		}
		evt.Before = payload
	}
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return Event{}, fmt.Errorf("encode after: %w", err)
		}
		evt.After = payload
	}
	return evt, nil
}

func (s *Service) Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, before, after any) error {
	evt, err := NewEvent(ctx, orgID, actorID, action, entityType, entityID, before, after)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, organization_id, actor_id, action, entity_type, entity_id, before_json, after_json, request_id, ip, created_at)
    VALUES ($1,$2,NULLIF($3, ''),$4,$5,$6,$7,$8,$9,$10,$11)
  `, evt.ID, evt.OrganizationID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, []byte(evt.Before), []byte(evt.After), evt.RequestID, evt.IP, evt.CreatedAt)
	return err
}

func (s *Service) List(ctx context.Context, orgID string, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildQuery(orgID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.OrganizationID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID,
			&evt.RequestID, &evt.IP, &evt.CreatedAt, &evt.Before, &evt.After); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildQuery(orgID string, filter Filter) (string, []any) {
	query := `SELECT id, organization_id, COALESCE(actor_id, ''), action, entity_type, entity_id,
    COALESCE(request_id, ''), COALESCE(ip, ''), created_at, before_json, after_json
    FROM audit_events WHERE organization_id = $1`
	args := []any{orgID}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", len(args)+1)
		args = append(args, filter.EntityID)
	}
	return query, args
}
