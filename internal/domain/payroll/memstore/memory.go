// Package memstore keeps payroll state in memory. It backs service tests
// and local runs without a database, and can inject failures at the steps
// a period closure goes through.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nomina/internal/domain/benefits"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
)

// Hooks inject failures. A Before hook runs ahead of its operation and a
// non-nil error is returned instead of performing it. An After hook runs
// once the write is applied and its error is returned as if the write had
// failed.
type Hooks struct {
	BeforeClosePeriod        func(ctx context.Context) error
	AfterClosePeriod         func(ctx context.Context) error
	BeforeReplaceAdjustments func(ctx context.Context) error
	BeforeFinalize           func(ctx context.Context) error
	BeforeRestorePeriod      func(ctx context.Context) error
	BeforeRestoreRecords     func(ctx context.Context) error
	BeforeUpsertCalculation  func(ctx context.Context) error
}

type benefitKey struct {
	EmployeeID string
	Kind       benefits.Kind
	Start      string
	End        string
}

type Memory struct {
	mu          sync.RWMutex
	hooks       Hooks
	employees   map[string]payroll.Employee
	periods     map[string]period.Period
	records     map[string]map[string]payroll.Record
	adjustments map[string][]payroll.Adjustment
	reopens     []period.ReopenEvent
	benefits    map[benefitKey]benefits.Calculation
}

var (
	_ payroll.StoreAPI  = (*Memory)(nil)
	_ benefits.StoreAPI = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{
		employees:   make(map[string]payroll.Employee),
		periods:     make(map[string]period.Period),
		records:     make(map[string]map[string]payroll.Record),
		adjustments: make(map[string][]payroll.Adjustment),
		benefits:    make(map[benefitKey]benefits.Calculation),
	}
}

func (m *Memory) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

func (m *Memory) hook(pick func(Hooks) func(context.Context) error) func(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.hooks)
}

func runHook(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// PutEmployee seeds an employee.
func (m *Memory) PutEmployee(e payroll.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = payroll.EmployeeStatusActive
	}
	m.employees[e.ID] = e
}

func (m *Memory) GetEmployee(_ context.Context, orgID, employeeID string) (payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[employeeID]
	if !ok || e.OrganizationID != orgID {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *Memory) ListActiveEmployees(_ context.Context, orgID string) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Employee
	for _, e := range m.employees {
		if e.OrganizationID == orgID && e.Status == payroll.EmployeeStatusActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEmployees lists every employee of the organization; an empty status
// skips the status filter.
func (m *Memory) ListEmployees(_ context.Context, orgID, status string) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Employee
	for _, e := range m.employees {
		if e.OrganizationID == orgID && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateEmployee(_ context.Context, e payroll.Employee) (payroll.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.employees[e.ID]; exists {
		return payroll.Employee{}, fmt.Errorf("employee %s already exists", e.ID)
	}
	m.employees[e.ID] = e
	return e, nil
}

func (m *Memory) UpdateEmployee(_ context.Context, e payroll.Employee) (payroll.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.employees[e.ID]
	if !ok || current.OrganizationID != e.OrganizationID {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	m.employees[e.ID] = e
	return e, nil
}

func (m *Memory) CreatePeriod(_ context.Context, p period.Period) (period.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.periods {
		if existing.OrganizationID == p.OrganizationID && existing.ArchivedAt == nil && existing.Overlaps(p.StartDate, p.EndDate) {
			return period.Period{}, period.ErrOverlappingPeriod
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.State = period.StateDraft
	p.Version = 1
	m.periods[p.ID] = p
	return p, nil
}

func (m *Memory) GetPeriod(_ context.Context, orgID, periodID string) (period.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[periodID]
	if !ok || p.OrganizationID != orgID {
		return period.Period{}, payroll.ErrPeriodNotFound
	}
	return p, nil
}

func (m *Memory) ClosePeriod(ctx context.Context, orgID, periodID string, expected period.State, expectedVersion int64, totals period.Totals, employeeCount int, closedAt time.Time) (period.Period, error) {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeClosePeriod })); err != nil {
		return period.Period{}, err
	}
	p, err := m.closePeriod(orgID, periodID, expected, expectedVersion, totals, employeeCount, closedAt)
	if err != nil {
		return period.Period{}, err
	}
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.AfterClosePeriod })); err != nil {
		return period.Period{}, err
	}
	return p, nil
}

func (m *Memory) closePeriod(orgID, periodID string, expected period.State, expectedVersion int64, totals period.Totals, employeeCount int, closedAt time.Time) (period.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[periodID]
	if !ok || p.OrganizationID != orgID || p.State != expected || p.Version != expectedVersion {
		return period.Period{}, payroll.ErrVersionConflict
	}
	p.State = period.StateClosed
	p.Totals = totals
	p.EmployeeCount = employeeCount
	p.Version++
	at := closedAt
	p.ClosedAt = &at
	p.UpdatedAt = closedAt
	m.periods[periodID] = p
	return p, nil
}

func (m *Memory) ReopenPeriod(_ context.Context, event period.ReopenEvent, expectedVersion int64) (period.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[event.PeriodID]
	if !ok || p.OrganizationID != event.OrganizationID || p.State != period.StateClosed || p.Version != expectedVersion {
		return period.Period{}, payroll.ErrVersionConflict
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	p.State = period.StateReopened
	p.Version++
	p.UpdatedAt = event.CreatedAt
	m.periods[p.ID] = p
	m.reopens = append(m.reopens, event)
	for id, record := range m.records[p.ID] {
		record.Finalized = false
		record.FinalizedAt = nil
		m.records[p.ID][id] = record
	}
	return p, nil
}

// Reopens returns the reopen trail of a period.
func (m *Memory) Reopens(periodID string) []period.ReopenEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []period.ReopenEvent
	for _, event := range m.reopens {
		if event.PeriodID == periodID {
			out = append(out, event)
		}
	}
	return out
}

func (m *Memory) RestorePeriod(ctx context.Context, snapshot period.Period) error {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeRestorePeriod })); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periods[snapshot.ID]; !ok {
		return payroll.ErrPeriodNotFound
	}
	m.periods[snapshot.ID] = snapshot
	return nil
}

func (m *Memory) ListGhostCandidates(_ context.Context, createdBefore time.Time) ([]payroll.GhostCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.GhostCandidate
	for _, p := range m.periods {
		if p.State != period.StateDraft || p.ArchivedAt != nil || !p.CreatedAt.Before(createdBefore) {
			continue
		}
		c := payroll.GhostCandidate{Period: p, LastActivity: p.UpdatedAt}
		for _, record := range m.records[p.ID] {
			c.EmployeeCount++
			if record.UpdatedAt.After(c.LastActivity) {
				c.LastActivity = record.UpdatedAt
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.CreatedAt.Before(out[j].Period.CreatedAt) })
	return out, nil
}

func (m *Memory) ArchivePeriod(_ context.Context, orgID, periodID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[periodID]
	if !ok || p.OrganizationID != orgID || p.State != period.StateDraft || p.ArchivedAt != nil {
		return fmt.Errorf("archive period %s: %w", periodID, payroll.ErrVersionConflict)
	}
	archived := at
	p.ArchivedAt = &archived
	p.Version++
	p.UpdatedAt = at
	m.periods[periodID] = p
	return nil
}

func (m *Memory) UpsertRecord(_ context.Context, record payroll.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byEmployee, ok := m.records[record.PeriodID]
	if !ok {
		byEmployee = make(map[string]payroll.Record)
		m.records[record.PeriodID] = byEmployee
	}
	if existing, ok := byEmployee[record.EmployeeID]; ok && existing.Finalized {
		return payroll.ErrRecordFinalized
	}
	byEmployee[record.EmployeeID] = record
	return nil
}

func (m *Memory) ListRecords(_ context.Context, orgID, periodID string) ([]payroll.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Record, 0, len(m.records[periodID]))
	for _, record := range m.records[periodID] {
		if record.OrganizationID == orgID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (m *Memory) FinalizeRecords(ctx context.Context, orgID, periodID string, employeeIDs []string, at time.Time) error {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeFinalize })); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byEmployee := m.records[periodID]
	for _, id := range employeeIDs {
		if record, ok := byEmployee[id]; !ok || record.OrganizationID != orgID {
			return fmt.Errorf("finalize %s: %w", id, payroll.ErrRecordNotFound)
		}
	}
	for _, id := range employeeIDs {
		record := byEmployee[id]
		finalizedAt := at
		record.Finalized = true
		record.FinalizedAt = &finalizedAt
		record.UpdatedAt = at
		byEmployee[id] = record
	}
	return nil
}

func (m *Memory) RestoreRecords(ctx context.Context, orgID, periodID string, records []payroll.Record) error {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeRestoreRecords })); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := make(map[string]payroll.Record, len(records))
	for id, record := range m.records[periodID] {
		if record.OrganizationID != orgID {
			restored[id] = record
		}
	}
	for _, record := range records {
		restored[record.EmployeeID] = record
	}
	m.records[periodID] = restored
	return nil
}

func (m *Memory) ListAdjustments(_ context.Context, orgID, periodID, employeeID string) ([]payroll.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Adjustment
	for _, adj := range m.adjustments[periodID] {
		if adj.OrganizationID != orgID || (employeeID != "" && adj.EmployeeID != employeeID) {
			continue
		}
		out = append(out, adj)
	}
	return out, nil
}

func (m *Memory) CreateAdjustment(_ context.Context, adj payroll.Adjustment) (payroll.Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if adj.ID == "" {
		adj.ID = uuid.NewString()
	}
	m.adjustments[adj.PeriodID] = append(m.adjustments[adj.PeriodID], adj)
	return adj, nil
}

// ReplaceAdjustmentSets checks every expected stamp and swaps the sets
// under one lock hold, so either all sets change or none do.
func (m *Memory) ReplaceAdjustmentSets(ctx context.Context, orgID, periodID string, sets []payroll.AdjustmentSet) error {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeReplaceAdjustments })); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	replacing := make(map[string]bool, len(sets))
	for _, set := range sets {
		replacing[set.EmployeeID] = true
	}
	current := make(map[string][]payroll.Adjustment, len(sets))
	var kept []payroll.Adjustment
	for _, adj := range m.adjustments[periodID] {
		if adj.OrganizationID == orgID && replacing[adj.EmployeeID] {
			current[adj.EmployeeID] = append(current[adj.EmployeeID], adj)
			continue
		}
		kept = append(kept, adj)
	}

	var stale []string
	for _, set := range sets {
		if !payroll.LatestUpdate(current[set.EmployeeID]).Equal(set.ExpectedUpdatedAt) {
			stale = append(stale, set.EmployeeID)
		}
	}
	if len(stale) > 0 {
		return &payroll.StaleAdjustmentsError{EmployeeIDs: stale}
	}

	for _, set := range sets {
		for _, adj := range set.Adjustments {
			adj.OrganizationID, adj.PeriodID, adj.EmployeeID = orgID, periodID, set.EmployeeID
			if adj.ID == "" {
				adj.ID = uuid.NewString()
			}
			kept = append(kept, adj)
		}
	}
	m.adjustments[periodID] = kept
	return nil
}

func key(employeeID string, kind benefits.Kind, start, end time.Time) benefitKey {
	return benefitKey{EmployeeID: employeeID, Kind: kind, Start: start.Format(time.DateOnly), End: end.Format(time.DateOnly)}
}

func (m *Memory) UpsertCalculation(ctx context.Context, calc benefits.Calculation) (benefits.Calculation, error) {
	if err := runHook(ctx, m.hook(func(h Hooks) func(context.Context) error { return h.BeforeUpsertCalculation })); err != nil {
		return benefits.Calculation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(calc.EmployeeID, calc.Kind, calc.PeriodStart, calc.PeriodEnd)
	if existing, ok := m.benefits[k]; ok {
		calc.ID = existing.ID
	} else if calc.ID == "" {
		calc.ID = uuid.NewString()
	}
	m.benefits[k] = calc
	return calc, nil
}

func (m *Memory) GetCalculation(_ context.Context, orgID, employeeID string, kind benefits.Kind, start, end time.Time) (benefits.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calc, ok := m.benefits[key(employeeID, kind, start, end)]
	if !ok || calc.OrganizationID != orgID {
		return benefits.Calculation{}, benefits.ErrCalculationNotFound
	}
	return calc, nil
}

func (m *Memory) ListCalculations(_ context.Context, orgID string, employeeIDs []string, start, end time.Time) ([]benefits.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []benefits.Calculation
	for _, employeeID := range employeeIDs {
		for _, kind := range benefits.Kinds() {
			if calc, ok := m.benefits[key(employeeID, kind, start, end)]; ok && calc.OrganizationID == orgID {
				out = append(out, calc)
			}
		}
	}
	return out, nil
}

func (m *Memory) ReplaceCalculations(_ context.Context, orgID string, employeeIDs []string, start, end time.Time, calcs []benefits.Calculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, employeeID := range employeeIDs {
		for _, kind := range benefits.Kinds() {
			k := key(employeeID, kind, start, end)
			if calc, ok := m.benefits[k]; ok && calc.OrganizationID == orgID {
				delete(m.benefits, k)
			}
		}
	}
	for _, calc := range calcs {
		m.benefits[key(calc.EmployeeID, calc.Kind, calc.PeriodStart, calc.PeriodEnd)] = calc
	}
	return nil
}

// Calculations returns every stored accrual of an employee.
func (m *Memory) Calculations(employeeID string) []benefits.Calculation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []benefits.Calculation
	for k, calc := range m.benefits {
		if k.EmployeeID == employeeID {
			out = append(out, calc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
