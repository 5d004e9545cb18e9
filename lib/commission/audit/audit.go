// Package audit implements the append-only audit log of spec §3.3
// invariant 7: exactly one entry per match_status transition,
// assignment, override, settlement status transition, and rate-model
// change.
package audit

import (
	"context"
	"sync"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

// Sink persists audit entries. A commit boundary (e.g. one database
// transaction per mutating request) is the caller's responsibility; Sink
// only records what already happened.
type Sink interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// MemorySink is an in-process Sink, useful for tests and for composing
// with a durable Sink under a fan-out decorator.
type MemorySink struct {
	mu      sync.Mutex
	nextID  int64
	entries []model.AuditEntry
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends entry, assigning it the next sequential ID.
func (s *MemorySink) Record(ctx context.Context, entry model.AuditEntry) error {
	select {
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.entries = append(s.entries, entry)
	return nil
}

// For returns every recorded entry for one entity, in recording order.
func (s *MemorySink) For(entityType string, entityID int64) []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// All returns every recorded entry, in recording order.
func (s *MemorySink) All() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

const (
	entityCommission AuditEntityType = "commission"
	entitySettlement AuditEntityType = "settlement"
	entityModel      AuditEntityType = "commission_model"
)

// AuditEntityType names the kind of record an AuditEntry concerns.
type AuditEntityType = string

func newEntry(clock clockwork.Clock, entityType AuditEntityType, entityID int64, action model.AuditAction, actor string, diff map[string]any) model.AuditEntry {
	return model.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Timestamp:  clock.Now().UTC(),
		Diff:       diff,
	}
}

// MatchStatusChanged records a commission's match_status transition.
func MatchStatusChanged(clock clockwork.Clock, commissionID int64, actor string, from, to model.MatchStatus) model.AuditEntry {
	return newEntry(clock, entityCommission, commissionID, model.ActionMatchStatusChanged, actor, map[string]any{
		"from": from,
		"to":   to,
	})
}

// Assigned records a manual contract assignment on a commission.
func Assigned(clock clockwork.Clock, commissionID int64, actor string, contractID int64) model.AuditEntry {
	return newEntry(clock, entityCommission, commissionID, model.ActionAssigned, actor, map[string]any{
		"contract_id": contractID,
	})
}

// Overridden records a manual consultant override or an amount override
// on a commission.
func Overridden(clock clockwork.Clock, commissionID int64, actor, reason string, diff map[string]any) model.AuditEntry {
	merged := map[string]any{"reason": reason}
	for k, v := range diff {
		merged[k] = v
	}
	return newEntry(clock, entityCommission, commissionID, model.ActionOverridden, actor, merged)
}

// SettlementStatusChanged records a settlement's status transition.
func SettlementStatusChanged(clock clockwork.Clock, settlementID int64, actor string, from, to model.SettlementStatus) model.AuditEntry {
	return newEntry(clock, entitySettlement, settlementID, model.ActionSettlementStatus, actor, map[string]any{
		"from": from,
		"to":   to,
	})
}

// ModelChanged records a commission model's rate edit and its effective
// date.
func ModelChanged(clock clockwork.Clock, commissionModelID int64, actor string, effectiveFrom string, diff map[string]any) model.AuditEntry {
	merged := map[string]any{"effective_from": effectiveFrom}
	for k, v := range diff {
		merged[k] = v
	}
	return newEntry(clock, entityModel, commissionModelID, model.ActionModelChanged, actor, merged)
}
