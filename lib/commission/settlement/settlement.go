// Package settlement implements the monthly settlement builder and state
// machine of spec §4.12: aggregating matched, relevant commissions into a
// per-employee snapshot, and controlling how that snapshot is reviewed,
// released, paid, and regenerated.
package settlement

import (
	"github.com/gravitational/trace"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

// Generate aggregates commissions for one (month, employeeID) pair into a
// new, revision-1 draft settlement (spec §4.12's generate(month)). Callers
// filter commissions down to the relevant, matched, non-ignored rows for
// this employee and month before calling Generate; Regenerate is used
// once a settlement already exists for the pair.
func Generate(month string, employeeID int64, commissions []model.Commission) model.Settlement {
	s := model.Settlement{
		Month:      month,
		EmployeeID: employeeID,
		Revision:   1,
		Status:     model.SettlementDraft,
	}
	applyAggregates(&s, commissions)
	return s
}

// applyAggregates sums the commissions' splits into gross, tl-deduction,
// net, chargeback, and payout totals (spec §4.12).
func applyAggregates(s *model.Settlement, commissions []model.Commission) {
	var gross, tlDeduction, net, chargeback int64
	for _, c := range commissions {
		consultantGross := c.Split.ConsultantCents + c.Split.TeamLeaderCents
		gross += consultantGross
		tlDeduction += c.Split.TeamLeaderCents
		if c.Split.ConsultantCents < 0 {
			chargeback += c.Split.ConsultantCents
		} else {
			net += c.Split.ConsultantCents
		}
	}
	s.GrossCents = gross
	s.TLDeductionCents = tlDeduction
	s.NetCents = net
	s.ChargebackCents = chargeback
	s.PayoutCents = net + chargeback
	s.PositionCount = len(commissions)
}

// allowedTransitions enumerates spec §4.12's state machine; anything not
// listed here is rejected.
var allowedTransitions = map[model.SettlementStatus][]model.SettlementStatus{
	model.SettlementDraft:    {model.SettlementReviewed},
	model.SettlementReviewed: {model.SettlementDraft, model.SettlementReleased},
	model.SettlementReleased: {model.SettlementPaid},
	model.SettlementPaid:     {},
}

// Transition moves a settlement to a new status, rejecting any edge the
// state machine doesn't allow.
func Transition(s model.Settlement, to model.SettlementStatus) (model.Settlement, error) {
	for _, allowed := range allowedTransitions[s.Status] {
		if allowed == to {
			out := s
			out.Status = to
			return out, nil
		}
	}
	return model.Settlement{}, trace.BadParameter("settlement %d: %s -> %s is not an allowed transition", s.ID, s.Status, to)
}

// latestRevision returns the highest-revision settlement among priors, or
// the zero value with ok=false if priors is empty.
func latestRevision(priors []model.Settlement) (model.Settlement, bool) {
	var best model.Settlement
	found := false
	for _, s := range priors {
		if !found || s.Revision > best.Revision {
			best = s
			found = true
		}
	}
	return best, found
}

// Regenerate rebuilds a (month, employeeID) settlement from the current
// commission set, applying spec §4.12's revisioning rules: a draft
// revision is replaced in place (same revision number, fresh totals); a
// reviewed revision is bumped to a new draft revision (un-reviewed); a
// released or paid revision is left untouched and a new parallel draft
// revision is written, flagged IsRegeneratedAfterRelease.
func Regenerate(month string, employeeID int64, commissions []model.Commission, priors []model.Settlement) model.Settlement {
	latest, ok := latestRevision(priors)
	if !ok {
		return Generate(month, employeeID, commissions)
	}

	s := model.Settlement{
		Month:      month,
		EmployeeID: employeeID,
		Status:     model.SettlementDraft,
	}

	switch {
	case latest.Status == model.SettlementDraft:
		s.Revision = latest.Revision
	case latest.Status == model.SettlementReviewed:
		s.Revision = latest.Revision + 1
	default: // released or paid: preserve, write a new parallel revision
		s.Revision = latest.Revision + 1
		s.IsRegeneratedAfterRelease = true
	}

	applyAggregates(&s, commissions)
	return s
}
