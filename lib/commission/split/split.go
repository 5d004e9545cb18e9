// Package split implements the rate-model splitter and rate-model-change
// recomputation of spec §4.11: integer-cents arithmetic with
// round-half-to-even, and the blast-radius accounting for an edited
// CommissionModel's effective date.
package split

import (
	"math"
	"strings"
	"time"

	"github.com/gravitational/trace"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

// CentsOf converts a euro amount to integer cents using round-half-to-even
// (banker's rounding), satisfying spec §3.3 invariant 4.
func CentsOf(amount float64) int64 {
	return roundHalfEven(amount * 100)
}

func roundHalfEven(x float64) int64 {
	floor := math.Floor(x)
	diff := x - floor
	switch {
	case diff < 0.5:
		return int64(floor)
	case diff > 0.5:
		return int64(floor) + 1
	default:
		if int64(floor)%2 == 0 {
			return int64(floor)
		}
		return int64(floor) + 1
	}
}

func clamp(v, a, b int64) int64 {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SelectModel picks the CommissionModel version active on payoutDate: the
// latest EffectiveFrom not after payoutDate (spec §4.11 step 1).
func SelectModel(models []model.CommissionModel, payoutDate time.Time) (model.CommissionModel, bool) {
	var best model.CommissionModel
	found := false
	for _, m := range models {
		if m.EffectiveFrom.After(payoutDate) {
			continue
		}
		if !found || m.EffectiveFrom.After(best.EffectiveFrom) {
			best = m
			found = true
		}
	}
	return best, found
}

// ResolveRates applies employee-level overrides on top of a
// CommissionModel's defaults (spec §4.11 steps 2 and 4).
func ResolveRates(employee model.Employee, cm model.CommissionModel) (consultantRatePercent, tlRatePercent float64, tlBasis model.TLBasis) {
	consultantRatePercent = cm.CommissionRate
	if employee.RateOverride != nil {
		consultantRatePercent = *employee.RateOverride
	}

	if cm.TLRate != nil {
		tlRatePercent = *cm.TLRate
	}
	tlBasis = cm.TLBasis
	if employee.TLOverrideRate != nil {
		tlRatePercent = *employee.TLOverrideRate
	}
	if employee.TLOverrideBasis != "" {
		tlBasis = employee.TLOverrideBasis
	}
	return consultantRatePercent, tlRatePercent, tlBasis
}

// Compute performs spec §4.11 steps 3-7 in integer cents.
func Compute(amountCents int64, consultantRatePercent, tlRatePercent float64, tlBasis model.TLBasis) model.Split {
	consultantGross := roundHalfEven(float64(amountCents) * consultantRatePercent / 100)

	basisCents := amountCents
	if tlBasis == model.TLBasisConsultantShare {
		basisCents = consultantGross
	}
	tlAmount := roundHalfEven(float64(basisCents) * tlRatePercent / 100)
	tlAmount = clamp(tlAmount, 0, consultantGross)

	consultantNet := consultantGross - tlAmount
	house := amountCents - consultantGross

	return model.Split{
		ConsultantCents: consultantNet,
		TeamLeaderCents: tlAmount,
		HouseCents:      house,
	}
}

// Commission computes a commission's Split end to end, selecting the
// model version active on its payout date and applying the employee's
// overrides.
func Commission(c model.Commission, employee model.Employee, models []model.CommissionModel) (model.Split, error) {
	if c.PayoutDate == nil {
		return model.Split{}, trace.BadParameter("commission %d has no payout date, cannot select a rate model", c.ID)
	}
	cm, ok := SelectModel(models, *c.PayoutDate)
	if !ok {
		return model.Split{}, trace.NotFound("no commission model is active on %s", c.PayoutDate.Format("2006-01-02"))
	}
	consultantRate, tlRate, tlBasis := ResolveRates(employee, cm)
	return Compute(CentsOf(c.Amount), consultantRate, tlRate, tlBasis), nil
}

// monthOf formats t as the "YYYY-MM" key settlements are keyed by.
func monthOf(t time.Time) string {
	return t.Format("2006-01")
}

// RecalcInput bundles what Recalc needs to determine its blast radius.
type RecalcInput struct {
	ChangedModelID int64
	EffectiveFrom  time.Time
	Commissions    []model.Commission
	Employees      map[int64]model.Employee
	Settlements    []model.Settlement
	Locked         map[int64]bool // commission ID -> locked
}

// Recalc implements spec §4.11's rate-model change semantics: every
// non-locked commission on or after EffectiveFrom whose employee uses the
// changed model gets a fresh split, and every settlement whose month is
// on or after that date is counted for regeneration unless frozen.
// Frozen settlements and locked commissions are left untouched.
func Recalc(in RecalcInput, models []model.CommissionModel) ([]model.Commission, model.RecalcSummary) {
	summary := model.RecalcSummary{FromDate: in.EffectiveFrom.Format("2006-01-02")}
	affected := make(map[int64]bool)

	updated := make([]model.Commission, len(in.Commissions))
	copy(updated, in.Commissions)

	for i, c := range updated {
		if c.PayoutDate == nil || c.PayoutDate.Before(in.EffectiveFrom) {
			continue
		}
		if in.Locked[c.ID] {
			continue
		}
		if c.ConsultantID == nil {
			continue
		}
		employee, ok := in.Employees[*c.ConsultantID]
		if !ok || employee.CommissionModelID == nil || *employee.CommissionModelID != in.ChangedModelID {
			continue
		}
		newSplit, err := Commission(c, employee, models)
		if err != nil {
			continue
		}
		updated[i].Split = newSplit
		summary.SplitsRecalculated++
		affected[employee.ID] = true
	}
	summary.AffectedEmployees = len(affected)

	fromMonth := monthOf(in.EffectiveFrom)
	for _, s := range in.Settlements {
		if s.Frozen() {
			continue
		}
		if strings.Compare(s.Month, fromMonth) >= 0 {
			summary.SettlementsRegenerated++
		}
	}

	return updated, summary
}
