// Package match implements the two-stage commission matcher of spec §4.10:
// contract lookup by normalized VSNR, and an independent intermediary
// resolution, plus the manual-override operations and clearance queue
// built on top of their outcomes.
package match

import (
	"github.com/atlas-broker/atlas/lib/commission/model"
	"github.com/atlas-broker/atlas/lib/commission/normalize"
)

// ContractIndex looks up contracts by normalized VSNR.
type ContractIndex map[string][]model.Contract

// BuildContractIndex groups contracts by their VSNRNormalized.
func BuildContractIndex(contracts []model.Contract) ContractIndex {
	idx := make(ContractIndex, len(contracts))
	for _, c := range contracts {
		idx[c.VSNRNormalized] = append(idx[c.VSNRNormalized], c)
	}
	return idx
}

// IntermediaryIndex resolves a normalized intermediary name to the
// employee it maps to.
type IntermediaryIndex map[string]int64

// BuildIntermediaryIndex keys each mapping by its normalized name.
func BuildIntermediaryIndex(mappings []model.IntermediaryMapping) IntermediaryIndex {
	idx := make(IntermediaryIndex, len(mappings))
	for _, m := range mappings {
		idx[m.IntermediaryNormalized] = m.EmployeeID
	}
	return idx
}

// confidenceExact is spec §4.10's Stage 1 confidence for a unique contract match.
const confidenceExact = 1.0

// Commission runs both matcher stages against commission and returns the
// updated record. A commission already in a manual or ignored state is
// left untouched, making repeated runs idempotent (spec §4.10: "Auto-
// matching is idempotent and safe to rerun").
func Commission(commission model.Commission, contracts ContractIndex, intermediaries IntermediaryIndex) model.Commission {
	if commission.MatchStatus == model.MatchManual || commission.MatchStatus == model.MatchIgnored {
		return commission
	}

	out := commission

	if matches := contracts[commission.VSNRNormalized]; len(matches) == 1 {
		id := matches[0].ID
		out.ContractID = &id
		out.MatchStatus = model.MatchAuto
		confidence := confidenceExact
		out.MatchConfidence = &confidence
	} else {
		out.ContractID = nil
		out.MatchStatus = model.MatchUnmatched
		out.MatchConfidence = nil
	}

	normalizedName := normalize.Intermediary(commission.IntermediaryName)
	if employeeID, ok := intermediaries[normalizedName]; ok {
		out.ConsultantID = &employeeID
	} else {
		out.ConsultantID = nil
	}

	return out
}

// All runs Commission over every row, returning the updated slice in the
// same order.
func All(commissions []model.Commission, contracts ContractIndex, intermediaries IntermediaryIndex) []model.Commission {
	out := make([]model.Commission, len(commissions))
	for i, c := range commissions {
		out[i] = Commission(c, contracts, intermediaries)
	}
	return out
}

// NeedsClearance reports whether a commission requires human attention:
// no contract found, or a contract was found but no consultant resolved
// (spec §4.10's "goes to clearance" outcome).
func NeedsClearance(c model.Commission) bool {
	if c.MatchStatus == model.MatchIgnored || c.MatchStatus == model.MatchManual {
		return false
	}
	return c.MatchStatus == model.MatchUnmatched || c.ConsultantID == nil
}

// ClearanceQueue filters commissions down to the ones NeedsClearance
// reports true for, preserving input order.
func ClearanceQueue(commissions []model.Commission) []model.Commission {
	var queue []model.Commission
	for _, c := range commissions {
		if NeedsClearance(c) {
			queue = append(queue, c)
		}
	}
	return queue
}

// AssignContract records a human's manual contract assignment.
func AssignContract(c model.Commission, contractID int64) model.Commission {
	out := c
	out.ContractID = &contractID
	out.MatchStatus = model.MatchManual
	out.MatchConfidence = nil
	return out
}

// OverrideConsultant records a human's manual consultant assignment or
// correction.
func OverrideConsultant(c model.Commission, consultantID int64) model.Commission {
	out := c
	out.ConsultantID = &consultantID
	out.MatchStatus = model.MatchManual
	return out
}

// Ignore marks a commission as excluded from settlement.
func Ignore(c model.Commission) model.Commission {
	out := c
	out.MatchStatus = model.MatchIgnored
	return out
}
