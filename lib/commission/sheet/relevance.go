package sheet

import "strings"

// Carrier name constants for the three carriers with deterministic,
// carrier-specific relevance rules (spec §4.7). Any other carrier defaults
// to relevant.
const (
	CarrierA = "Carrier A"
	CarrierB = "Carrier B"
	CarrierC = "Carrier C"
)

const allianzMinCommissionRate = 20.0

var swissLifeRelevantCodes = map[string]bool{"BARM": true, "APG": true}
var vbRelevantConditionsCodes = map[string]bool{"15": true, "35": true, "50": true}

const vbIrrelevantBookingCode = "dy"

// IsRelevant implements spec §4.7's deterministic per-carrier relevance
// rule, grounded on original_source's is_commission_relevant.
func IsRelevant(carrier string, commissionRate *float64, bookingCode, conditionsCode string) bool {
	c := strings.TrimSpace(carrier)
	switch c {
	case CarrierA:
		return isCarrierARelevant(commissionRate)
	case CarrierB:
		return isCarrierBRelevant(bookingCode)
	case CarrierC:
		return isCarrierCRelevant(bookingCode, conditionsCode)
	default:
		return true
	}
}

func isCarrierARelevant(commissionRate *float64) bool {
	if commissionRate == nil {
		return true
	}
	return *commissionRate >= allianzMinCommissionRate
}

func isCarrierBRelevant(bookingCode string) bool {
	code := strings.TrimSpace(bookingCode)
	if code == "" {
		return false
	}
	return swissLifeRelevantCodes[strings.ToUpper(code)]
}

func isCarrierCRelevant(bookingCode, conditionsCode string) bool {
	if strings.EqualFold(strings.TrimSpace(bookingCode), vbIrrelevantBookingCode) {
		return false
	}
	code := strings.TrimSpace(conditionsCode)
	if code != "" && !vbRelevantConditionsCodes[code] {
		return false
	}
	return true
}
