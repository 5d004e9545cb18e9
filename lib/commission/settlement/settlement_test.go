package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

func TestGenerate_AggregatesGrossNetChargebackAndPayout(t *testing.T) {
	commissions := []model.Commission{
		{Split: model.Split{ConsultantCents: 1800, TeamLeaderCents: 200, HouseCents: 8000}}, // gross 2000
		{Split: model.Split{ConsultantCents: -500, TeamLeaderCents: 0, HouseCents: -2000}},  // chargeback
	}
	s := Generate("2024-03", 7, commissions)

	require.Equal(t, "2024-03", s.Month)
	require.Equal(t, int64(7), s.EmployeeID)
	require.Equal(t, 1, s.Revision)
	require.Equal(t, model.SettlementDraft, s.Status)
	require.Equal(t, int64(1500), s.GrossCents) // 2000 + (-500)
	require.Equal(t, int64(200), s.TLDeductionCents)
	require.Equal(t, int64(1800), s.NetCents)
	require.Equal(t, int64(-500), s.ChargebackCents)
	require.Equal(t, int64(1300), s.PayoutCents) // 1800 + (-500)
	require.Equal(t, 2, s.PositionCount)
}

func TestTransition_DraftToReviewedAllowed(t *testing.T) {
	s := model.Settlement{Status: model.SettlementDraft}
	out, err := Transition(s, model.SettlementReviewed)
	require.NoError(t, err)
	require.Equal(t, model.SettlementReviewed, out.Status)
}

func TestTransition_ReviewedToDraftAllowedUnReview(t *testing.T) {
	s := model.Settlement{Status: model.SettlementReviewed}
	out, err := Transition(s, model.SettlementDraft)
	require.NoError(t, err)
	require.Equal(t, model.SettlementDraft, out.Status)
}

func TestTransition_ReviewedToReleasedAllowed(t *testing.T) {
	s := model.Settlement{Status: model.SettlementReviewed}
	out, err := Transition(s, model.SettlementReleased)
	require.NoError(t, err)
	require.Equal(t, model.SettlementReleased, out.Status)
}

func TestTransition_ReleasedToPaidAllowed(t *testing.T) {
	s := model.Settlement{Status: model.SettlementReleased}
	out, err := Transition(s, model.SettlementPaid)
	require.NoError(t, err)
	require.Equal(t, model.SettlementPaid, out.Status)
}

func TestTransition_DraftToReleasedRejected(t *testing.T) {
	s := model.Settlement{Status: model.SettlementDraft}
	_, err := Transition(s, model.SettlementReleased)
	require.Error(t, err)
}

func TestTransition_PaidIsTerminal(t *testing.T) {
	s := model.Settlement{Status: model.SettlementPaid}
	_, err := Transition(s, model.SettlementReleased)
	require.Error(t, err)
	_, err = Transition(s, model.SettlementDraft)
	require.Error(t, err)
}

func TestRegenerate_NoPriorBehavesLikeGenerate(t *testing.T) {
	s := Regenerate("2024-03", 7, nil, nil)
	require.Equal(t, 1, s.Revision)
	require.False(t, s.IsRegeneratedAfterRelease)
}

func TestRegenerate_DraftPriorReplacesInPlaceSameRevision(t *testing.T) {
	priors := []model.Settlement{{Revision: 1, Status: model.SettlementDraft}}
	s := Regenerate("2024-03", 7, nil, priors)
	require.Equal(t, 1, s.Revision)
	require.Equal(t, model.SettlementDraft, s.Status)
	require.False(t, s.IsRegeneratedAfterRelease)
}

func TestRegenerate_ReviewedPriorBumpsRevisionBackToDraft(t *testing.T) {
	priors := []model.Settlement{{Revision: 2, Status: model.SettlementReviewed}}
	s := Regenerate("2024-03", 7, nil, priors)
	require.Equal(t, 3, s.Revision)
	require.Equal(t, model.SettlementDraft, s.Status)
	require.False(t, s.IsRegeneratedAfterRelease)
}

func TestRegenerate_ReleasedPriorWritesNewFlaggedRevision(t *testing.T) {
	priors := []model.Settlement{{Revision: 1, Status: model.SettlementReleased}}
	s := Regenerate("2024-03", 7, nil, priors)
	require.Equal(t, 2, s.Revision)
	require.Equal(t, model.SettlementDraft, s.Status)
	require.True(t, s.IsRegeneratedAfterRelease)
}

func TestRegenerate_PaidPriorWritesNewFlaggedRevision(t *testing.T) {
	priors := []model.Settlement{{Revision: 3, Status: model.SettlementPaid}}
	s := Regenerate("2024-03", 7, nil, priors)
	require.Equal(t, 4, s.Revision)
	require.True(t, s.IsRegeneratedAfterRelease)
}

func TestRegenerate_PicksLatestAmongMultiplePriorRevisions(t *testing.T) {
	priors := []model.Settlement{
		{Revision: 1, Status: model.SettlementReleased},
		{Revision: 2, Status: model.SettlementDraft},
	}
	s := Regenerate("2024-03", 7, nil, priors)
	require.Equal(t, 2, s.Revision) // replaces the draft revision 2, not the released revision 1
	require.False(t, s.IsRegeneratedAfterRelease)
}
