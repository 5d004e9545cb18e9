package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

func TestCommission_ContractAndConsultantBothResolved(t *testing.T) {
	contracts := BuildContractIndex([]model.Contract{{ID: 1, VSNRNormalized: "123"}})
	intermediaries := BuildIntermediaryIndex([]model.IntermediaryMapping{{IntermediaryNormalized: "jane doe", EmployeeID: 9}})

	c := model.Commission{VSNRNormalized: "123", IntermediaryName: "Jane Doe"}
	out := Commission(c, contracts, intermediaries)

	require.Equal(t, model.MatchAuto, out.MatchStatus)
	require.NotNil(t, out.ContractID)
	require.Equal(t, int64(1), *out.ContractID)
	require.NotNil(t, out.ConsultantID)
	require.Equal(t, int64(9), *out.ConsultantID)
	require.NotNil(t, out.MatchConfidence)
	require.Equal(t, 1.0, *out.MatchConfidence)
}

func TestCommission_ContractFoundConsultantMissingGoesToClearance(t *testing.T) {
	contracts := BuildContractIndex([]model.Contract{{ID: 1, VSNRNormalized: "123"}})
	intermediaries := BuildIntermediaryIndex(nil)

	c := model.Commission{VSNRNormalized: "123", IntermediaryName: "Unknown Person"}
	out := Commission(c, contracts, intermediaries)

	require.Equal(t, model.MatchAuto, out.MatchStatus)
	require.NotNil(t, out.ContractID)
	require.Nil(t, out.ConsultantID)
	require.True(t, NeedsClearance(out))
}

func TestCommission_NoContractIsUnmatchedRegardlessOfConsultant(t *testing.T) {
	contracts := BuildContractIndex(nil)
	intermediaries := BuildIntermediaryIndex([]model.IntermediaryMapping{{IntermediaryNormalized: "jane doe", EmployeeID: 9}})

	c := model.Commission{VSNRNormalized: "999", IntermediaryName: "Jane Doe"}
	out := Commission(c, contracts, intermediaries)

	require.Equal(t, model.MatchUnmatched, out.MatchStatus)
	require.Nil(t, out.ContractID)
	require.NotNil(t, out.ConsultantID)
	require.True(t, NeedsClearance(out))
}

func TestCommission_AmbiguousVSNRIsTreatedAsNotFound(t *testing.T) {
	contracts := BuildContractIndex([]model.Contract{
		{ID: 1, VSNRNormalized: "123"},
		{ID: 2, VSNRNormalized: "123"},
	})
	c := model.Commission{VSNRNormalized: "123"}
	out := Commission(c, contracts, nil)

	require.Equal(t, model.MatchUnmatched, out.MatchStatus)
	require.Nil(t, out.ContractID)
}

func TestCommission_ManualAndIgnoredAreLeftUntouchedOnRerun(t *testing.T) {
	contracts := BuildContractIndex([]model.Contract{{ID: 1, VSNRNormalized: "123"}})

	manual := model.Commission{VSNRNormalized: "123", MatchStatus: model.MatchManual}
	require.Equal(t, manual, Commission(manual, contracts, nil))

	ignored := model.Commission{VSNRNormalized: "123", MatchStatus: model.MatchIgnored}
	require.Equal(t, ignored, Commission(ignored, contracts, nil))
}

func TestCommission_IsIdempotentOnRepeatedAutoMatch(t *testing.T) {
	contracts := BuildContractIndex([]model.Contract{{ID: 1, VSNRNormalized: "123"}})
	intermediaries := BuildIntermediaryIndex([]model.IntermediaryMapping{{IntermediaryNormalized: "jane doe", EmployeeID: 9}})

	c := model.Commission{VSNRNormalized: "123", IntermediaryName: "Jane Doe"}
	once := Commission(c, contracts, intermediaries)
	twice := Commission(once, contracts, intermediaries)
	require.Equal(t, once, twice)
}

func TestClearanceQueue_FiltersToUnresolvedRows(t *testing.T) {
	rows := []model.Commission{
		{MatchStatus: model.MatchUnmatched},
		{MatchStatus: model.MatchManual},
		{MatchStatus: model.MatchIgnored},
		func() model.Commission {
			id := int64(5)
			return model.Commission{MatchStatus: model.MatchAuto, ContractID: &id, ConsultantID: nil}
		}(),
		func() model.Commission {
			id := int64(5)
			cid := int64(7)
			return model.Commission{MatchStatus: model.MatchAuto, ContractID: &id, ConsultantID: &cid}
		}(),
	}
	queue := ClearanceQueue(rows)
	require.Len(t, queue, 2)
}

func TestAssignContract_SetsManualStatus(t *testing.T) {
	c := model.Commission{MatchStatus: model.MatchUnmatched}
	out := AssignContract(c, 42)
	require.Equal(t, model.MatchManual, out.MatchStatus)
	require.Equal(t, int64(42), *out.ContractID)
}

func TestOverrideConsultant_SetsManualStatus(t *testing.T) {
	c := model.Commission{MatchStatus: model.MatchAuto}
	out := OverrideConsultant(c, 7)
	require.Equal(t, model.MatchManual, out.MatchStatus)
	require.Equal(t, int64(7), *out.ConsultantID)
}

func TestIgnore_SetsIgnoredStatus(t *testing.T) {
	c := model.Commission{MatchStatus: model.MatchUnmatched}
	out := Ignore(c)
	require.Equal(t, model.MatchIgnored, out.MatchStatus)
}
