package main

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/commission/book"
	"github.com/atlas-broker/atlas/lib/commission/model"
)

func seedBook(t *testing.T) (path string, b *book.Book) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "book.yaml")
	b = book.New()
	return path, b
}

func TestRun_CommissionAssignUpdatesBookAndAudit(t *testing.T) {
	path, b := seedBook(t)
	commission, err := b.Upsert(context.Background(), model.Commission{Carrier: "Carrier A", RowHash: "h1", VSNRNormalized: "111"})
	require.NoError(t, err)
	b.AddContract(model.Contract{VSNR: "222", VSNRNormalized: "222"})
	require.NoError(t, b.Save(path))

	err = Run([]string{
		"--book", path,
		"commission", "assign", "--actor", "alice",
		strconv.FormatInt(commission.ID, 10), "1",
	})
	require.NoError(t, err)

	reloaded, err := book.Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Commissions, 1)
	require.NotNil(t, reloaded.Commissions[0].ContractID)
	require.Equal(t, int64(1), *reloaded.Commissions[0].ContractID)
	require.Equal(t, model.MatchManual, reloaded.Commissions[0].MatchStatus)

	require.Len(t, reloaded.AuditLog, 1)
	require.Equal(t, model.ActionAssigned, reloaded.AuditLog[0].Action)
	require.Equal(t, "alice", reloaded.AuditLog[0].Actor)
}

func TestRun_CommissionIgnoreSetsStatusAndAudit(t *testing.T) {
	path, b := seedBook(t)
	commission, err := b.Upsert(context.Background(), model.Commission{Carrier: "Carrier A", RowHash: "h1"})
	require.NoError(t, err)
	require.NoError(t, b.Save(path))

	err = Run([]string{"--book", path, "commission", "ignore", strconv.FormatInt(commission.ID, 10)})
	require.NoError(t, err)

	reloaded, err := book.Load(path)
	require.NoError(t, err)
	require.Equal(t, model.MatchIgnored, reloaded.Commissions[0].MatchStatus)
}

func TestRun_CommissionSettleGeneratesSettlement(t *testing.T) {
	path, b := seedBook(t)
	payout := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	b.Employees = append(b.Employees, model.Employee{ID: 1, Name: "Jane", Role: model.RoleConsultant, IsActive: true})
	b.CommissionModels = append(b.CommissionModels, model.CommissionModel{
		ID:             1,
		Name:           "Standard",
		CommissionRate: 50,
		EffectiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	empID := int64(1)
	b.PutCommission(model.Commission{
		ID:           1,
		Carrier:      "Carrier A",
		RowHash:      "h1",
		Amount:       1000,
		ConsultantID: &empID,
		PayoutDate:   &payout,
		IsRelevant:   true,
		MatchStatus:  model.MatchAuto,
	})
	require.NoError(t, b.Save(path))

	err := Run([]string{"--book", path, "commission", "settle", "2026-03", "1"})
	require.NoError(t, err)

	reloaded, err := book.Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Settlements, 1)
	s := reloaded.Settlements[0]
	require.Equal(t, "2026-03", s.Month)
	require.Equal(t, int64(1), s.EmployeeID)
	require.Equal(t, model.SettlementDraft, s.Status)
	require.Equal(t, int64(50000), s.GrossCents)
}

func TestRun_CommissionTransitionRejectsInvalidEdge(t *testing.T) {
	path, b := seedBook(t)
	b.PutSettlement(model.Settlement{Month: "2026-03", EmployeeID: 1, Revision: 1, Status: model.SettlementDraft})
	require.NoError(t, b.Save(path))

	err := Run([]string{"--book", path, "commission", "transition", "1", "released"})
	require.Error(t, err)
}

func TestRun_UnrecognizedCommandReturnsError(t *testing.T) {
	err := Run([]string{"bogus"})
	require.Error(t, err)
}
