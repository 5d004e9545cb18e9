package book

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/commission/model"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "book.yaml")
}

func TestLoad_MissingFileReturnsEmptyBook(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Empty(t, b.Contracts)
	require.Empty(t, b.Commissions)
}

func TestSaveLoad_RoundTripsContent(t *testing.T) {
	path := tempPath(t)
	b := New()
	b.AddContract(model.Contract{VSNR: "123", VSNRNormalized: "123", Carrier: "Carrier A"})
	payout := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err := b.Upsert(context.Background(), model.Commission{Carrier: "Carrier A", RowHash: "h1", PayoutDate: &payout})
	require.NoError(t, err)

	require.NoError(t, b.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Contracts, 1)
	require.Equal(t, "123", reloaded.Contracts[0].VSNRNormalized)
	require.Len(t, reloaded.Commissions, 1)
	require.NotNil(t, reloaded.Commissions[0].PayoutDate)
	require.True(t, reloaded.Commissions[0].PayoutDate.Equal(payout))
}

func TestReindex_ContinuesCountersAfterReload(t *testing.T) {
	path := tempPath(t)
	b := New()
	c1 := b.AddContract(model.Contract{VSNR: "1"})
	require.Equal(t, int64(1), c1.ID)

	require.NoError(t, b.Save(path))
	reloaded, err := Load(path)
	require.NoError(t, err)

	c2 := reloaded.AddContract(model.Contract{VSNR: "2"})
	require.Equal(t, int64(2), c2.ID)
}

func TestUpsert_DedupesByCarrierAndRowHash(t *testing.T) {
	b := New()
	ctx := context.Background()
	first, err := b.Upsert(ctx, model.Commission{Carrier: "Carrier A", RowHash: "h1", Amount: 10})
	require.NoError(t, err)

	second, err := b.Upsert(ctx, model.Commission{Carrier: "Carrier A", RowHash: "h1", Amount: 20})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, b.Commissions, 1)
	require.Equal(t, 20.0, b.Commissions[0].Amount)
}

func TestExistsRowHash_TrueOnlyAfterUpsert(t *testing.T) {
	b := New()
	ctx := context.Background()
	exists, err := b.ExistsRowHash(ctx, "Carrier A", "h1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = b.Upsert(ctx, model.Commission{Carrier: "Carrier A", RowHash: "h1"})
	require.NoError(t, err)

	exists, err = b.ExistsRowHash(ctx, "Carrier A", "h1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestRecord_AssignsSequentialIDsAndRejectsCancelledContext(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Record(ctx, model.AuditEntry{EntityType: "commission", EntityID: 1}))
	require.NoError(t, b.Record(ctx, model.AuditEntry{EntityType: "commission", EntityID: 2}))
	require.Equal(t, int64(1), b.AuditLog[0].ID)
	require.Equal(t, int64(2), b.AuditLog[1].ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, b.Record(cancelled, model.AuditEntry{}))
}

func TestCommissionsFor_FiltersByEmployeeMonthAndRelevance(t *testing.T) {
	b := New()
	payout := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	other := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	empID := int64(7)

	b.PutCommission(model.Commission{ID: 1, ConsultantID: &empID, PayoutDate: &payout, IsRelevant: true})
	b.PutCommission(model.Commission{ID: 2, ConsultantID: &empID, PayoutDate: &other, IsRelevant: true})
	b.PutCommission(model.Commission{ID: 3, ConsultantID: &empID, PayoutDate: &payout, IsRelevant: false})
	b.PutCommission(model.Commission{ID: 4, ConsultantID: &empID, PayoutDate: &payout, IsRelevant: true, MatchStatus: model.MatchIgnored})

	got := b.CommissionsFor(empID, "2026-03")
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].ID)
}

func TestPutSettlement_UpsertsByMonthEmployeeRevision(t *testing.T) {
	b := New()
	s1 := b.PutSettlement(model.Settlement{Month: "2026-03", EmployeeID: 1, Revision: 1, GrossCents: 100})
	require.Equal(t, int64(1), s1.ID)

	s2 := b.PutSettlement(model.Settlement{Month: "2026-03", EmployeeID: 1, Revision: 1, GrossCents: 200})
	require.Equal(t, s1.ID, s2.ID)
	require.Len(t, b.Settlements, 1)
	require.Equal(t, int64(200), b.Settlements[0].GrossCents)

	s3 := b.PutSettlement(model.Settlement{Month: "2026-03", EmployeeID: 1, Revision: 2, GrossCents: 300})
	require.NotEqual(t, s1.ID, s3.ID)
	require.Len(t, b.Settlements, 2)
}

func TestSave_WritesReadableFilePermissions(t *testing.T) {
	path := tempPath(t)
	b := New()
	require.NoError(t, b.Save(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
