// Package importer implements the transactional per-row import flow of
// spec §4.13: dedup by (carrier, row_hash), upsert, a batch-wide
// auto-match pass, and the ImportBatch audit entry.
package importer

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/atlas-broker/atlas/lib/commission/audit"
	"github.com/atlas-broker/atlas/lib/commission/match"
	"github.com/atlas-broker/atlas/lib/commission/model"
)

// Store is the persistence port importer needs: dedup lookup and
// upsert-by-row-hash. A real implementation backs this with a database
// transaction scoped to one row (spec §4.13: "transactional per
// commission row").
type Store interface {
	ExistsRowHash(ctx context.Context, carrier, rowHash string) (bool, error)
	Upsert(ctx context.Context, c model.Commission) (model.Commission, error)
}

// Options configures one Import call.
type Options struct {
	// SkipMatch suppresses the post-batch auto-match pass, used when
	// uploading multiple batches belonging to the same logical file
	// (spec §4.13 step 4).
	SkipMatch bool
	Actor     string
}

// Import runs rows through dedup, upsert, and optional auto-match,
// returning the ImportBatch's final counts alongside any row errors. It
// never aborts the whole batch on a single row's failure.
func Import(ctx context.Context, batch model.ImportBatch, rows []model.Commission, store Store, contracts match.ContractIndex, intermediaries match.IntermediaryIndex, auditSink audit.Sink, clock clockwork.Clock, opts Options) (model.ImportResult, error) {
	batch.TotalRows = len(rows)
	var imported []model.Commission
	var result model.ImportResult

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return result, trace.Wrap(ctx.Err())
		default:
		}

		exists, err := store.ExistsRowHash(ctx, row.Carrier, row.RowHash)
		if err != nil {
			result.Errors = append(result.Errors, model.RowError{SourceRow: row.SourceRow, Message: err.Error()})
			batch.ErrorRows++
			continue
		}
		if exists {
			batch.SkippedRows++
			continue
		}

		upserted, err := store.Upsert(ctx, row)
		if err != nil {
			result.Errors = append(result.Errors, model.RowError{SourceRow: row.SourceRow, Message: err.Error()})
			batch.ErrorRows++
			continue
		}
		batch.ImportedRows++
		imported = append(imported, upserted)
	}

	if !opts.SkipMatch && len(imported) > 0 {
		matched := match.All(imported, contracts, intermediaries)
		for i, c := range matched {
			if c.MatchStatus == model.MatchAuto {
				batch.MatchedRows++
			}
			if _, err := store.Upsert(ctx, c); err != nil {
				result.Errors = append(result.Errors, model.RowError{SourceRow: c.SourceRow, Message: err.Error()})
				continue
			}
			if c.MatchStatus != imported[i].MatchStatus {
				if auditSink != nil {
					_ = auditSink.Record(ctx, audit.MatchStatusChanged(clock, c.ID, opts.Actor, imported[i].MatchStatus, c.MatchStatus))
				}
			}
		}
	}

	result.Batch = batch

	if auditSink != nil {
		entry := model.AuditEntry{
			EntityType: "import_batch",
			EntityID:   batch.ID,
			Action:     model.ActionImported,
			Actor:      opts.Actor,
			Timestamp:  clock.Now().UTC(),
			Diff: map[string]any{
				"source_type":   batch.SourceType,
				"total_rows":    batch.TotalRows,
				"imported_rows": batch.ImportedRows,
				"matched_rows":  batch.MatchedRows,
				"skipped_rows":  batch.SkippedRows,
				"error_rows":    batch.ErrorRows,
			},
		}
		if err := auditSink.Record(ctx, entry); err != nil {
			return result, trace.Wrap(err)
		}
	}

	return result, nil
}

// MemoryStore is an in-process Store keyed by (carrier, row_hash), useful
// for tests and for demonstrating the dedup/idempotence invariant without
// a database.
type MemoryStore struct {
	byKey  map[string]model.Commission
	nextID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]model.Commission)}
}

func key(carrier, rowHash string) string { return carrier + "\x00" + rowHash }

// ExistsRowHash reports whether a commission with this (carrier,
// row_hash) has already been upserted.
func (m *MemoryStore) ExistsRowHash(ctx context.Context, carrier, rowHash string) (bool, error) {
	_, ok := m.byKey[key(carrier, rowHash)]
	return ok, nil
}

// Upsert inserts or updates a commission by (carrier, row_hash),
// assigning it an ID on first insert.
func (m *MemoryStore) Upsert(ctx context.Context, c model.Commission) (model.Commission, error) {
	k := key(c.Carrier, c.RowHash)
	if existing, ok := m.byKey[k]; ok {
		c.ID = existing.ID
	} else {
		m.nextID++
		c.ID = m.nextID
	}
	m.byKey[k] = c
	return c, nil
}

// All returns every stored commission, in no particular order.
func (m *MemoryStore) All() []model.Commission {
	out := make([]model.Commission, 0, len(m.byKey))
	for _, c := range m.byKey {
		out = append(out, c)
	}
	return out
}
