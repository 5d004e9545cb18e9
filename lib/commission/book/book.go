// Package book implements a flat-file persistence adapter for the
// commission domain (SPEC_FULL.md's supplement to spec §6.4: no SQL/object
// store driver appears anywhere in the example corpus, so the CLI's
// storage port is satisfied by a single YAML document rather than a
// database, following the same load/trace.Wrap idiom as lib/config).
// Book implements importer.Store and audit.Sink directly, so it drops
// into the same call sites as their in-memory reference adapters.
package book

import (
	"context"
	"os"
	"sync"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/atlas-broker/atlas/lib/commission/match"
	"github.com/atlas-broker/atlas/lib/commission/model"
)

// Book is the full commission-domain dataset for one broker.
type Book struct {
	mu sync.Mutex

	Contracts            []model.Contract            `yaml:"contracts"`
	Employees            []model.Employee            `yaml:"employees"`
	CommissionModels     []model.CommissionModel     `yaml:"commission_models"`
	IntermediaryMappings []model.IntermediaryMapping `yaml:"intermediary_mappings"`
	Commissions          []model.Commission          `yaml:"commissions"`
	Settlements          []model.Settlement          `yaml:"settlements"`
	AuditLog             []model.AuditEntry          `yaml:"audit_log"`

	nextContractID   int64
	nextEmployeeID   int64
	nextModelID      int64
	nextMappingID    int64
	nextCommissionID int64
	nextSettlementID int64
	nextAuditID      int64
}

// New returns an empty Book, ready for first use.
func New() *Book {
	return &Book{}
}

// Load reads a Book from a YAML file at path. A missing file is not an
// error: it returns a fresh, empty Book, so a first run can point at a
// path that doesn't exist yet.
func Load(path string) (*Book, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, trace.Wrap(err, "reading book file %q", path)
	}
	b := New()
	if err := yaml.Unmarshal(raw, b); err != nil {
		return nil, trace.Wrap(err, "parsing book file %q", path)
	}
	b.reindex()
	return b, nil
}

// Save atomically writes the Book back to path as YAML.
func (b *Book) Save(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := yaml.Marshal(b)
	if err != nil {
		return trace.Wrap(err, "marshalling book")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return trace.Wrap(err, "writing book file %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return trace.Wrap(err, "renaming book file into place")
	}
	return nil
}

// reindex recomputes every auto-increment counter from the max ID
// currently present in each collection, so IDs keep incrementing across
// a Load/Save cycle without persisting the counters themselves.
func (b *Book) reindex() {
	for _, c := range b.Contracts {
		if c.ID > b.nextContractID {
			b.nextContractID = c.ID
		}
	}
	for _, e := range b.Employees {
		if e.ID > b.nextEmployeeID {
			b.nextEmployeeID = e.ID
		}
	}
	for _, m := range b.CommissionModels {
		if m.ID > b.nextModelID {
			b.nextModelID = m.ID
		}
	}
	for _, m := range b.IntermediaryMappings {
		if m.ID > b.nextMappingID {
			b.nextMappingID = m.ID
		}
	}
	for _, c := range b.Commissions {
		if c.ID > b.nextCommissionID {
			b.nextCommissionID = c.ID
		}
	}
	for _, s := range b.Settlements {
		if s.ID > b.nextSettlementID {
			b.nextSettlementID = s.ID
		}
	}
	for _, a := range b.AuditLog {
		if a.ID > b.nextAuditID {
			b.nextAuditID = a.ID
		}
	}
}

// ContractIndex builds a match.ContractIndex over the Book's contracts.
func (b *Book) ContractIndex() match.ContractIndex {
	b.mu.Lock()
	defer b.mu.Unlock()
	return match.BuildContractIndex(b.Contracts)
}

// IntermediaryIndex builds a match.IntermediaryIndex over the Book's
// intermediary mappings.
func (b *Book) IntermediaryIndex() match.IntermediaryIndex {
	b.mu.Lock()
	defer b.mu.Unlock()
	return match.BuildIntermediaryIndex(b.IntermediaryMappings)
}

// EmployeesByID indexes the Book's employees by ID, for split.RecalcInput
// and settlement lookups.
func (b *Book) EmployeesByID() map[int64]model.Employee {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]model.Employee, len(b.Employees))
	for _, e := range b.Employees {
		out[e.ID] = e
	}
	return out
}

// EmployeeByID returns one employee by ID.
func (b *Book) EmployeeByID(id int64) (model.Employee, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return model.Employee{}, false
}

// AddContract appends a new contract, assigning it an ID.
func (b *Book) AddContract(c model.Contract) model.Contract {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextContractID++
	c.ID = b.nextContractID
	b.Contracts = append(b.Contracts, c)
	return c
}

// CommissionByID returns one commission by ID.
func (b *Book) CommissionByID(id int64) (model.Commission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.Commissions {
		if c.ID == id {
			return c, true
		}
	}
	return model.Commission{}, false
}

// PutCommission replaces the commission with c's ID, or appends c if no
// commission has that ID. It does not assign an ID.
func (b *Book) PutCommission(c model.Commission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.Commissions {
		if existing.ID == c.ID {
			b.Commissions[i] = c
			return
		}
	}
	b.Commissions = append(b.Commissions, c)
}

// CommissionsFor returns every relevant, non-ignored commission for
// (employeeID, month), where month matches the "YYYY-MM" prefix of the
// commission's payout date.
func (b *Book) CommissionsFor(employeeID int64, month string) []model.Commission {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Commission
	for _, c := range b.Commissions {
		if c.ConsultantID == nil || *c.ConsultantID != employeeID {
			continue
		}
		if c.PayoutDate == nil || c.PayoutDate.Format("2006-01") != month {
			continue
		}
		if !c.IsRelevant || c.MatchStatus == model.MatchIgnored {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SettlementsFor returns every prior revision recorded for (month,
// employeeID), in no particular order.
func (b *Book) SettlementsFor(month string, employeeID int64) []model.Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Settlement
	for _, s := range b.Settlements {
		if s.Month == month && s.EmployeeID == employeeID {
			out = append(out, s)
		}
	}
	return out
}

// PutSettlement inserts or replaces a settlement by (month, employeeID,
// revision), assigning it an ID on first insert.
func (b *Book) PutSettlement(s model.Settlement) model.Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.Settlements {
		if existing.Month == s.Month && existing.EmployeeID == s.EmployeeID && existing.Revision == s.Revision {
			s.ID = existing.ID
			b.Settlements[i] = s
			return s
		}
	}
	b.nextSettlementID++
	s.ID = b.nextSettlementID
	b.Settlements = append(b.Settlements, s)
	return s
}

// ExistsRowHash implements importer.Store.
func (b *Book) ExistsRowHash(ctx context.Context, carrier, rowHash string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.Commissions {
		if c.Carrier == carrier && c.RowHash == rowHash {
			return true, nil
		}
	}
	return false, nil
}

// Upsert implements importer.Store: insert or update by (carrier,
// row_hash), assigning an ID on first insert.
func (b *Book) Upsert(ctx context.Context, c model.Commission) (model.Commission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.Commissions {
		if existing.Carrier == c.Carrier && existing.RowHash == c.RowHash {
			c.ID = existing.ID
			b.Commissions[i] = c
			return c, nil
		}
	}
	b.nextCommissionID++
	c.ID = b.nextCommissionID
	b.Commissions = append(b.Commissions, c)
	return c, nil
}

// Record implements audit.Sink, appending entry with the next sequential
// audit ID.
func (b *Book) Record(ctx context.Context, entry model.AuditEntry) error {
	select {
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAuditID++
	entry.ID = b.nextAuditID
	b.AuditLog = append(b.AuditLog, entry)
	return nil
}
