// Package model defines the commission-domain entities of spec §3.3: pure
// data types shared by the normalizer, matcher, splitter, settlement
// builder, and audit log. No behaviour beyond small derived accessors lives
// here — the packages that consume these types own the business rules.
package model

import "time"

// ContractStatus is the lifecycle state of a Contract.
type ContractStatus string

const (
	ContractOpen      ContractStatus = "open"
	ContractApplied   ContractStatus = "applied"
	ContractClosed    ContractStatus = "closed"
	ContractCancelled ContractStatus = "cancelled"
)

// ContractSource distinguishes where a Contract originated.
type ContractSource string

const (
	SourceManual  ContractSource = "manual"
	SourceXempus  ContractSource = "xempus"
)

// Contract is an internal policy record, matched against incoming carrier
// commissions by normalized VSNR.
type Contract struct {
	ID             int64          `yaml:"id"`
	VSNR           string         `yaml:"vsnr"`
	VSNRNormalized string         `yaml:"vsnr_normalized"`
	Carrier        string         `yaml:"carrier"`
	Policyholder   string         `yaml:"policyholder"`
	Branch         string         `yaml:"branch"`
	Premium        *float64       `yaml:"premium,omitempty"`
	Inception      *time.Time     `yaml:"inception,omitempty"`
	ConsultantID   *int64         `yaml:"consultant_id,omitempty"`
	Status         ContractStatus `yaml:"status"`
	Source         ContractSource `yaml:"source"`
	XempusID       string         `yaml:"xempus_id,omitempty"`
	ProvisionCount int            `yaml:"provision_count"`
	ProvisionSum   float64        `yaml:"provision_sum"`
}

// CommissionKind classifies a Commission's amount.
type CommissionKind string

const (
	KindInitial    CommissionKind = "initial"   // AP: Abschlussprovision
	KindPortfolio  CommissionKind = "portfolio" // BP: Bestandsprovision
	KindChargeback CommissionKind = "chargeback"
	KindOther      CommissionKind = "other"
)

// MatchStatus is the state of a Commission's contract/consultant resolution.
type MatchStatus string

const (
	MatchUnmatched MatchStatus = "unmatched"
	MatchAuto      MatchStatus = "auto_matched"
	MatchManual    MatchStatus = "manual_matched"
	MatchIgnored   MatchStatus = "ignored"
)

// Split holds the three-way share of a matched, relevant commission's gross
// amount, in integer cents (spec §3.3 invariant 4).
type Split struct {
	ConsultantCents int64
	TeamLeaderCents int64
	HouseCents      int64
}

// Commission is a single carrier-side commission booking.
type Commission struct {
	ID               int64          `yaml:"id"`
	ContractID       *int64         `yaml:"contract_id,omitempty"`
	VSNR             string         `yaml:"vsnr"`
	VSNRNormalized   string         `yaml:"vsnr_normalized"`
	Amount           float64        `yaml:"amount"` // signed; negative = chargeback
	Kind             CommissionKind `yaml:"kind"`
	PayoutDate       *time.Time     `yaml:"payout_date,omitempty"`
	Carrier          string         `yaml:"carrier"`
	Policyholder     string         `yaml:"policyholder"`
	IntermediaryName string         `yaml:"intermediary_name"`
	ConsultantID     *int64         `yaml:"consultant_id,omitempty"`
	MatchStatus      MatchStatus    `yaml:"match_status"`
	MatchConfidence  *float64       `yaml:"match_confidence,omitempty"`
	Split            Split          `yaml:"split"`
	BatchID          int64          `yaml:"batch_id"`
	BookingCodeRaw   string         `yaml:"booking_code_raw"`
	ConditionsCode   string         `yaml:"conditions_code"`
	CommissionRate   *float64       `yaml:"commission_rate,omitempty"`
	IsRelevant       bool           `yaml:"is_relevant"`
	RowHash          string         `yaml:"row_hash"`
	SourceRow        int            `yaml:"source_row"`
	OverrideAmount   *float64       `yaml:"override_amount,omitempty"`
	OverrideReason   string         `yaml:"override_reason,omitempty"`
	OverrideAuthor   string         `yaml:"override_author,omitempty"`
	Note             string         `yaml:"note,omitempty"`
}

// EmployeeRole enumerates the roles in spec §3.3.
type EmployeeRole string

const (
	RoleConsultant  EmployeeRole = "consultant"
	RoleTeamLeader  EmployeeRole = "team-leader"
	RoleBackOffice  EmployeeRole = "back-office"
	RoleManager     EmployeeRole = "manager"
)

// TLBasis is what a team-leader override rate is computed against.
type TLBasis string

const (
	TLBasisConsultantShare TLBasis = "consultant-share"
	TLBasisGross           TLBasis = "gross"
)

// Employee is a consultant, team leader, back-office, or manager user.
type Employee struct {
	ID                int64        `yaml:"id"`
	UserID            *int64       `yaml:"user_id,omitempty"`
	Name              string       `yaml:"name"`
	Role              EmployeeRole `yaml:"role"`
	CommissionModelID *int64       `yaml:"commission_model_id,omitempty"`
	RateOverride      *float64     `yaml:"rate_override,omitempty"`
	TLOverrideRate    *float64     `yaml:"tl_override_rate,omitempty"`
	TLOverrideBasis   TLBasis      `yaml:"tl_override_basis,omitempty"`
	TeamLeaderID      *int64       `yaml:"team_leader_id,omitempty"`
	IsActive          bool         `yaml:"is_active"`
}

// CommissionModel is a named consultant/team-leader rate pair, versioned by
// EffectiveFrom (spec §3.3 invariant 5: splits use the version active on
// the settlement month, not today).
type CommissionModel struct {
	ID             int64     `yaml:"id"`
	Name           string    `yaml:"name"`
	CommissionRate float64   `yaml:"commission_rate"`
	TLRate         *float64  `yaml:"tl_rate,omitempty"`
	TLBasis        TLBasis   `yaml:"tl_basis,omitempty"`
	EffectiveFrom  time.Time `yaml:"effective_from"`
	Active         bool      `yaml:"active"`
}

// IntermediaryMapping resolves a carrier-side intermediary name to the
// internal employee it refers to.
type IntermediaryMapping struct {
	ID                     int64  `yaml:"id"`
	IntermediaryName       string `yaml:"intermediary_name"`
	IntermediaryNormalized string `yaml:"intermediary_normalized"`
	EmployeeID             int64  `yaml:"employee_id"`
}

// ImportSourceType distinguishes the three import flows of spec §4.13.
type ImportSourceType string

const (
	ImportCarrierSheet   ImportSourceType = "carrier-sheet"
	ImportXempus         ImportSourceType = "xempus"
	ImportFreeCommission ImportSourceType = "free-commission"
)

// ImportBatch records one import run's provenance and row counts.
type ImportBatch struct {
	ID           int64            `yaml:"id"`
	SourceType   ImportSourceType `yaml:"source_type"`
	Filename     string           `yaml:"filename"`
	Carrier      string           `yaml:"carrier,omitempty"`
	SheetName    string           `yaml:"sheet_name,omitempty"`
	TotalRows    int              `yaml:"total_rows"`
	ImportedRows int              `yaml:"imported_rows"`
	MatchedRows  int              `yaml:"matched_rows"`
	SkippedRows  int              `yaml:"skipped_rows"`
	ErrorRows    int              `yaml:"error_rows"`
	ImportedBy   string           `yaml:"imported_by"`
	CreatedAt    time.Time        `yaml:"created_at"`
	SourceSHA256 string           `yaml:"source_sha256"`
}

// RowError records one row-level failure within an ImportBatch, surfaced to
// the caller instead of aborting the whole import (SPEC_FULL.md supplement
// from original_source's ImportResult.errors count).
type RowError struct {
	SourceRow int
	Message   string
}

// ImportResult is the outcome of one import operation, enriched beyond the
// bare row counts with the row-level errors that produced them.
type ImportResult struct {
	Batch  ImportBatch
	Errors []RowError
}

// SettlementStatus is the settlement state machine of spec §3.3/§4.12.
type SettlementStatus string

const (
	SettlementDraft    SettlementStatus = "draft"
	SettlementReviewed SettlementStatus = "reviewed"
	SettlementReleased SettlementStatus = "released"
	SettlementPaid     SettlementStatus = "paid"
)

// Frozen reports whether s is immutable per spec §3.3 invariant 6.
func (s SettlementStatus) Frozen() bool {
	return s == SettlementReleased || s == SettlementPaid
}

// Settlement is one employee's monthly commission summary, in integer
// cents, revisioned on regeneration.
type Settlement struct {
	ID               int64            `yaml:"id"`
	Month            string           `yaml:"month"` // "YYYY-MM"
	EmployeeID       int64            `yaml:"employee_id"`
	Revision         int              `yaml:"revision"`
	GrossCents       int64            `yaml:"gross_cents"`
	TLDeductionCents int64            `yaml:"tl_deduction_cents"`
	NetCents         int64            `yaml:"net_cents"`
	ChargebackCents  int64            `yaml:"chargeback_cents"`
	PayoutCents      int64            `yaml:"payout_cents"`
	PositionCount    int              `yaml:"position_count"`
	Status           SettlementStatus `yaml:"status"`
	Locked           bool             `yaml:"locked"`

	// IsRegeneratedAfterRelease marks a parallel revision written for a
	// (month, employee) whose prior revision was already released/paid
	// (spec §4.12): the prior revision is preserved, this one is new.
	IsRegeneratedAfterRelease bool `yaml:"is_regenerated_after_release"`
}

// Frozen reports whether the settlement's shares are immutable: either its
// status or its explicit lock flag freezes it (spec §3.3 invariant 6).
func (s Settlement) Frozen() bool {
	return s.Status.Frozen() || s.Locked
}

// RecalcSummary reports the blast radius of a commission-model rate change
// with a cutoff date (spec §3.3 invariant 5, §4.11).
type RecalcSummary struct {
	SplitsRecalculated      int
	SettlementsRegenerated  int
	AffectedEmployees       int
	FromDate                string
}

// AuditAction enumerates the mutation kinds spec §3.3 invariant 7 requires
// exactly one audit entry for.
type AuditAction string

const (
	ActionMatchStatusChanged AuditAction = "match_status_changed"
	ActionAssigned           AuditAction = "assigned"
	ActionOverridden         AuditAction = "overridden"
	ActionSettlementStatus   AuditAction = "settlement_status_changed"
	ActionModelChanged       AuditAction = "model_changed"
	ActionImported           AuditAction = "imported"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         int64          `yaml:"id"`
	EntityType string         `yaml:"entity_type"`
	EntityID   int64          `yaml:"entity_id"`
	Action     AuditAction    `yaml:"action"`
	Actor      string         `yaml:"actor"`
	Timestamp  time.Time      `yaml:"timestamp"`
	Diff       map[string]any `yaml:"diff,omitempty"`
}
