package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/commission/audit"
	"github.com/atlas-broker/atlas/lib/commission/importer"
	"github.com/atlas-broker/atlas/lib/commission/match"
	"github.com/atlas-broker/atlas/lib/commission/model"
	"github.com/atlas-broker/atlas/lib/commission/settlement"
	"github.com/atlas-broker/atlas/lib/commission/sheet"
	"github.com/atlas-broker/atlas/lib/commission/split"
	"github.com/atlas-broker/atlas/lib/commission/xempus"
)

// CommissionCommand implements `atlas commission ...`: the import, match,
// clearance, manual-override, split, and settlement-lifecycle operations
// of spec §4.7-§4.13, all operating on the single YAML book named by
// --book.
type CommissionCommand struct {
	globals *GlobalFlags

	importSheet  *kingpin.CmdClause
	importXempus *kingpin.CmdClause
	matchCmd     *kingpin.CmdClause
	clearance    *kingpin.CmdClause
	assign       *kingpin.CmdClause
	override     *kingpin.CmdClause
	ignore       *kingpin.CmdClause
	settle       *kingpin.CmdClause
	transition   *kingpin.CmdClause

	carrierName string
	path        string
	actor       string

	commissionID int64
	contractID   int64
	consultantID int64
	reason       string

	month      string
	employeeID int64

	settlementID int64
	toStatus     string
}

func (c *CommissionCommand) Initialize(app *kingpin.Application, globals *GlobalFlags) {
	c.globals = globals
	root := app.Command("commission", "Import, match, split, and settle carrier commissions.")

	c.importSheet = root.Command("import-sheet", "Parse and import a carrier commission spreadsheet.")
	c.importSheet.Flag("carrier", "Carrier name, as declared in the config's carrier list.").Required().StringVar(&c.carrierName)
	c.importSheet.Flag("actor", "Actor name recorded on the import's audit entry.").Default("cli").StringVar(&c.actor)
	c.importSheet.Arg("file", "Path to the carrier's .xlsx commission sheet.").Required().StringVar(&c.path)

	c.importXempus = root.Command("import-xempus", "Parse and import a Xempus broker-portal contract export.")
	c.importXempus.Flag("actor", "Actor name recorded on the import's audit entry.").Default("cli").StringVar(&c.actor)
	c.importXempus.Arg("file", "Path to the Xempus .xlsx \"Beratungen\" export.").Required().StringVar(&c.path)

	c.matchCmd = root.Command("match", "Re-run auto-matching over every commission in the book.")
	c.matchCmd.Flag("actor", "Actor name recorded on any match-status-change audit entries.").Default("cli").StringVar(&c.actor)

	c.clearance = root.Command("clearance", "List commissions that still need manual contract or consultant resolution.")

	c.assign = root.Command("assign", "Manually assign a contract to an unmatched commission.")
	c.assign.Arg("commission-id", "Commission ID.").Required().Int64Var(&c.commissionID)
	c.assign.Arg("contract-id", "Contract ID to assign.").Required().Int64Var(&c.contractID)
	c.assign.Flag("actor", "Actor name recorded on the audit entry.").Default("cli").StringVar(&c.actor)

	c.override = root.Command("override", "Manually set or correct a commission's consultant.")
	c.override.Arg("commission-id", "Commission ID.").Required().Int64Var(&c.commissionID)
	c.override.Arg("consultant-id", "Employee ID of the consultant.").Required().Int64Var(&c.consultantID)
	c.override.Flag("reason", "Reason recorded on the audit entry.").Required().StringVar(&c.reason)
	c.override.Flag("actor", "Actor name recorded on the audit entry.").Default("cli").StringVar(&c.actor)

	c.ignore = root.Command("ignore", "Exclude a commission from settlement.")
	c.ignore.Arg("commission-id", "Commission ID.").Required().Int64Var(&c.commissionID)
	c.ignore.Flag("actor", "Actor name recorded on the audit entry.").Default("cli").StringVar(&c.actor)

	c.settle = root.Command("settle", "Generate or regenerate an employee's monthly settlement.")
	c.settle.Arg("month", "Settlement month, YYYY-MM.").Required().StringVar(&c.month)
	c.settle.Arg("employee-id", "Employee ID.").Required().Int64Var(&c.employeeID)

	c.transition = root.Command("transition", "Move a settlement to a new status (draft/reviewed/released/paid).")
	c.transition.Arg("settlement-id", "Settlement ID.").Required().Int64Var(&c.settlementID)
	c.transition.Arg("to-status", "Target status.").Required().StringVar(&c.toStatus)
	c.transition.Flag("actor", "Actor name recorded on the audit entry.").Default("cli").StringVar(&c.actor)
}

func (c *CommissionCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	switch selectedCommand {
	case c.importSheet.FullCommand():
		return true, c.runImportSheet(ctx)
	case c.importXempus.FullCommand():
		return true, c.runImportXempus(ctx)
	case c.matchCmd.FullCommand():
		return true, c.runMatch(ctx)
	case c.clearance.FullCommand():
		return true, c.runClearance(ctx)
	case c.assign.FullCommand():
		return true, c.runAssign(ctx)
	case c.override.FullCommand():
		return true, c.runOverride(ctx)
	case c.ignore.FullCommand():
		return true, c.runIgnore(ctx)
	case c.settle.FullCommand():
		return true, c.runSettle(ctx)
	case c.transition.FullCommand():
		return true, c.runTransition(ctx)
	default:
		return false, nil
	}
}

func (c *CommissionCommand) runImportSheet(ctx context.Context) error {
	content, err := os.ReadFile(c.path)
	if err != nil {
		return trace.Wrap(err, "reading %q", c.path)
	}

	parsed, err := sheet.ParseWorkbook(c.carrierName, content)
	if err != nil {
		return trace.Wrap(err)
	}
	for _, rowErr := range parsed.Errors {
		log.Warnf("row %d: %s", rowErr.SourceRow, rowErr.Message)
	}

	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	sum := sha256.Sum256(content)
	batch := model.ImportBatch{
		SourceType:   model.ImportCarrierSheet,
		Filename:     c.path,
		Carrier:      c.carrierName,
		SheetName:    parsed.SheetName,
		ImportedBy:   c.actor,
		CreatedAt:    systemClock.Now().UTC(),
		SourceSHA256: hex.EncodeToString(sum[:]),
	}

	result, err := importer.Import(ctx, batch, parsed.Commissions, b, b.ContractIndex(), b.IntermediaryIndex(), b, systemClock, importer.Options{Actor: c.actor})
	if err != nil {
		return trace.Wrap(err)
	}
	printImportResult(result)

	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runImportXempus(ctx context.Context) error {
	content, err := os.ReadFile(c.path)
	if err != nil {
		return trace.Wrap(err, "reading %q", c.path)
	}

	parsed, err := xempus.Parse(content)
	if err != nil {
		return trace.Wrap(err)
	}
	for _, rowErr := range parsed.Errors {
		log.Warnf("row %d: %s", rowErr.SourceRow, rowErr.Message)
	}

	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	imported := 0
	for _, contract := range parsed.Contracts {
		b.AddContract(contract)
		imported++
	}

	sum := sha256.Sum256(content)
	entry := model.AuditEntry{
		EntityType: "import_batch",
		Action:     model.ActionImported,
		Actor:      c.actor,
		Timestamp:  systemClock.Now().UTC(),
		Diff: map[string]any{
			"source_type":    model.ImportXempus,
			"filename":       c.path,
			"imported_rows":  imported,
			"skipped_rows":   parsed.Skipped,
			"error_rows":     len(parsed.Errors),
			"source_sha_256": hex.EncodeToString(sum[:]),
		},
	}
	if err := b.Record(ctx, entry); err != nil {
		return trace.Wrap(err)
	}

	fmt.Printf("xempus import: %d contracts imported, %d skipped, %d errors\n", imported, parsed.Skipped, len(parsed.Errors))
	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runMatch(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	contracts := b.ContractIndex()
	intermediaries := b.IntermediaryIndex()

	changed := 0
	for _, commission := range b.Commissions {
		before := commission.MatchStatus
		after := match.Commission(commission, contracts, intermediaries)
		if after.MatchStatus != before {
			if err := b.Record(ctx, audit.MatchStatusChanged(systemClock, after.ID, c.actor, before, after.MatchStatus)); err != nil {
				return trace.Wrap(err)
			}
			changed++
		}
		b.PutCommission(after)
	}

	fmt.Printf("match: %d commissions changed status\n", changed)
	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runClearance(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	queue := match.ClearanceQueue(b.Commissions)
	if len(queue) == 0 {
		fmt.Println("clearance queue is empty")
		return nil
	}
	fmt.Printf("%-8s %-12s %-10s %-12s %s\n", "ID", "VSNR", "AMOUNT", "STATUS", "CARRIER")
	for _, commission := range queue {
		fmt.Printf("%-8d %-12s %-10.2f %-12s %s\n", commission.ID, commission.VSNRNormalized, commission.Amount, commission.MatchStatus, commission.Carrier)
	}
	return nil
}

func (c *CommissionCommand) runAssign(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	commission, ok := b.CommissionByID(c.commissionID)
	if !ok {
		return trace.NotFound("commission %d not found", c.commissionID)
	}

	updated := match.AssignContract(commission, c.contractID)
	b.PutCommission(updated)
	if err := b.Record(ctx, audit.Assigned(systemClock, updated.ID, c.actor, c.contractID)); err != nil {
		return trace.Wrap(err)
	}
	fmt.Printf("commission %d assigned to contract %d\n", c.commissionID, c.contractID)
	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runOverride(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	commission, ok := b.CommissionByID(c.commissionID)
	if !ok {
		return trace.NotFound("commission %d not found", c.commissionID)
	}

	updated := match.OverrideConsultant(commission, c.consultantID)
	b.PutCommission(updated)
	diff := map[string]any{"consultant_id": c.consultantID}
	if err := b.Record(ctx, audit.Overridden(systemClock, updated.ID, c.actor, c.reason, diff)); err != nil {
		return trace.Wrap(err)
	}
	fmt.Printf("commission %d consultant overridden to employee %d\n", c.commissionID, c.consultantID)
	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runIgnore(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	commission, ok := b.CommissionByID(c.commissionID)
	if !ok {
		return trace.NotFound("commission %d not found", c.commissionID)
	}

	before := commission.MatchStatus
	updated := match.Ignore(commission)
	b.PutCommission(updated)
	if err := b.Record(ctx, audit.MatchStatusChanged(systemClock, updated.ID, c.actor, before, updated.MatchStatus)); err != nil {
		return trace.Wrap(err)
	}
	fmt.Printf("commission %d marked ignored\n", c.commissionID)
	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runSettle(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	employee, ok := b.EmployeeByID(c.employeeID)
	if !ok {
		return trace.NotFound("employee %d not found", c.employeeID)
	}

	commissions := b.CommissionsFor(c.employeeID, c.month)
	for i, commission := range commissions {
		computed, err := split.Commission(commission, employee, b.CommissionModels)
		if err != nil {
			return trace.Wrap(err, "commission %d", commission.ID)
		}
		commission.Split = computed
		commissions[i] = commission
		b.PutCommission(commission)
	}

	priors := b.SettlementsFor(c.month, c.employeeID)
	s := settlement.Regenerate(c.month, c.employeeID, commissions, priors)
	stored := b.PutSettlement(s)

	fmt.Printf("settlement %d (%s, employee %d, rev %d, status %s): gross=%d net=%d chargeback=%d payout=%d positions=%d\n",
		stored.ID, stored.Month, stored.EmployeeID, stored.Revision, stored.Status,
		stored.GrossCents, stored.NetCents, stored.ChargebackCents, stored.PayoutCents, stored.PositionCount)

	return saveBook(b, c.globals.BookPath)
}

func (c *CommissionCommand) runTransition(ctx context.Context) error {
	b, err := loadBook(c.globals.BookPath)
	if err != nil {
		return trace.Wrap(err)
	}

	var found *model.Settlement
	for i := range b.Settlements {
		if b.Settlements[i].ID == c.settlementID {
			found = &b.Settlements[i]
			break
		}
	}
	if found == nil {
		return trace.NotFound("settlement %d not found", c.settlementID)
	}

	before := found.Status
	updated, err := settlement.Transition(*found, model.SettlementStatus(c.toStatus))
	if err != nil {
		return trace.Wrap(err)
	}
	b.PutSettlement(updated)
	if err := b.Record(ctx, audit.SettlementStatusChanged(systemClock, updated.ID, c.actor, before, updated.Status)); err != nil {
		return trace.Wrap(err)
	}

	fmt.Printf("settlement %d: %s -> %s\n", updated.ID, before, updated.Status)
	return saveBook(b, c.globals.BookPath)
}

func printImportResult(result model.ImportResult) {
	fmt.Printf("import batch: total=%d imported=%d matched=%d skipped=%d errors=%d\n",
		result.Batch.TotalRows, result.Batch.ImportedRows, result.Batch.MatchedRows,
		result.Batch.SkippedRows, result.Batch.ErrorRows)
}
