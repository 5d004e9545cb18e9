// Package xempus parses the broker portal's "Beratungen" contract export
// into canonical model.Contract records (spec §4.8).
package xempus

import (
	"bytes"
	"strings"

	"github.com/gravitational/trace"
	"github.com/xuri/excelize/v2"

	"github.com/atlas-broker/atlas/lib/commission/model"
	"github.com/atlas-broker/atlas/lib/commission/normalize"
)

const sheetName = "Beratungen"

// statusSkipped is the portal status whose rows are dropped entirely
// rather than imported as a Contract (spec §4.8).
const statusSkipped = "nicht gewünscht"

// statusMap is total over every portal status the export can carry;
// any other value is a row-level error rather than silently defaulted.
var statusMap = map[string]model.ContractStatus{
	"abgeschlossen": model.ContractClosed,
	"beantragt":     model.ContractApplied,
	"offen":         model.ContractOpen,
	"storniert":     model.ContractCancelled,
}

var keywords = map[string][]string{
	"vsnr":      {"vsnr", "vertragsnummer"},
	"id":        {"id", "beratungs-id", "beratungsid"},
	"berater":   {"berater", "consultant"},
	"status":    {"status"},
	"vn":        {"vn", "versicherungsnehmer", "kunde"},
	"carrier":   {"gesellschaft", "versicherer", "carrier"},
	"branch":    {"sparte", "produkt"},
	"premium":   {"beitrag", "praemie", "prämie"},
	"inception": {"beginn", "versicherungsbeginn"},
}

// ParseResult is the outcome of parsing one Xempus export.
type ParseResult struct {
	Contracts []model.Contract
	Errors    []model.RowError
	Skipped   int
}

// Parse reads an XLSX export's bytes and returns one Contract per
// retained "Beratungen" row.
func Parse(content []byte) (ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ParseResult{}, trace.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sn, err := resolveSheet(f)
	if err != nil {
		return ParseResult{}, trace.Wrap(err)
	}

	all, err := f.GetRows(sn)
	if err != nil {
		return ParseResult{}, trace.Wrap(err)
	}
	if len(all) == 0 {
		return ParseResult{}, trace.BadParameter("sheet %q is empty", sn)
	}
	header := all[0]
	columns := detectColumns(header)

	var result ParseResult
	for i, row := range all[1:] {
		sourceRow := i + 2
		contract, skipped, err := parseRow(columns, row)
		if err != nil {
			result.Errors = append(result.Errors, model.RowError{SourceRow: sourceRow, Message: err.Error()})
			continue
		}
		if skipped {
			result.Skipped++
			continue
		}
		if contract == nil {
			continue
		}
		result.Contracts = append(result.Contracts, *contract)
	}
	return result, nil
}

func resolveSheet(f *excelize.File) (string, error) {
	for _, sn := range f.GetSheetList() {
		if strings.EqualFold(sn, sheetName) {
			return sn, nil
		}
	}
	names := f.GetSheetList()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", trace.BadParameter("workbook has no %q sheet", sheetName)
}

func detectColumns(header []string) map[string]int {
	detected := make(map[string]int)
	for i, h := range header {
		normalized := strings.ToLower(strings.TrimSpace(h))
		if normalized == "" {
			continue
		}
		for field, kws := range keywords {
			if _, ok := detected[field]; ok {
				continue
			}
			for _, kw := range kws {
				if strings.Contains(normalized, kw) {
					detected[field] = i
					break
				}
			}
		}
	}
	return detected
}

func cell(row []string, columns map[string]int, field string) string {
	idx, ok := columns[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseRow converts one "Beratungen" row into a Contract. The returned
// bool is true when the row's status is the skipped status, in which
// case the Contract is nil and no error is produced.
func parseRow(columns map[string]int, row []string) (*model.Contract, bool, error) {
	statusRaw := strings.ToLower(strings.TrimSpace(cell(row, columns, "status")))
	if statusRaw == strings.ToLower(statusSkipped) {
		return nil, true, nil
	}

	vsnr := cell(row, columns, "vsnr")
	portalID := cell(row, columns, "id")
	if vsnr == "" && portalID == "" {
		return nil, false, nil
	}

	status, ok := statusMap[statusRaw]
	if !ok {
		return nil, false, trace.BadParameter("unrecognized Xempus status %q", statusRaw)
	}

	contract := &model.Contract{
		VSNR:           vsnr,
		VSNRNormalized: normalize.VSNR(vsnr),
		Carrier:        cell(row, columns, "carrier"),
		Policyholder:   cell(row, columns, "vn"),
		Branch:         cell(row, columns, "branch"),
		Status:         status,
		Source:         model.SourceXempus,
		XempusID:       portalID,
	}
	return contract, false, nil
}
