// Package sheet parses carrier commission spreadsheets into canonical
// model.Commission records (spec §4.7): locate the data sheet, detect its
// column layout, parse each row, classify its kind, apply the carrier's
// relevance rule, and compute a dedup row hash.
package sheet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/xuri/excelize/v2"

	"github.com/atlas-broker/atlas/lib/commission/model"
	"github.com/atlas-broker/atlas/lib/commission/normalize"
)

const minKeywordHits = 2

// ParseResult is the outcome of parsing one carrier workbook.
type ParseResult struct {
	SheetName   string
	Commissions []model.Commission
	Errors      []model.RowError
}

// ParseWorkbook reads an XLSX file's bytes and returns one canonical
// Commission per non-blank data row, with IsRelevant set by the carrier's
// relevance rule (irrelevant rows are returned too). Rows that fail to parse are recorded
// in Errors by 1-based sheet row rather than aborting the whole import.
func ParseWorkbook(carrier string, content []byte) (ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ParseResult{}, trace.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sheetName, header, rows, err := locateDataSheet(f, carrier)
	if err != nil {
		return ParseResult{}, trace.Wrap(err)
	}

	cm := ResolveColumnMap(carrier, sheetName)
	columns, ok := DetectColumns(cm, header)
	if !ok {
		return ParseResult{}, trace.BadParameter(
			"sheet %q: fewer than %d recognizable columns in header %v", sheetName, minKeywordHits, header)
	}

	result := ParseResult{SheetName: sheetName}
	for i, row := range rows {
		sourceRow := i + 2 // header is row 1, data starts at row 2
		commission, err := parseRow(carrier, columns, row, sourceRow)
		if err != nil {
			result.Errors = append(result.Errors, model.RowError{SourceRow: sourceRow, Message: err.Error()})
			continue
		}
		if commission == nil {
			continue // blank row
		}
		result.Commissions = append(result.Commissions, *commission)
	}
	return result, nil
}

// locateDataSheet picks the sheet to parse: the carrier's known
// SheetNames if one of them is present in the workbook, else the first
// sheet whose first row reaches the keyword-hit threshold.
func locateDataSheet(f *excelize.File, carrier string) (name string, header []string, rows [][]string, err error) {
	names := f.GetSheetList()
	if len(names) == 0 {
		return "", nil, nil, trace.BadParameter("workbook has no sheets")
	}

	for _, cm := range DefaultColumnMaps {
		if !strings.EqualFold(cm.Carrier, carrier) {
			continue
		}
		for _, candidate := range cm.SheetNames {
			for _, sn := range names {
				if strings.EqualFold(sn, candidate) {
					h, r, ferr := readSheet(f, sn)
					if ferr == nil {
						return sn, h, r, nil
					}
				}
			}
		}
	}

	for _, sn := range names {
		h, r, ferr := readSheet(f, sn)
		if ferr != nil {
			continue
		}
		if _, ok := DetectColumns(ResolveColumnMap(carrier, sn), h); ok {
			return sn, h, r, nil
		}
	}
	return "", nil, nil, trace.BadParameter("no sheet in workbook has a recognizable commission column layout")
}

func readSheet(f *excelize.File, name string) ([]string, [][]string, error) {
	all, err := f.GetRows(name)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if len(all) == 0 {
		return nil, nil, trace.BadParameter("sheet %q is empty", name)
	}
	return all[0], all[1:], nil
}

func cell(row []string, idx int, ok bool) string {
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseRow converts one data row into a Commission, or returns (nil, nil)
// for a row with no usable VSNR/amount (treated as blank/trailing).
func parseRow(carrier string, columns map[Field]int, row []string, sourceRow int) (*model.Commission, error) {
	vsnrIdx, hasVSNR := columns[FieldVSNR]
	amountIdx, hasAmount := columns[FieldAmount]

	vsnrRaw := cell(row, vsnrIdx, hasVSNR)
	amountRaw := cell(row, amountIdx, hasAmount)
	if vsnrRaw == "" && amountRaw == "" {
		return nil, nil
	}
	if vsnrRaw == "" {
		return nil, trace.BadParameter("row %d: missing VSNR", sourceRow)
	}
	if amountRaw == "" {
		return nil, trace.BadParameter("row %d: missing amount", sourceRow)
	}

	amount, err := parseAmount(amountRaw)
	if err != nil {
		return nil, trace.Wrap(err, "row %d: amount %q", sourceRow, amountRaw)
	}

	bookingCode := cell(row, columns[FieldBookingCode], true)
	conditionsCode := cell(row, columns[FieldConditionsCode], true)
	policyholder := cell(row, columns[FieldPolicyholder], true)

	var commissionRate *float64
	if idx, ok := columns[FieldCommissionRate]; ok {
		raw := cell(row, idx, true)
		if raw != "" {
			rate, err := parsePercent(raw)
			if err != nil {
				return nil, trace.Wrap(err, "row %d: commission rate %q", sourceRow, raw)
			}
			commissionRate = &rate
		}
	}

	var payoutDate *time.Time
	if idx, ok := columns[FieldPayoutDate]; ok {
		raw := cell(row, idx, true)
		if raw != "" {
			parsed, err := parseDate(raw)
			if err != nil {
				return nil, trace.Wrap(err, "row %d: payout date %q", sourceRow, raw)
			}
			payoutDate = &parsed
		}
	}

	vsnrNormalized := normalize.VSNR(vsnrRaw)
	kind := classifyKind(amount, bookingCode)
	relevant := IsRelevant(carrier, commissionRate, bookingCode, conditionsCode)

	commission := &model.Commission{
		VSNR:             vsnrRaw,
		VSNRNormalized:   vsnrNormalized,
		Amount:           amount,
		Kind:             kind,
		PayoutDate:       payoutDate,
		Carrier:          carrier,
		Policyholder:     policyholder,
		IntermediaryName: policyholder,
		MatchStatus:      model.MatchUnmatched,
		BookingCodeRaw:   bookingCode,
		ConditionsCode:   conditionsCode,
		CommissionRate:   commissionRate,
		IsRelevant:       relevant,
		SourceRow:        sourceRow,
	}
	commission.RowHash = rowHash(carrier, vsnrNormalized, amount, payoutDate, kind)
	return commission, nil
}

// classifyKind derives a Commission's Kind. A negative amount is always a
// chargeback regardless of booking code (spec §4.7); otherwise the
// carrier's booking-code vocabulary distinguishes initial from portfolio
// commission, defaulting to "other" when neither keyword is present.
func classifyKind(amount float64, bookingCode string) model.CommissionKind {
	if amount < 0 {
		return model.KindChargeback
	}
	lower := strings.ToLower(bookingCode)
	switch {
	case strings.Contains(lower, "abschluss") || strings.Contains(lower, "ap"):
		return model.KindInitial
	case strings.Contains(lower, "bestand") || strings.Contains(lower, "bp") || strings.Contains(lower, "portfolio"):
		return model.KindPortfolio
	default:
		return model.KindOther
	}
}

// rowHash is spec §4.7's import dedup key:
// SHA-256(carrier | vsnr_normalized | amount(2dp) | date | kind).
func rowHash(carrier, vsnrNormalized string, amount float64, payoutDate *time.Time, kind model.CommissionKind) string {
	dateStr := ""
	if payoutDate != nil {
		dateStr = payoutDate.Format("2006-01-02")
	}
	parts := strings.Join([]string{
		carrier,
		vsnrNormalized,
		strconv.FormatFloat(amount, 'f', 2, 64),
		dateStr,
		string(kind),
	}, "|")
	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])
}

func parseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, " ", "")
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	// German decimal comma with optional thousands separators.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	if negative {
		v = -v
	}
	return v, nil
}

func parsePercent(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	return parseAmount(s)
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "2.1.2006", "01/02/2006"}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, trace.BadParameter("unrecognized date format %q", raw)
}
