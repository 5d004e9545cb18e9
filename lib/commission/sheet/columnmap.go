package sheet

import "strings"

// Field identifies one of the canonical commission columns a carrier sheet
// must supply (spec §4.7).
type Field string

const (
	FieldVSNR           Field = "vsnr"
	FieldAmount         Field = "amount"
	FieldBookingCode    Field = "booking_code"
	FieldPayoutDate     Field = "payout_date"
	FieldCommissionRate Field = "commission_rate"
	FieldPolicyholder   Field = "policyholder"
	FieldConditionsCode Field = "conditions_code"
	FieldNegativeAmount Field = "negative_amount" // optional
)

// ColumnMap names, for one carrier's sheet layout, which header keywords
// identify each canonical Field. Detection matches header cells
// case-insensitively against any of a field's keywords.
type ColumnMap struct {
	Carrier    string
	SheetNames []string // known sheet names this map applies to, if matched directly
	Keywords   map[Field][]string
}

// DefaultColumnMaps are the built-in column maps for the three carriers
// with bespoke relevance rules; other carriers fall back to header-keyword
// detection using GenericKeywords.
var DefaultColumnMaps = []ColumnMap{
	{
		Carrier:    CarrierA,
		SheetNames: []string{"Courtage", "Courtageabrechnung"},
		Keywords: map[Field][]string{
			FieldVSNR:           {"vsnr", "vertragsnummer"},
			FieldAmount:         {"betrag", "courtage"},
			FieldBookingCode:    {"buchungsart"},
			FieldPayoutDate:     {"datum", "auszahlungsdatum"},
			FieldCommissionRate: {"courtagesatz", "satz"},
			FieldPolicyholder:   {"versicherungsnehmer", "vn"},
			FieldConditionsCode: {"konditionssatz"},
		},
	},
	{
		Carrier:    CarrierB,
		SheetNames: []string{"Provisionsabrechnung"},
		Keywords: map[Field][]string{
			FieldVSNR:           {"vsnr", "policennummer"},
			FieldAmount:         {"betrag", "provision"},
			FieldBookingCode:    {"buchungsart", "art"},
			FieldPayoutDate:     {"datum"},
			FieldCommissionRate: {"satz"},
			FieldPolicyholder:   {"versicherungsnehmer"},
			FieldConditionsCode: {"konditionssatz"},
		},
	},
	{
		Carrier:    CarrierC,
		SheetNames: []string{"Abrechnung"},
		Keywords: map[Field][]string{
			FieldVSNR:           {"vsnr", "vertrag"},
			FieldAmount:         {"betrag"},
			FieldBookingCode:    {"buchungsart"},
			FieldPayoutDate:     {"datum"},
			FieldCommissionRate: {"satz"},
			FieldPolicyholder:   {"vn", "versicherungsnehmer"},
			FieldConditionsCode: {"konditionssatz", "kondition"},
		},
	},
}

// GenericKeywords is the header-keyword vocabulary used for fuzzy
// detection when no carrier-specific ColumnMap's SheetNames matches the
// workbook's sheet name (spec §4.7: "header-signature fuzzy detection with
// ≥2 keyword hits").
var GenericKeywords = map[Field][]string{
	FieldVSNR:           {"vsnr", "vertragsnummer", "policennummer", "vertrag"},
	FieldAmount:         {"betrag", "provision", "courtage"},
	FieldBookingCode:    {"buchungsart", "art", "buchungsschlüssel"},
	FieldPayoutDate:     {"datum", "auszahlungsdatum", "zahldatum"},
	FieldCommissionRate: {"satz", "courtagesatz", "provisionssatz"},
	FieldPolicyholder:   {"versicherungsnehmer", "vn", "kunde"},
	FieldConditionsCode: {"konditionssatz", "kondition"},
	FieldNegativeAmount: {"storno", "rückbelastung"},
}

// ColumnMapForCarrier returns the carrier's built-in ColumnMap regardless
// of sheet name, or the generic keyword vocabulary if the carrier has no
// bespoke entry in DefaultColumnMaps. Used by lib/config to seed a
// configured carrier's column map with sensible built-in defaults.
func ColumnMapForCarrier(carrier string) ColumnMap {
	for _, cm := range DefaultColumnMaps {
		if strings.EqualFold(cm.Carrier, carrier) {
			return cm
		}
	}
	return ColumnMap{Carrier: carrier, Keywords: GenericKeywords}
}

// ResolveColumnMap selects the ColumnMap for carrier/sheetName: an exact
// SheetNames match first, else the generic keyword vocabulary scoped to
// the carrier.
func ResolveColumnMap(carrier, sheetName string) ColumnMap {
	for _, cm := range DefaultColumnMaps {
		if !strings.EqualFold(cm.Carrier, carrier) {
			continue
		}
		for _, name := range cm.SheetNames {
			if strings.EqualFold(name, sheetName) {
				return cm
			}
		}
	}
	return ColumnMap{Carrier: carrier, Keywords: GenericKeywords}
}

// DetectColumns maps each header cell (by 0-based index) to the Field it
// most likely represents, requiring at least minKeywordHits distinct
// fields to be detected overall for the sheet to be considered
// recognized (spec §4.7: "≥2 keyword hits").
func DetectColumns(cm ColumnMap, header []string) (map[Field]int, bool) {
	detected := make(map[Field]int)
	for i, cell := range header {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		if normalized == "" {
			continue
		}
		for field, keywords := range cm.Keywords {
			if _, already := detected[field]; already {
				continue
			}
			for _, kw := range keywords {
				if strings.Contains(normalized, kw) {
					detected[field] = i
					break
				}
			}
		}
	}
	return detected, len(detected) >= 2
}
