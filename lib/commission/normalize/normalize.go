// Package normalize implements the pure string-normalization functions of
// spec §4.9: VSNR, intermediary name, and DB-column name normalization.
// Each function is total and side-effect free, grounded on
// original_source's normalization.py.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var nonDigit = regexp.MustCompile(`\D`)

// VSNR normalizes a policy number for matching (spec §3.3 invariant 1):
// strip non-digits, strip all '0' digits, and if that leaves nothing,
// return "0". Blank (empty or all-whitespace) input returns "" instead.
// Also collapses a scientific-notation spreadsheet artifact
// (e.g. "1.23457E+11") back to its integer digits before stripping.
func VSNR(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "e") && (strings.Contains(s, ",") || strings.Contains(s, ".")) {
		candidate := strings.ReplaceAll(s, ",", ".")
		if num, err := strconv.ParseFloat(candidate, 64); err == nil && num > 0 {
			s = strconv.FormatInt(int64(num), 10)
		}
	}
	digits := nonDigit.ReplaceAllString(s, "")
	noZeros := strings.ReplaceAll(digits, "0", "")
	if noZeros == "" {
		return "0"
	}
	return noZeros
}

var replacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

var nonAlnumSpace = regexp.MustCompile(`[^a-z0-9\s]`)
var multiSpace = regexp.MustCompile(`\s+`)

// Intermediary normalizes a carrier-side intermediary name for matching:
// lowercase, transliterate German umlauts, strip non-alphanumerics, and
// collapse whitespace.
func Intermediary(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = replacer.Replace(s)
	s = nonAlnumSpace.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var parenthesized = regexp.MustCompile(`\(([^)]+)\)`)
var nonAlnumToSpace = regexp.MustCompile(`[^a-z0-9\s]`)

// DBName normalizes a person's name for a normalized-name DB column: like
// Intermediary, but parenthesized text is unwrapped with a leading space and
// other punctuation becomes a space instead of being removed
// ("Smith (John)" -> "smith john", "a-b" -> "a b").
func DBName(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(name))
	s = replacer.Replace(s)
	s = parenthesized.ReplaceAllString(s, " $1")
	s = nonAlnumToSpace.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var vbFormat = regexp.MustCompile(`^([^(]+)\(([^)]+)\)$`)

// VBIntermediaryName converts carrier VB's "SURNAME (FIRSTNAME)" format
// into "Surname Firstname" title case; any other shape is just title-cased.
func VBIntermediaryName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := vbFormat.FindStringSubmatch(raw); m != nil {
		surname := strings.TrimSpace(m[1])
		firstname := strings.TrimSpace(m[2])
		return title(surname) + " " + title(firstname)
	}
	return title(raw)
}

func title(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// SwissLifeVSNR reformats a 10-digit Carrier B VSNR into its canonical
// "XXXXX/XXXXX" presentation form; non-10-digit input is returned
// unchanged (the raw value, not an error, since this is a display-format
// concern distinct from the matching normalization above).
func SwissLifeVSNR(raw string) string {
	digits := nonDigit.ReplaceAllString(strings.TrimSpace(raw), "")
	if len(digits) == 10 {
		return digits[:5] + "/" + digits[5:]
	}
	return raw
}
