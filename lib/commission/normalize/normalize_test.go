package normalize

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestVSNR_StripsNonDigitsAndZeros(t *testing.T) {
	cases := []struct{ in, want string }{
		{"123-456-7890", "123456789"},
		{"1002030", "123"},
		{"000", "0"},
		{"", ""},
		{"abc", "0"},
		{"  12 34  ", "1234"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, VSNR(c.in), "input %q", c.in)
	}
}

func TestVSNR_ScientificNotationArtifact(t *testing.T) {
	require.Equal(t, "123457", VSNR("1.23457E+11"))
}

func TestVSNR_IsIdempotentUnderRepeatedNormalization(t *testing.T) {
	f := func(s string) bool {
		once := VSNR(s)
		twice := VSNR(once)
		return once == twice
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestVSNR_OutputIsAllDigitsOrZero(t *testing.T) {
	f := func(s string) bool {
		out := VSNR(s)
		if out == "" {
			return true
		}
		return nonDigit.FindStringIndex(out) == nil
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestIntermediary_TransliteratesUmlautsAndStripsPunctuation(t *testing.T) {
	require.Equal(t, "mueller gmbh", Intermediary("Müller & GmbH!"))
	require.Equal(t, "strasse", Intermediary("Straße"))
	require.Equal(t, "a b", Intermediary("  A   B  "))
}

func TestIntermediary_IsIdempotent(t *testing.T) {
	f := func(s string) bool {
		return Intermediary(s) == Intermediary(Intermediary(s))
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestDBName_ParenthesizedTextBecomesSpacePrefixed(t *testing.T) {
	require.Equal(t, "smith john", DBName("Smith (John)"))
}

func TestDBName_EmptyInput(t *testing.T) {
	require.Equal(t, "", DBName(""))
}

func TestVBIntermediaryName_ConvertsSurnameFirstnameFormat(t *testing.T) {
	require.Equal(t, "Mueller Hans", VBIntermediaryName("MUELLER (HANS)"))
}

func TestVBIntermediaryName_PlainNameIsTitleCased(t *testing.T) {
	require.Equal(t, "Hans Mueller", VBIntermediaryName("hans mueller"))
}

func TestSwissLifeVSNR_ReformatsTenDigits(t *testing.T) {
	require.Equal(t, "12345/67890", SwissLifeVSNR("1234567890"))
}

func TestSwissLifeVSNR_NonTenDigitPassesThrough(t *testing.T) {
	require.Equal(t, "123", SwissLifeVSNR("123"))
}

func TestSwissLifeVSNR_StripsSeparatorsBeforeCounting(t *testing.T) {
	require.Equal(t, "12345/67890", SwissLifeVSNR("12345-67890"))
}

