package terminology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICD9CategoryBoundaries(t *testing.T) {
	cat := DefaultCatalog()
	cases := []struct {
		code string
		want string
	}{
		{"389", "others"},
		{"390", "circulatory"},
		{"459", "circulatory"},
		{"460", "respiratory"},
		{"519", "respiratory"},
		{"520", "digestive"},
		{"579", "digestive"},
		{"580", "genitourinary"},
		{"629", "genitourinary"},
		{"785", "circulatory"},
		{"786", "respiratory"},
		{"787", "digestive"},
		{"788", "genitourinary"},
		{"785.5", "others"},
		{"250", "diabetes"},
		{"250.13", "diabetes"},
		{"250.99", "diabetes"},
		{"251", "others"},
		{"249.9", "others"},
		{"710", "musculoskeletal"},
		{"739", "musculoskeletal"},
		{"800", "injury"},
		{"999", "injury"},
		{"140", "neoplasms"},
		{"239", "neoplasms"},
		{"139", "others"},
		{"V10", "others"},
		{"V57", "others"},
		{"E909", "others"},
		{"abc", "others"},
		{"", "others"},
		{" 428 ", "circulatory"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cat.ICD9Category(tc.code, true), "code %q", tc.code)
	}
	assert.Equal(t, "others", cat.ICD9Category("", false))
}

func TestDischargeDisposition(t *testing.T) {
	cat := DefaultCatalog()
	cases := map[string]string{
		"1":   DischargedToHome,
		"6":   DischargedToHome,
		"8":   DischargedToHome,
		"13":  Other,
		"11":  Expired,
		"21":  Expired,
		"3":   TransferredToFacility,
		"24":  TransferredToFacility,
		"999": Other,
		"1.0": DischargedToHome,
		"x":   Other,
		"1.5": Other,
	}
	for id, want := range cases {
		assert.Equal(t, want, cat.DischargeDisposition(id, true), "id %q", id)
	}
	assert.Equal(t, Other, cat.DischargeDisposition("", false))
}

func TestAdmissionSource(t *testing.T) {
	cat := DefaultCatalog()
	cases := map[string]string{
		"1":  Referral,
		"3":  Referral,
		"4":  Transfer,
		"10": Transfer,
		"25": Transfer,
		"7":  Emergency,
		"8":  Other,
		"17": Other,
	}
	for id, want := range cases {
		assert.Equal(t, want, cat.AdmissionSource(id, true), "id %q", id)
	}
}

func TestAgeMidpoint(t *testing.T) {
	cat := DefaultCatalog()
	v, ok := cat.AgeMidpoint("[70-80)", true)
	require.True(t, ok)
	assert.Equal(t, 75.0, v)

	_, ok = cat.AgeMidpoint("[100-110)", true)
	assert.False(t, ok)
	_, ok = cat.AgeMidpoint("", false)
	assert.False(t, ok)
	assert.Len(t, cat.AgeMidpoints, 10)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat)
}

func TestLoadShippedCatalogMatchesDefault(t *testing.T) {
	cat, err := Load(filepath.Join("..", "..", "configs", "categories.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat)
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "admission_map:\n  7: emergency\n  1: physician_referral\nadmission_fallback: unknown\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "physician_referral", cat.AdmissionSource("1", true))
	assert.Equal(t, "unknown", cat.AdmissionSource("4", true))
	assert.Equal(t, DischargedToHome, cat.DischargeDisposition("1", true))
	assert.Equal(t, "diabetes", cat.ICD9Category("250.01", true))
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "icd9_ranges:\n  - {category: broken, lower: 10, upper: 5}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "icd9_ranges[0]")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
