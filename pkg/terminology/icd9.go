package terminology

import (
	"errors"
	"strconv"
	"strings"
)

// ICD9Rule assigns Category to numeric codes in [Lower, Upper], or in
// [Lower, Upper) when UpperExclusive is set, and to any code listed in Codes.
type ICD9Rule struct {
	Category       string    `yaml:"category" json:"category"`
	Lower          float64   `yaml:"lower" json:"lower"`
	Upper          float64   `yaml:"upper" json:"upper"`
	UpperExclusive bool      `yaml:"upper_exclusive,omitempty" json:"upper_exclusive,omitempty"`
	Codes          []float64 `yaml:"codes,omitempty" json:"codes,omitempty"`
}

func (r ICD9Rule) Matches(code float64) bool {
	for _, c := range r.Codes {
		if code == c {
			return true
		}
	}
	if code < r.Lower {
		return false
	}
	if r.UpperExclusive {
		return code < r.Upper
	}
	return code <= r.Upper
}

func (r ICD9Rule) validate() error {
	if r.Category == "" {
		return errors.New("category required")
	}
	if r.Upper < r.Lower {
		return errors.New("upper bound below lower bound")
	}
	return nil
}

// DefaultICD9Ranges are the ICD-9 chapter groupings, evaluated top to bottom.
func DefaultICD9Ranges() []ICD9Rule {
	return []ICD9Rule{
		{Category: "circulatory", Lower: 390, Upper: 459, Codes: []float64{785}},
		{Category: "respiratory", Lower: 460, Upper: 519, Codes: []float64{786}},
		{Category: "digestive", Lower: 520, Upper: 579, Codes: []float64{787}},
		{Category: "diabetes", Lower: 250, Upper: 251, UpperExclusive: true},
		{Category: "injury", Lower: 800, Upper: 999},
		{Category: "musculoskeletal", Lower: 710, Upper: 739},
		{Category: "genitourinary", Lower: 580, Upper: 629, Codes: []float64{788}},
		{Category: "neoplasms", Lower: 140, Upper: 239},
	}
}

// ICD9Category maps a raw diagnosis code to its clinical category. Supplementary
// (V) and external-cause (E) codes, unparseable codes and codes outside every
// range fall back to the catalog's fallback category.
func (c Catalog) ICD9Category(code string, present bool) string {
	if !present {
		return c.ICD9Fallback
	}
	code = strings.TrimSpace(code)
	for _, prefix := range c.ICD9OtherPrefixes {
		if strings.HasPrefix(code, prefix) {
			return c.ICD9Fallback
		}
	}
	value, err := strconv.ParseFloat(code, 64)
	if err != nil {
		return c.ICD9Fallback
	}
	for _, rule := range c.ICD9Ranges {
		if rule.Matches(value) {
			return rule.Category
		}
	}
	return c.ICD9Fallback
}
