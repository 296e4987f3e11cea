// Package terminology holds the category lookup tables used to regroup
// administrative codes, ICD-9 diagnosis codes and age buckets.
package terminology

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DischargedToHome      = "discharged_to_home"
	Expired               = "expired"
	TransferredToFacility = "transferred_to_facility"

	Referral  = "referral"
	Transfer  = "transfer"
	Emergency = "emergency"

	// Other is the fallback for administrative ids.
	Other = "other"
	// Others is the fallback diagnosis category.
	Others = "others"
)

// Catalog is the full set of lookup tables. Every lookup is total: values no
// rule matches resolve to the table's fallback category.
type Catalog struct {
	DischargeMap      map[int]string `yaml:"discharge_map" json:"discharge_map"`
	DischargeFallback string         `yaml:"discharge_fallback" json:"discharge_fallback"`

	AdmissionMap      map[int]string `yaml:"admission_map" json:"admission_map"`
	AdmissionFallback string         `yaml:"admission_fallback" json:"admission_fallback"`

	ICD9Ranges        []ICD9Rule `yaml:"icd9_ranges" json:"icd9_ranges"`
	ICD9OtherPrefixes []string   `yaml:"icd9_other_prefixes" json:"icd9_other_prefixes"`
	ICD9Fallback      string     `yaml:"icd9_fallback" json:"icd9_fallback"`

	AgeMidpoints map[string]float64 `yaml:"age_midpoints" json:"age_midpoints"`
}

// Load reads a YAML catalog. An empty path yields DefaultCatalog. Tables
// omitted from the file keep their default values.
func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, fmt.Errorf("read category catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse category catalog %s: %w", path, err)
	}
	cat = cat.withDefaults()
	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("category catalog %s: %w", path, err)
	}
	return cat, nil
}

func (c Catalog) withDefaults() Catalog {
	def := DefaultCatalog()
	if c.DischargeMap == nil {
		c.DischargeMap = def.DischargeMap
	}
	if c.DischargeFallback == "" {
		c.DischargeFallback = def.DischargeFallback
	}
	if c.AdmissionMap == nil {
		c.AdmissionMap = def.AdmissionMap
	}
	if c.AdmissionFallback == "" {
		c.AdmissionFallback = def.AdmissionFallback
	}
	if c.ICD9Ranges == nil {
		c.ICD9Ranges = def.ICD9Ranges
	}
	if c.ICD9OtherPrefixes == nil {
		c.ICD9OtherPrefixes = def.ICD9OtherPrefixes
	}
	if c.ICD9Fallback == "" {
		c.ICD9Fallback = def.ICD9Fallback
	}
	if c.AgeMidpoints == nil {
		c.AgeMidpoints = def.AgeMidpoints
	}
	return c
}

func (c Catalog) Validate() error {
	var errs []error
	if len(c.DischargeMap) == 0 {
		errs = append(errs, errors.New("discharge_map is empty"))
	}
	if len(c.AdmissionMap) == 0 {
		errs = append(errs, errors.New("admission_map is empty"))
	}
	if len(c.ICD9Ranges) == 0 {
		errs = append(errs, errors.New("icd9_ranges is empty"))
	}
	if len(c.AgeMidpoints) == 0 {
		errs = append(errs, errors.New("age_midpoints is empty"))
	}
	if c.DischargeFallback == "" || c.AdmissionFallback == "" || c.ICD9Fallback == "" {
		errs = append(errs, errors.New("every table needs a fallback category"))
	}
	for i, r := range c.ICD9Ranges {
		if err := r.validate(); err != nil {
			errs = append(errs, fmt.Errorf("icd9_ranges[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// DefaultCatalog returns the built-in tables for the UCI diabetes encounter dataset.
func DefaultCatalog() Catalog {
	return Catalog{
		DischargeMap: groupIDs(map[string][]int{
			DischargedToHome:      {1, 6, 8},
			Expired:               {11, 19, 20, 21},
			TransferredToFacility: {3, 4, 5, 14, 22, 23, 24},
		}),
		DischargeFallback: Other,

		AdmissionMap: groupIDs(map[string][]int{
			Referral:  {1, 2, 3},
			Transfer:  {4, 5, 6, 10, 22, 25},
			Emergency: {7},
		}),
		AdmissionFallback: Other,

		ICD9Ranges:        DefaultICD9Ranges(),
		ICD9OtherPrefixes: []string{"V", "E"},
		ICD9Fallback:      Others,

		AgeMidpoints: map[string]float64{
			"[0-10)":   5,
			"[10-20)":  15,
			"[20-30)":  25,
			"[30-40)":  35,
			"[40-50)":  45,
			"[50-60)":  55,
			"[60-70)":  65,
			"[70-80)":  75,
			"[80-90)":  85,
			"[90-100)": 95,
		},
	}
}

func groupIDs(groups map[string][]int) map[int]string {
	out := make(map[int]string)
	for category, ids := range groups {
		for _, id := range ids {
			out[id] = category
		}
	}
	return out
}
