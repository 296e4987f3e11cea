package pipeline

import (
	"fmt"

	"github.com/synaptica-ai/readmission/pkg/cleaning"
	"github.com/synaptica-ai/readmission/pkg/features"
	"github.com/synaptica-ai/readmission/pkg/terminology"
)

// NewStages builds a Cleaner and Encoder sharing one category catalog. An
// empty rulesFile uses the built-in tables; a positive cutoff also drops
// columns whose missing percentage exceeds it.
func NewStages(rulesFile string, cutoff float64) (*cleaning.Cleaner, *features.Encoder, error) {
	catalog := terminology.DefaultCatalog()
	if rulesFile != "" {
		loaded, err := terminology.Load(rulesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load category rules: %w", err)
		}
		catalog = loaded
	}

	cleanOpts := cleaning.DefaultOptions()
	cleanOpts.Catalog = catalog
	cleanOpts.MissingnessCutoff = cutoff
	cleaner, err := cleaning.NewCleaner(cleanOpts)
	if err != nil {
		return nil, nil, err
	}

	encodeOpts := features.DefaultOptions()
	encodeOpts.Catalog = catalog
	encodeOpts.NonComorbidCategory = catalog.ICD9Fallback
	encoder, err := features.NewEncoder(encodeOpts)
	if err != nil {
		return nil, nil, err
	}
	return cleaner, encoder, nil
}
