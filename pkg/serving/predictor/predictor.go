package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/synaptica-ai/readmission/pkg/ml/linear"
)

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrMissingFeature = errors.New("missing feature")
	ErrUnknownFeature = errors.New("unknown feature")
)

type Artifact struct {
	JobID string `json:"job_id"`
	RunID string `json:"run_id"`
	Model struct {
		Type         string         `json:"type"`
		Algorithm    string         `json:"algorithm"`
		FeatureNames []string       `json:"feature_names"`
		Indicators   []string       `json:"indicators"`
		Weights      linear.Weights `json:"weights"`
		Scaler       linear.Scaler  `json:"scaler"`
		Threshold    float64        `json:"threshold"`
	} `json:"model"`
}

type Prediction struct {
	Probability float64
	Readmitted  bool
	Version     string
}

type Predictor struct {
	dir   string
	cache map[string]cachedArtifact
	mu    sync.RWMutex
}

type cachedArtifact struct {
	artifact   Artifact
	modTime    int64
	indicators map[string]struct{}
}

func NewPredictor(dir string) *Predictor {
	return &Predictor{
		dir:   dir,
		cache: make(map[string]cachedArtifact),
	}
}

// Predict aligns features to the model's pinned column order. Absent
// indicator columns are 0; any other absent column is an error.
func (p *Predictor) Predict(model string, features map[string]float64) (Prediction, error) {
	cached, err := p.load(model)
	if err != nil {
		return Prediction{}, err
	}
	artifact := cached.artifact
	names := artifact.Model.FeatureNames
	if len(names) == 0 {
		return Prediction{}, fmt.Errorf("artifact for %s missing feature names", model)
	}
	if len(artifact.Model.Weights.Coefficients) != len(names) {
		return Prediction{}, fmt.Errorf("artifact for %s has %d coefficients for %d features", model, len(artifact.Model.Weights.Coefficients), len(names))
	}

	sample, err := align(names, cached.indicators, features)
	if err != nil {
		return Prediction{}, err
	}
	if len(artifact.Model.Scaler.Mean) == len(names) {
		sample = artifact.Model.Scaler.Transform(sample)
	}
	probability := linear.Predict(artifact.Model.Weights, sample)
	threshold := artifact.Model.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return Prediction{
		Probability: probability,
		Readmitted:  probability >= threshold,
		Version:     artifact.JobID,
	}, nil
}

func align(names []string, indicators map[string]struct{}, features map[string]float64) ([]float64, error) {
	known := make(map[string]struct{}, len(names))
	sample := make([]float64, len(names))
	var missing []string
	for idx, name := range names {
		known[name] = struct{}{}
		value, ok := features[name]
		if !ok {
			if _, indicator := indicators[name]; !indicator {
				missing = append(missing, name)
			}
			continue
		}
		sample[idx] = value
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFeature, strings.Join(missing, ", "))
	}
	var unknown []string
	for name := range features {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, strings.Join(unknown, ", "))
	}
	return sample, nil
}

// Models lists the model names with a latest artifact in the directory.
func (p *Predictor) Models() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "*_latest.json"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), "_latest.json"))
	}
	sort.Strings(out)
	return out, nil
}

// FeatureNames returns the column order the model was trained on.
func (p *Predictor) FeatureNames(model string) ([]string, error) {
	cached, err := p.load(model)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), cached.artifact.Model.FeatureNames...), nil
}

func (p *Predictor) load(model string) (cachedArtifact, error) {
	latest := filepath.Join(p.dir, fmt.Sprintf("%s_latest.json", model))
	info, err := os.Stat(latest)
	if errors.Is(err, os.ErrNotExist) {
		return cachedArtifact{}, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	if err != nil {
		return cachedArtifact{}, err
	}
	mod := info.ModTime().UnixNano()

	p.mu.RLock()
	cached, ok := p.cache[model]
	p.mu.RUnlock()
	if ok && cached.modTime == mod {
		return cached, nil
	}

	content, err := os.ReadFile(latest)
	if err != nil {
		return cachedArtifact{}, err
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return cachedArtifact{}, fmt.Errorf("decode artifact %s: %w", latest, err)
	}
	cached = cachedArtifact{
		artifact:   artifact,
		modTime:    mod,
		indicators: make(map[string]struct{}, len(artifact.Model.Indicators)),
	}
	for _, name := range artifact.Model.Indicators {
		cached.indicators[name] = struct{}{}
	}
	p.mu.Lock()
	p.cache[model] = cached
	p.mu.Unlock()
	return cached, nil
}
