package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ModelSource is one member of the signal ensemble. The set is closed.
type ModelSource string

const (
	SourceSentiment ModelSource = "sentiment"
	SourceTechnical ModelSource = "technical"
	SourceMacro     ModelSource = "macro"
	SourceAdvisory  ModelSource = "advisory"
)

// legacyAdvisoryName is how older weight files name the advisory model.
const legacyAdvisoryName = "deepseek"

// ReferenceSource is the model whose prediction count gates optimization.
const ReferenceSource = SourceAdvisory

// AllSources lists every model source in display order.
var AllSources = []ModelSource{SourceSentiment, SourceTechnical, SourceMacro, SourceAdvisory}

func (s ModelSource) Valid() bool {
	switch s {
	case SourceSentiment, SourceTechnical, SourceMacro, SourceAdvisory:
		return true
	}
	return false
}

// ParseModelSource accepts canonical names and the legacy advisory alias.
func ParseModelSource(raw string) (ModelSource, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == legacyAdvisoryName {
		return SourceAdvisory, nil
	}
	s := ModelSource(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown model source %q", raw)
	}
	return s, nil
}

// Prediction is a model's call on a trade at entry time.
type Prediction string

const (
	PredictionBuy  Prediction = "BUY"
	PredictionHold Prediction = "HOLD"
	PredictionSell Prediction = "SELL"
)

// Weights maps every model source to its share of the ensemble.
type Weights map[ModelSource]float64

// DefaultWeights is the starting ensemble before any optimization.
func DefaultWeights() Weights {
	return Weights{
		SourceSentiment: 0.20,
		SourceTechnical: 0.35,
		SourceMacro:     0.15,
		SourceAdvisory:  0.30,
	}
}

// ParseWeights converts string keyed weights, as found in config and
// persisted state, into Weights. Keys are not required to be complete.
func ParseWeights(raw map[string]float64) (Weights, error) {
	out := make(Weights, len(raw))
	for name, v := range raw {
		source, err := ParseModelSource(name)
		if err != nil {
			return nil, err
		}
		if _, dup := out[source]; dup {
			return nil, fmt.Errorf("model source %s given twice", source)
		}
		out[source] = v
	}
	return out, nil
}

// Normalize checks that every source has a finite non-negative weight and
// scales the set to sum to 1.
func (w Weights) Normalize() (Weights, error) {
	var sum float64
	for _, source := range AllSources {
		v, ok := w[source]
		if !ok {
			return nil, fmt.Errorf("missing weight for %s", source)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid weight %v for %s", v, source)
		}
		sum += v
	}
	if len(w) != len(AllSources) {
		return nil, fmt.Errorf("unexpected model sources in weights")
	}
	if sum <= 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}

	out := make(Weights, len(w))
	for source, v := range w {
		out[source] = v / sum
	}
	return out, nil
}

func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum is the total of all weights.
func (w Weights) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// StringMap is the label friendly form used by metrics and logs.
func (w Weights) StringMap() map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[string(k)] = v
	}
	return out
}

func (w Weights) String() string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %.2f%%", k, w[ModelSource(k)]*100)
	}
	return strings.Join(parts, ", ")
}

func (w *Weights) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseWeights(raw)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
