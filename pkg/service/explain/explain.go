package explain

import (
	"context"
	"math"
	"sort"

	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Kind identifies how attributions are computed
type Kind int

const (
	// KindUnavailable returns empty explanations
	KindUnavailable Kind = iota
	// KindTree decomposes tree ensemble paths into exact additive contributions
	KindTree
	// KindGeneric measures the probability change when a feature is reset to its baseline
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindGeneric:
		return "generic"
	default:
		return "unavailable"
	}
}

// TreeModel exposes per-class additive contributions
type TreeModel interface {
	Contributions(x []float64) ([][]float64, []float64, error)
}

// ProbabilityModel exposes class probabilities only
type ProbabilityModel interface {
	PredictProba(x []float64) ([]float64, error)
}

// Engine explains predictions of one model. The attribution strategy is selected once
// in New from the capabilities of the model.
type Engine struct {
	kind     Kind
	tree     TreeModel
	proba    ProbabilityModel
	names    []string
	baseline []float64
}

// Option configures Engine
type Option func(*Engine)

// WithBaseline sets the reference vector used by the generic strategy. The default
// baseline is all zeros, which is the training mean for standardized features.
func WithBaseline(baseline []float64) Option {
	return func(e *Engine) {
		e.baseline = baseline
	}
}

// New selects the attribution strategy for m. A nil or unsupported model, or an empty
// feature name list, yields an Engine of KindUnavailable.
func New(m any, featureNames []string, opts ...Option) *Engine {
	e := &Engine{names: featureNames}
	for _, opt := range opts {
		opt(e)
	}

	if len(featureNames) > 0 {
		switch v := m.(type) {
		case TreeModel:
			e.kind, e.tree = KindTree, v
		case ProbabilityModel:
			e.kind, e.proba = KindGeneric, v
		}
	}
	if e.baseline == nil || len(e.baseline) != len(featureNames) {
		e.baseline = make([]float64, len(featureNames))
	}
	return e
}

// Kind returns the selected strategy
func (e *Engine) Kind() Kind {
	return e.kind
}

// Explain returns the topK features with the largest attribution magnitude, where the
// magnitude of a feature is the sum over classes of its absolute attribution. Ties keep
// the lower feature index. topK <= 0 yields an empty result. Explain never fails: errors
// are logged and yield an empty result.
func (e *Engine) Explain(ctx context.Context, fv *model.FeatureVector, topK int) []model.Attribution {
	if e.kind == KindUnavailable || fv == nil || topK <= 0 {
		return []model.Attribution{}
	}

	var magnitude []float64
	var err error
	switch e.kind {
	case KindTree:
		magnitude, err = e.treeMagnitude(fv.Values)
	case KindGeneric:
		magnitude, err = e.genericMagnitude(fv.Values)
	}
	if err != nil {
		logging.From(ctx).Warn("feature attribution failed", "kind", e.kind.String(), "error", err)
		return []model.Attribution{}
	}

	return rank(e.names, magnitude, topK)
}

func (e *Engine) treeMagnitude(x []float64) ([]float64, error) {
	contrib, _, err := e.tree.Contributions(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e.names))
	for _, perClass := range contrib {
		for j := range out {
			if j < len(perClass) {
				out[j] += math.Abs(perClass[j])
			}
		}
	}
	return out, nil
}

func (e *Engine) genericMagnitude(x []float64) ([]float64, error) {
	base, err := e.proba.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e.names))
	occluded := append([]float64(nil), x...)
	for j := range out {
		if j >= len(occluded) || occluded[j] == e.baseline[j] {
			continue
		}
		occluded[j] = e.baseline[j]
		p, err := e.proba.PredictProba(occluded)
		if err != nil {
			return nil, err
		}
		occluded[j] = x[j]
		for k := range base {
			out[j] += math.Abs(base[k] - p[k])
		}
	}
	return out, nil
}

func rank(names []string, magnitude []float64, topK int) []model.Attribution {
	idx := make([]int, len(magnitude))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return magnitude[idx[a]] > magnitude[idx[b]] })

	if topK > len(idx) {
		topK = len(idx)
	}
	out := make([]model.Attribution, 0, topK)
	for _, i := range idx[:topK] {
		out = append(out, model.Attribution{Feature: names[i], Importance: magnitude[i]})
	}
	return out
}
