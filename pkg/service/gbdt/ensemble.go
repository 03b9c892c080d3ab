package gbdt

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"gonum.org/v1/gonum/floats"
)

// Ensemble is a trained multi-class boosted tree model. Trees[k] holds the trees of
// class k in boosting order. An Ensemble is immutable after training.
type Ensemble struct {
	NumClass   int       `json:"num_class"`
	NumFeature int       `json:"num_feature"`
	BaseScore  []float64 `json:"base_score"`
	Trees      [][]Tree  `json:"trees"`
}

func (e *Ensemble) check(x []float64) error {
	if len(x) != e.NumFeature {
		return goerr.Wrap(model.ErrConfiguration, "feature vector length does not match the model",
			goerr.V(model.ExpectedKey, e.NumFeature), goerr.V(model.ActualKey, len(x)))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return goerr.Wrap(model.ErrInvalidInput, "non-finite feature value", goerr.V("index", i))
		}
	}
	return nil
}

// Margins returns the raw per-class scores (logits) for x
func (e *Ensemble) Margins(x []float64) ([]float64, error) {
	if err := e.check(x); err != nil {
		return nil, err
	}
	out := append([]float64(nil), e.BaseScore...)
	for k, trees := range e.Trees {
		for t := range trees {
			out[k] += trees[t].Predict(x)
		}
	}
	return out, nil
}

// PredictProba returns the softmax class probabilities for x
func (e *Ensemble) PredictProba(x []float64) ([]float64, error) {
	m, err := e.Margins(x)
	if err != nil {
		return nil, err
	}
	return softmax(m), nil
}

// Contributions returns per-class, per-feature path attributions and per-class bias such
// that bias[k] + sum(contrib[k]) equals Margins(x)[k].
func (e *Ensemble) Contributions(x []float64) (contrib [][]float64, bias []float64, err error) {
	if err := e.check(x); err != nil {
		return nil, nil, err
	}
	contrib = make([][]float64, e.NumClass)
	bias = append([]float64(nil), e.BaseScore...)
	for k, trees := range e.Trees {
		contrib[k] = make([]float64, e.NumFeature)
		for t := range trees {
			bias[k] += trees[t].contribute(x, contrib[k])
		}
	}
	return contrib, bias, nil
}

// FeatureImportance returns the total split gain of every feature across all trees
func (e *Ensemble) FeatureImportance() []float64 {
	out := make([]float64, e.NumFeature)
	for _, trees := range e.Trees {
		for _, tree := range trees {
			for _, n := range tree.Nodes {
				if !n.IsLeaf() {
					out[n.Feature] += n.Gain
				}
			}
		}
	}
	return out
}

// Validate checks structural consistency of a deserialized ensemble
func (e *Ensemble) Validate() error {
	if e.NumClass < 2 || len(e.BaseScore) != e.NumClass || len(e.Trees) != e.NumClass {
		return goerr.Wrap(model.ErrConfiguration, "ensemble class layout is inconsistent", goerr.V("classes", e.NumClass))
	}
	for k, trees := range e.Trees {
		for t, tree := range trees {
			if len(tree.Nodes) == 0 {
				return goerr.Wrap(model.ErrConfiguration, "empty tree", goerr.V("class", k), goerr.V("tree", t))
			}
			for i, n := range tree.Nodes {
				if n.IsLeaf() {
					continue
				}
				if n.Feature >= e.NumFeature || n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
					return goerr.Wrap(model.ErrConfiguration, "malformed tree node",
						goerr.V("class", k), goerr.V("tree", t), goerr.V("node", i))
				}
			}
		}
	}
	return nil
}

func softmax(m []float64) []float64 {
	lse := floats.LogSumExp(m)
	out := make([]float64, len(m))
	for k, v := range m {
		out[k] = math.Exp(v - lse)
	}
	return out
}
