package gbdt

import (
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"golang.org/x/sync/errgroup"
)

const minHessian = 1e-16

// Train fits a multi-class ensemble with softmax log-loss using second order gradient
// boosting. X is row-major, y holds class indices in [0, numClass).
func Train(X [][]float64, y []int, numClass int, cfg Config) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateTrainingSet(X, y, numClass); err != nil {
		return nil, err
	}

	n, width := len(X), len(X[0])
	e := &Ensemble{
		NumClass:   numClass,
		NumFeature: width,
		BaseScore:  priorScores(y, numClass),
		Trees:      make([][]Tree, numClass),
	}

	order := presort(X, width)
	margins := make([][]float64, n)
	for i := range margins {
		margins[i] = append([]float64(nil), e.BaseScore...)
	}

	grad := make([][]float64, numClass)
	hess := make([][]float64, numClass)
	for k := range grad {
		grad[k] = make([]float64, n)
		hess[k] = make([]float64, n)
	}

	for round := 0; round < cfg.Rounds; round++ {
		for i := range X {
			p := softmax(margins[i])
			for k := 0; k < numClass; k++ {
				target := 0.0
				if y[i] == k {
					target = 1
				}
				grad[k][i] = p[k] - target
				hess[k][i] = math.Max(2*p[k]*(1-p[k]), minHessian)
			}
		}

		trees := make([]Tree, numClass)
		var eg errgroup.Group
		for k := 0; k < numClass; k++ {
			eg.Go(func() error {
				b := &builder{X: X, g: grad[k], h: hess[k], order: order, cfg: cfg, inNode: make([]bool, n)}
				trees[k] = b.grow()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, goerr.Wrap(err, "failed to grow trees", goerr.V("round", round))
		}

		for k, tree := range trees {
			e.Trees[k] = append(e.Trees[k], tree)
			for i := range X {
				margins[i][k] += tree.Predict(X[i])
			}
		}
	}

	return e, nil
}

func validateTrainingSet(X [][]float64, y []int, numClass int) error {
	if len(X) == 0 {
		return goerr.Wrap(model.ErrInvalidInput, "empty training set")
	}
	if len(X) != len(y) {
		return goerr.Wrap(model.ErrInvalidInput, "feature and label counts differ",
			goerr.V("rows", len(X)), goerr.V("labels", len(y)))
	}
	if numClass < 2 {
		return goerr.Wrap(model.ErrInvalidInput, "at least two classes are required", goerr.V("classes", numClass))
	}
	width := len(X[0])
	if width == 0 {
		return goerr.Wrap(model.ErrInvalidInput, "rows have no features")
	}
	for i, row := range X {
		if len(row) != width {
			return goerr.Wrap(model.ErrInvalidInput, "ragged feature matrix",
				goerr.V("row", i), goerr.V(model.ExpectedKey, width), goerr.V(model.ActualKey, len(row)))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return goerr.Wrap(model.ErrInvalidInput, "non-finite feature value", goerr.V("row", i))
			}
		}
		if y[i] < 0 || y[i] >= numClass {
			return goerr.Wrap(model.ErrInvalidInput, "label out of range", goerr.V("row", i), goerr.V("label", y[i]))
		}
	}
	return nil
}

// priorScores starts every class at its smoothed log prior
func priorScores(y []int, numClass int) []float64 {
	counts := make([]float64, numClass)
	for _, label := range y {
		counts[label]++
	}
	out := make([]float64, numClass)
	total := float64(len(y) + numClass)
	for k, c := range counts {
		out[k] = math.Log((c + 1) / total)
	}
	return out
}

// presort returns, per feature, the row indices ordered by ascending feature value
func presort(X [][]float64, width int) [][]int {
	order := make([][]int, width)
	for f := 0; f < width; f++ {
		idx := make([]int, len(X))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
		order[f] = idx
	}
	return order
}

type builder struct {
	X      [][]float64
	g, h   []float64
	order  [][]int
	cfg    Config
	inNode []bool
	nodes  []Node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *builder) grow() Tree {
	samples := make([]int, len(b.X))
	for i := range samples {
		samples[i] = i
	}
	b.build(samples, 0)
	return Tree{Nodes: b.nodes}
}

func (b *builder) weight(G, H float64) float64 {
	return -G / (H + b.cfg.Lambda) * b.cfg.LearningRate
}

func (b *builder) score(G, H float64) float64 {
	return G * G / (H + b.cfg.Lambda)
}

func (b *builder) build(samples []int, depth int) int {
	var G, H float64
	for _, i := range samples {
		G += b.g[i]
		H += b.h[i]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.weight(G, H), Cover: H})
	if depth >= b.cfg.MaxDepth || len(samples) < 2 {
		return idx
	}

	best, ok := b.findSplit(samples, G, H)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, i := range samples {
		if b.X[i][best.feature] < best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	n := &b.nodes[idx]
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Left = l
	n.Right = r
	n.Gain = best.gain
	return idx
}

// findSplit scans every feature in presorted order and returns the split with the
// largest loss reduction. Ties keep the earliest feature and threshold.
func (b *builder) findSplit(samples []int, G, H float64) (split, bool) {
	for _, i := range samples {
		b.inNode[i] = true
	}
	defer func() {
		for _, i := range samples {
			b.inNode[i] = false
		}
	}()

	parent := b.score(G, H)
	best := split{feature: -1}
	for f, order := range b.order {
		var GL, HL float64
		prev := -1
		for _, i := range order {
			if !b.inNode[i] {
				continue
			}
			if prev >= 0 && b.X[i][f] > b.X[prev][f] {
				GR, HR := G-GL, H-HL
				if HL >= b.cfg.MinChildWeight && HR >= b.cfg.MinChildWeight {
					gain := 0.5*(b.score(GL, HL)+b.score(GR, HR)-parent) - b.cfg.MinSplitGain
					if gain > 0 && gain > best.gain {
						lo, hi := b.X[prev][f], b.X[i][f]
						threshold := lo + (hi-lo)/2
						if !(threshold > lo) {
							threshold = hi
						}
						best = split{feature: f, threshold: threshold, gain: gain}
					}
				}
			}
			GL += b.g[i]
			HL += b.h[i]
			prev = i
		}
	}
	return best, best.feature >= 0
}
