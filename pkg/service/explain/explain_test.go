package explain_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/service/explain"
)

type treeModel struct {
	contrib [][]float64
	err     error
}

func (m *treeModel) Contributions(x []float64) ([][]float64, []float64, error) {
	return m.contrib, make([]float64, len(m.contrib)), m.err
}

// linearModel gives class 1 probability proportional to the weighted sum of x
type linearModel struct {
	weights []float64
}

func (m *linearModel) PredictProba(x []float64) ([]float64, error) {
	s := 0.0
	for i, w := range m.weights {
		s += w * x[i]
	}
	p := 0.5 + s
	return []float64{1 - p, p}, nil
}

var names = []string{"age", "spo2", "heart_rate", "symptom_fever"}

func fv(values ...float64) *model.FeatureVector {
	return &model.FeatureVector{Names: names, Values: values}
}

func TestVariantSelection(t *testing.T) {
	gt.Value(t, explain.New(&treeModel{}, names).Kind()).Equal(explain.KindTree)
	gt.Value(t, explain.New(&linearModel{}, names).Kind()).Equal(explain.KindGeneric)
	gt.Value(t, explain.New(nil, names).Kind()).Equal(explain.KindUnavailable)
	gt.Value(t, explain.New("not a model", names).Kind()).Equal(explain.KindUnavailable)
	gt.Value(t, explain.New(&treeModel{}, nil).Kind()).Equal(explain.KindUnavailable)
}

func TestTreeExplainSumsAbsoluteValuesAcrossClasses(t *testing.T) {
	m := &treeModel{contrib: [][]float64{
		{0.1, -0.5, 0.2, 0.0},
		{-0.1, 0.3, 0.2, 0.05},
	}}
	got := explain.New(m, names).Explain(context.Background(), fv(1, 2, 3, 4), 3)

	gt.Array(t, got).Length(3)
	gt.Value(t, got[0].Feature).Equal("spo2")
	gt.Bool(t, math.Abs(got[0].Importance-0.8) < 1e-12).True()
	gt.Value(t, got[1].Feature).Equal("heart_rate")
	gt.Value(t, got[2].Feature).Equal("age")
}

func TestTiesKeepLowerIndex(t *testing.T) {
	m := &treeModel{contrib: [][]float64{{0.2, 0.2, 0.2, 0.2}}}
	got := explain.New(m, names).Explain(context.Background(), fv(0, 0, 0, 0), 2)
	gt.Value(t, got[0].Feature).Equal("age")
	gt.Value(t, got[1].Feature).Equal("spo2")
}

func TestTopKLargerThanFeatureCount(t *testing.T) {
	m := &treeModel{contrib: [][]float64{{0.1, 0.2, 0.3, 0.4}}}
	got := explain.New(m, names).Explain(context.Background(), fv(0, 0, 0, 0), 10)
	gt.Array(t, got).Length(4)
}

func TestZeroTopKReturnsNothing(t *testing.T) {
	m := &treeModel{contrib: [][]float64{{0.1, 0.2, 0.3, 0.4}}}
	e := explain.New(m, names)
	gt.Array(t, e.Explain(context.Background(), fv(0, 0, 0, 0), 0)).Length(0)
	gt.Array(t, e.Explain(context.Background(), fv(0, 0, 0, 0), -1)).Length(0)
}

func TestGenericExplainMeasuresBaselineShift(t *testing.T) {
	m := &linearModel{weights: []float64{0.01, 0.1, 0, 0.05}}
	got := explain.New(m, names).Explain(context.Background(), fv(1, 1, 1, 1), 2)

	gt.Array(t, got).Length(2)
	gt.Value(t, got[0].Feature).Equal("spo2")
	gt.Value(t, got[1].Feature).Equal("symptom_fever")
}

func TestExplainNeverFails(t *testing.T) {
	unavailable := explain.New(nil, names)
	gt.Array(t, unavailable.Explain(context.Background(), fv(1, 2, 3, 4), 5)).Length(0)

	failing := explain.New(&treeModel{err: errors.New("broken")}, names)
	gt.Array(t, failing.Explain(context.Background(), fv(1, 2, 3, 4), 5)).Length(0)
}
