package triage

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/service/classifier"
)

// Split shuffles the rows with seed and holds out testRatio of them. The same seed
// yields the same split.
func (d *Dataset) Split(testRatio float64, seed uint64) (train, test *Dataset, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, goerr.Wrap(model.ErrInvalidInput, "test ratio must be in (0, 1)", goerr.V("test_ratio", testRatio))
	}
	n := d.Len()
	nTest := int(float64(n) * testRatio)
	if nTest == 0 || nTest == n {
		return nil, nil, goerr.Wrap(model.ErrInvalidInput, "dataset is too small to split",
			goerr.V("rows", n), goerr.V("test_ratio", testRatio))
	}

	perm := rand.New(rand.NewPCG(seed, seed^0x5eed)).Perm(n)
	return d.subset(perm[nTest:]), d.subset(perm[:nTest]), nil
}

func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		Rows:       make([]model.PatientRecord, len(idx)),
		Risk:       make([]string, len(idx)),
		Department: make([]string, len(idx)),
	}
	for i, j := range idx {
		out.Rows[i] = d.Rows[j]
		out.Risk[i] = d.Risk[j]
		out.Department[i] = d.Department[j]
	}
	return out
}

// ClassMetrics are the per-class scores of a classification report
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes predictions against true labels
type Report struct {
	Accuracy float64                 `json:"accuracy"`
	Classes  map[string]ClassMetrics `json:"classes"`
}

// ClassNames returns the classes of the report in sorted order
func (r *Report) ClassNames() []string {
	names := make([]string, 0, len(r.Classes))
	for name := range r.Classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Evaluation holds the reports of both classifiers
type Evaluation struct {
	Risk       Report `json:"risk"`
	Department Report `json:"department"`
}

// Evaluate scores the bundle's classifiers on a labelled dataset
func Evaluate(ctx context.Context, b *Bundle, ds *Dataset) (*Evaluation, error) {
	if ds.Len() == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "evaluation dataset is empty")
	}

	riskPred := make([]string, ds.Len())
	deptPred := make([]string, ds.Len())
	for i, row := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "evaluation cancelled")
		}
		fv, err := b.Preprocessor.Transform(row)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode row", goerr.V("row", i))
		}
		riskPred[i], err = predictLabel(b.Risk, fv)
		if err != nil {
			return nil, err
		}
		deptPred[i], err = predictLabel(b.Department, fv)
		if err != nil {
			return nil, err
		}
	}

	return &Evaluation{
		Risk:       score(ds.Risk, riskPred),
		Department: score(ds.Department, deptPred),
	}, nil
}

func predictLabel(c *classifier.Classifier, fv *model.FeatureVector) (string, error) {
	p, err := c.Predict(fv)
	if err != nil {
		return "", goerr.Wrap(err, "prediction failed")
	}
	return p.Label, nil
}

func score(truth, pred []string) Report {
	type counts struct{ tp, fp, fn int }
	byClass := map[string]*counts{}
	get := func(label string) *counts {
		c, ok := byClass[label]
		if !ok {
			c = &counts{}
			byClass[label] = c
		}
		return c
	}

	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
			get(truth[i]).tp++
			continue
		}
		get(truth[i]).fn++
		get(pred[i]).fp++
	}

	report := Report{
		Accuracy: float64(correct) / float64(len(truth)),
		Classes:  make(map[string]ClassMetrics, len(byClass)),
	}
	for label, c := range byClass {
		m := ClassMetrics{Support: c.tp + c.fn}
		if c.tp+c.fp > 0 {
			m.Precision = float64(c.tp) / float64(c.tp+c.fp)
		}
		if c.tp+c.fn > 0 {
			m.Recall = float64(c.tp) / float64(c.tp+c.fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes[label] = m
	}
	return report
}
