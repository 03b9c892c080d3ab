package classifier

import (
	"encoding/json"
	"io"
	"slices"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/service/gbdt"
	"github.com/vaidya-health/vaidya/pkg/service/preprocess"
	"gonum.org/v1/gonum/floats"
)

// Classifier is a multi-class gradient boosted classifier over labelled classes.
// It is immutable after Train or Load and safe for concurrent use.
type Classifier struct {
	ensemble *gbdt.Ensemble
	labels   *preprocess.LabelEncoder
	features []string
}

// Prediction is the output of one classification
type Prediction struct {
	Label         string
	Index         int
	Confidence    float64
	Probabilities []float64
}

// Probability returns the probability of label, 0 for unknown labels
func (p *Prediction) Probability(classes []string, label string) float64 {
	if i := slices.Index(classes, label); i >= 0 && i < len(p.Probabilities) {
		return p.Probabilities[i]
	}
	return 0
}

// Train fits a classifier on the feature matrix X with one label per row
func Train(X [][]float64, labels []string, featureNames []string, cfg gbdt.Config) (*Classifier, error) {
	encoder, err := preprocess.NewLabelEncoder(labels)
	if err != nil {
		return nil, err
	}
	if encoder.Len() < 2 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "training labels contain a single class", goerr.V("classes", encoder.Classes()))
	}
	if len(X) > 0 && len(X[0]) != len(featureNames) {
		return nil, goerr.Wrap(model.ErrInvalidInput, "feature names do not match matrix width",
			goerr.V(model.ExpectedKey, len(X[0])), goerr.V(model.ActualKey, len(featureNames)))
	}
	y, err := encoder.EncodeAll(labels)
	if err != nil {
		return nil, err
	}

	ensemble, err := gbdt.Train(X, y, encoder.Len(), cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to train ensemble")
	}

	return &Classifier{
		ensemble: ensemble,
		labels:   encoder,
		features: slices.Clone(featureNames),
	}, nil
}

// Predict classifies fv. The label is the arg-max class; ties go to the lowest class index.
func (c *Classifier) Predict(fv *model.FeatureVector) (*Prediction, error) {
	if err := fv.Validate(len(c.features)); err != nil {
		return nil, err
	}
	if fv.Names != nil && !slices.Equal(fv.Names, c.features) {
		return nil, goerr.Wrap(model.ErrConfiguration, "feature names do not match the model")
	}

	probs, err := c.ensemble.PredictProba(fv.Values)
	if err != nil {
		return nil, err
	}
	idx := floats.MaxIdx(probs)
	label, err := c.labels.Decode(idx)
	if err != nil {
		return nil, err
	}

	return &Prediction{
		Label:         label,
		Index:         idx,
		Confidence:    probs[idx],
		Probabilities: probs,
	}, nil
}

// PredictProba returns class probabilities for a raw feature slice
func (c *Classifier) PredictProba(x []float64) ([]float64, error) {
	return c.ensemble.PredictProba(x)
}

// Contributions returns per-class path attributions for a raw feature slice
func (c *Classifier) Contributions(x []float64) ([][]float64, []float64, error) {
	return c.ensemble.Contributions(x)
}

// Classes returns the class labels in probability order
func (c *Classifier) Classes() []string {
	return c.labels.Classes()
}

// FeatureNames returns the feature names the classifier was trained on
func (c *Classifier) FeatureNames() []string {
	return slices.Clone(c.features)
}

// FeatureImportance returns features ranked by total split gain
func (c *Classifier) FeatureImportance() []model.Attribution {
	gains := c.ensemble.FeatureImportance()
	out := make([]model.Attribution, len(gains))
	for i, g := range gains {
		out[i] = model.Attribution{Feature: c.features[i], Importance: g}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	return out
}

type classifierState struct {
	Features []string                 `json:"features"`
	Labels   *preprocess.LabelEncoder `json:"labels"`
	Ensemble *gbdt.Ensemble           `json:"ensemble"`
}

func (c *Classifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(classifierState{
		Features: c.features,
		Labels:   c.labels,
		Ensemble: c.ensemble,
	})
}

func (c *Classifier) UnmarshalJSON(data []byte) error {
	var st classifierState
	if err := json.Unmarshal(data, &st); err != nil {
		return goerr.Wrap(err, "failed to decode classifier")
	}
	if st.Ensemble == nil || st.Labels == nil {
		return goerr.Wrap(model.ErrConfiguration, "classifier artifact is incomplete")
	}
	if err := st.Ensemble.Validate(); err != nil {
		return err
	}
	if st.Ensemble.NumClass != st.Labels.Len() || st.Ensemble.NumFeature != len(st.Features) {
		return goerr.Wrap(model.ErrConfiguration, "classifier artifact layout mismatch",
			goerr.V("classes", st.Labels.Len()), goerr.V("features", len(st.Features)))
	}
	*c = Classifier{ensemble: st.Ensemble, labels: st.Labels, features: st.Features}
	return nil
}

// Save writes the classifier as JSON
func (c *Classifier) Save(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(c); err != nil {
		return goerr.Wrap(err, "failed to write classifier")
	}
	return nil
}

// Load reads a classifier written by Save
func Load(r io.Reader) (*Classifier, error) {
	var c Classifier
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, goerr.Wrap(err, "failed to load classifier")
	}
	return &c, nil
}
