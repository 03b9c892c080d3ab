package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/classifier"
	"github.com/vaidya-health/vaidya/pkg/service/explain"
	"github.com/vaidya-health/vaidya/pkg/service/gbdt"
	"github.com/vaidya-health/vaidya/pkg/service/preprocess"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Artifact names written by Bundle.Save
const (
	ManifestArtifact     = "manifest.json"
	PreprocessorArtifact = "preprocessor.json"
	RiskArtifact         = "risk_model.json"
	DepartmentArtifact   = "department_model.json"
)

const manifestVersion = 1

// Bundle holds the fitted preprocessor, both classifiers and the risk explainer.
// It is immutable after Train or Load and shared by pointer.
type Bundle struct {
	ID           string
	TrainedAt    time.Time
	Rows         int
	Model        gbdt.Config
	Preprocessor *preprocess.Preprocessor
	Risk         *classifier.Classifier
	Department   *classifier.Classifier
	Explainer    *explain.Engine
}

type manifest struct {
	Version           int         `json:"version"`
	ID                string      `json:"id"`
	TrainedAt         time.Time   `json:"trained_at"`
	Rows              int         `json:"rows"`
	Features          []string    `json:"features"`
	RiskClasses       []string    `json:"risk_classes"`
	DepartmentClasses []string    `json:"department_classes"`
	Model             gbdt.Config `json:"model"`
}

// Train fits the preprocessor once on ds, then the risk and department classifiers in parallel
func Train(ctx context.Context, ds *Dataset, schema preprocess.Schema, cfg gbdt.Config) (*Bundle, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pre, err := preprocess.New(schema)
	if err != nil {
		return nil, err
	}
	if err := pre.Fit(ds.Rows, ds.Risk); err != nil {
		return nil, goerr.Wrap(err, "failed to fit preprocessor")
	}
	X, err := pre.TransformAll(ds.Rows)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to transform training rows")
	}
	names := pre.FeatureNames()

	var risk, dept *classifier.Classifier
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		c, err := classifier.Train(X, ds.Risk, names, cfg)
		if err != nil {
			return goerr.Wrap(err, "failed to train risk classifier")
		}
		risk = c
		return nil
	})
	eg.Go(func() error {
		c, err := classifier.Train(X, ds.Department, names, cfg)
		if err != nil {
			return goerr.Wrap(err, "failed to train department classifier")
		}
		dept = c
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	b := &Bundle{
		ID:           uuid.NewString(),
		TrainedAt:    time.Now().UTC(),
		Rows:         ds.Len(),
		Model:        cfg,
		Preprocessor: pre,
		Risk:         risk,
		Department:   dept,
		Explainer:    explain.New(risk, names),
	}
	logging.From(ctx).Info("trained triage models",
		"bundle_id", b.ID,
		"rows", ds.Len(),
		"features", len(names),
		"risk_classes", risk.Classes(),
		"departments", dept.Classes(),
	)
	return b, nil
}

// Prediction is the result of Bundle.Predict. Features is the encoded record so callers
// can explain or audit the prediction.
type Prediction struct {
	Result   model.PredictionResult
	Features *model.FeatureVector
}

// Predict encodes record and runs both classifiers and the explainer. topK bounds the
// number of attributions; explanation never fails the prediction.
func (b *Bundle) Predict(ctx context.Context, record model.PatientRecord, topK int) (*Prediction, error) {
	fv, err := b.Preprocessor.Transform(record)
	if err != nil {
		return nil, err
	}

	risk, err := b.Risk.Predict(fv)
	if err != nil {
		return nil, goerr.Wrap(err, "risk prediction failed")
	}
	level, err := types.ParseRiskLevel(risk.Label)
	if err != nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "risk model emits unknown label", goerr.V("label", risk.Label))
	}

	probs := make(map[types.RiskLevel]float64, len(risk.Probabilities))
	for i, class := range b.Risk.Classes() {
		probs[types.RiskLevel(class)] = risk.Probabilities[i]
	}

	result := model.PredictionResult{
		RiskLevel:         level,
		RiskScore:         model.RiskScore(level, risk.Confidence),
		Confidence:        risk.Confidence,
		RiskProbabilities: probs,
		TopFeatures:       b.Explainer.Explain(ctx, fv, topK),
	}

	if b.Department != nil {
		dept, err := b.Department.Predict(fv)
		if err != nil {
			return nil, goerr.Wrap(err, "department prediction failed")
		}
		result.Department = dept.Label
		result.DepartmentConfidence = dept.Confidence
	}

	return &Prediction{Result: result, Features: fv}, nil
}

// Save writes every artifact of the bundle to store, the manifest last
func (b *Bundle) Save(ctx context.Context, store interfaces.ArtifactStore) error {
	artifacts := []struct {
		name  string
		value json.Marshaler
	}{
		{PreprocessorArtifact, b.Preprocessor},
		{RiskArtifact, b.Risk},
		{DepartmentArtifact, b.Department},
	}
	for _, a := range artifacts {
		data, err := a.value.MarshalJSON()
		if err != nil {
			return goerr.Wrap(err, "failed to encode artifact", goerr.V("name", a.name))
		}
		if err := store.Save(ctx, a.name, data); err != nil {
			return goerr.Wrap(err, "failed to save artifact", goerr.V("name", a.name))
		}
	}

	m := manifest{
		Version:           manifestVersion,
		ID:                b.ID,
		TrainedAt:         b.TrainedAt,
		Rows:              b.Rows,
		Model:             b.Model,
		Features:          b.Preprocessor.FeatureNames(),
		RiskClasses:       b.Risk.Classes(),
		DepartmentClasses: b.Department.Classes(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode manifest")
	}
	if err := store.Save(ctx, ManifestArtifact, data); err != nil {
		return goerr.Wrap(err, "failed to save manifest")
	}
	return nil
}

// Load reads a bundle written by Save. A missing artifact is a configuration error.
func Load(ctx context.Context, store interfaces.ArtifactStore) (*Bundle, error) {
	raw, err := store.Load(ctx, ManifestArtifact)
	if err != nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "model manifest is not available", goerr.V("cause", err.Error()))
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "model manifest is broken", goerr.V("cause", err.Error()))
	}
	if m.Version != manifestVersion {
		return nil, goerr.Wrap(model.ErrConfiguration, "unsupported model manifest version",
			goerr.V(model.ExpectedKey, manifestVersion), goerr.V(model.ActualKey, m.Version))
	}

	read := func(name string) (*bytes.Reader, error) {
		data, err := store.Load(ctx, name)
		if err != nil {
			return nil, goerr.Wrap(model.ErrConfiguration, "model artifact is not available",
				goerr.V("name", name), goerr.V("cause", err.Error()))
		}
		return bytes.NewReader(data), nil
	}

	r, err := read(PreprocessorArtifact)
	if err != nil {
		return nil, err
	}
	pre, err := preprocess.Load(r)
	if err != nil {
		return nil, err
	}

	if r, err = read(RiskArtifact); err != nil {
		return nil, err
	}
	risk, err := classifier.Load(r)
	if err != nil {
		return nil, err
	}

	if r, err = read(DepartmentArtifact); err != nil {
		return nil, err
	}
	dept, err := classifier.Load(r)
	if err != nil {
		return nil, err
	}

	names := pre.FeatureNames()
	if !slices.Equal(names, m.Features) || !slices.Equal(names, risk.FeatureNames()) || !slices.Equal(names, dept.FeatureNames()) {
		return nil, goerr.Wrap(model.ErrConfiguration, "model artifacts disagree on features", goerr.V("bundle_id", m.ID))
	}

	logging.From(ctx).Info("loaded triage models", "bundle_id", m.ID, "trained_at", m.TrainedAt, "features", len(names))
	return &Bundle{
		ID:           m.ID,
		TrainedAt:    m.TrainedAt,
		Rows:         m.Rows,
		Model:        m.Model,
		Preprocessor: pre,
		Risk:         risk,
		Department:   dept,
		Explainer:    explain.New(risk, names),
	}, nil
}

// Loader loads a bundle from its store at most once successfully per process. A failed
// load is not cached: the next Get tries again, so artifacts written after startup or a
// transient storage error do not require a restart.
type Loader struct {
	store  interfaces.ArtifactStore
	mu     sync.Mutex
	bundle *Bundle
}

// NewLoader creates a Loader reading from store
func NewLoader(store interfaces.ArtifactStore) *Loader {
	return &Loader{store: store}
}

// Get returns the bundle, loading it until a load succeeds. Concurrent callers wait for
// the load in progress and observe the same bundle.
func (l *Loader) Get(ctx context.Context) (*Bundle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bundle != nil {
		return l.bundle, nil
	}
	b, err := Load(ctx, l.store)
	if err != nil {
		return nil, err
	}
	l.bundle = b
	return b, nil
}
