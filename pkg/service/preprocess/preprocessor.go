package preprocess

import (
	"encoding/json"
	"io"
	"math"
	"slices"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Preprocessor turns PatientRecords into FeatureVectors. Numeric fields are median
// imputed then standardized, categorical fields are one-hot encoded against the fit-time
// vocabulary (unseen values encode as all zeros), boolean flags pass through as 0/1.
// A fitted Preprocessor is immutable and safe for concurrent Transform calls.
type Preprocessor struct {
	schema  Schema
	fitted  bool
	medians []float64
	means   []float64
	scales  []float64
	vocab   [][]string
	labels  *LabelEncoder
	names   []string
}

// New creates an unfitted preprocessor for schema
func New(schema Schema) (*Preprocessor, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{schema: schema}, nil
}

// Schema returns the field layout the preprocessor was created with
func (p *Preprocessor) Schema() Schema {
	return p.schema
}

// Fitted reports whether Fit has completed
func (p *Preprocessor) Fitted() bool {
	return p.fitted
}

// Fit learns imputation values, scaling statistics and vocabularies from rows.
// labels is optional; when given it must have one label per row and fits Labels().
func (p *Preprocessor) Fit(rows []model.PatientRecord, labels []string) error {
	if len(rows) == 0 {
		return goerr.Wrap(model.ErrInvalidInput, "no rows to fit")
	}
	if labels != nil && len(labels) != len(rows) {
		return goerr.Wrap(model.ErrInvalidInput, "label count does not match row count",
			goerr.V("rows", len(rows)), goerr.V("labels", len(labels)))
	}

	normalized := make([]model.PatientRecord, len(rows))
	for i, row := range rows {
		normalized[i] = row.Normalize()
		if err := p.checkFields(normalized[i]); err != nil {
			return goerr.Wrap(err, "row missing field", goerr.V("row", i))
		}
	}

	medians := make([]float64, len(p.schema.Numerical))
	means := make([]float64, len(p.schema.Numerical))
	scales := make([]float64, len(p.schema.Numerical))
	for j, field := range p.schema.Numerical {
		observed := make([]float64, 0, len(normalized))
		values := make([]float64, len(normalized))
		missing := make([]bool, len(normalized))
		for i, row := range normalized {
			v, isMissing, err := toNumber(field, row[field])
			if err != nil {
				return goerr.Wrap(err, "failed to read numeric field", goerr.V("row", i))
			}
			values[i], missing[i] = v, isMissing
			if !isMissing {
				observed = append(observed, v)
			}
		}

		medians[j] = median(observed)
		for i := range values {
			if missing[i] {
				values[i] = medians[j]
			}
		}
		means[j], scales[j] = meanScale(values)
	}

	vocab := make([][]string, len(p.schema.Categorical))
	for j, field := range p.schema.Categorical {
		seen := make(map[string]bool)
		for i, row := range normalized {
			v, err := toCategory(field, row[field])
			if err != nil {
				return goerr.Wrap(err, "failed to read categorical field", goerr.V("row", i))
			}
			seen[v] = true
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		vocab[j] = values
	}

	for j, field := range p.schema.Boolean {
		for i, row := range normalized {
			if _, err := toFlag(field, row[field]); err != nil {
				return goerr.Wrap(err, "failed to read boolean field", goerr.V("row", i), goerr.V("index", j))
			}
		}
	}

	var encoder *LabelEncoder
	if labels != nil {
		enc, err := NewLabelEncoder(labels)
		if err != nil {
			return err
		}
		encoder = enc
	}

	p.medians, p.means, p.scales, p.vocab, p.labels = medians, means, scales, vocab, encoder
	p.names = p.buildNames()
	p.fitted = true
	return nil
}

// Transform encodes one record. It fails with model.ErrConfiguration before Fit or when
// the record lacks a schema field, and with model.ErrInvalidInput on a malformed value.
func (p *Preprocessor) Transform(row model.PatientRecord) (*model.FeatureVector, error) {
	if !p.fitted {
		return nil, goerr.Wrap(model.ErrConfiguration, "preprocessor is not fitted")
	}
	row = row.Normalize()
	if err := p.checkFields(row); err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(p.names))
	for j, field := range p.schema.Numerical {
		v, missing, err := toNumber(field, row[field])
		if err != nil {
			return nil, err
		}
		if missing {
			v = p.medians[j]
		}
		values = append(values, (v-p.means[j])/p.scales[j])
	}
	for j, field := range p.schema.Categorical {
		v, err := toCategory(field, row[field])
		if err != nil {
			return nil, err
		}
		for _, known := range p.vocab[j] {
			if known == v {
				values = append(values, 1)
			} else {
				values = append(values, 0)
			}
		}
	}
	for _, field := range p.schema.Boolean {
		v, err := toFlag(field, row[field])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return &model.FeatureVector{Names: slices.Clone(p.names), Values: values}, nil
}

// TransformAll encodes every row into a feature matrix
func (p *Preprocessor) TransformAll(rows []model.PatientRecord) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		fv, err := p.Transform(row)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to transform row", goerr.V("row", i))
		}
		out[i] = fv.Values
	}
	return out, nil
}

// FeatureNames returns the encoded feature names in vector order
func (p *Preprocessor) FeatureNames() []string {
	return slices.Clone(p.names)
}

// Len returns the encoded vector length, 0 before Fit
func (p *Preprocessor) Len() int {
	return len(p.names)
}

// Labels returns the label encoder learned by Fit, or nil when no labels were given
func (p *Preprocessor) Labels() *LabelEncoder {
	return p.labels
}

// EmptyRecord returns a record holding every schema field with a nil value
func (p *Preprocessor) EmptyRecord() model.PatientRecord {
	rec := make(model.PatientRecord, len(p.schema.Fields()))
	for _, f := range p.schema.Fields() {
		rec[f] = nil
	}
	return rec
}

func (p *Preprocessor) checkFields(row model.PatientRecord) error {
	for _, f := range p.schema.Fields() {
		if _, ok := row[f]; !ok {
			return goerr.Wrap(model.ErrConfiguration, "record is missing a required field", goerr.V(model.FieldKey, f))
		}
	}
	return nil
}

func (p *Preprocessor) buildNames() []string {
	names := make([]string, 0, len(p.schema.Numerical)+len(p.schema.Boolean))
	names = append(names, p.schema.Numerical...)
	for j, field := range p.schema.Categorical {
		for _, v := range p.vocab[j] {
			names = append(names, field+"_"+v)
		}
	}
	names = append(names, p.schema.Boolean...)
	return names
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// meanScale returns the mean and population standard deviation; a zero deviation scales by 1
func meanScale(values []float64) (float64, float64) {
	if len(values) < 2 {
		if len(values) == 1 {
			return values[0], 1
		}
		return 0, 1
	}
	mean, variance := stat.MeanVariance(values, nil)
	n := float64(len(values))
	std := math.Sqrt(variance * (n - 1) / n)
	if std == 0 || math.IsNaN(std) {
		return mean, 1
	}
	return mean, std
}

type preprocessorState struct {
	Schema  Schema        `json:"schema"`
	Medians []float64     `json:"medians"`
	Means   []float64     `json:"means"`
	Scales  []float64     `json:"scales"`
	Vocab   [][]string    `json:"vocab"`
	Labels  *LabelEncoder `json:"labels,omitempty"`
}

func (p *Preprocessor) MarshalJSON() ([]byte, error) {
	if !p.fitted {
		return nil, goerr.Wrap(model.ErrConfiguration, "cannot serialize an unfitted preprocessor")
	}
	return json.Marshal(preprocessorState{
		Schema:  p.schema,
		Medians: p.medians,
		Means:   p.means,
		Scales:  p.scales,
		Vocab:   p.vocab,
		Labels:  p.labels,
	})
}

func (p *Preprocessor) UnmarshalJSON(data []byte) error {
	var st preprocessorState
	if err := json.Unmarshal(data, &st); err != nil {
		return goerr.Wrap(err, "failed to decode preprocessor")
	}
	if err := st.Schema.Validate(); err != nil {
		return err
	}
	n := len(st.Schema.Numerical)
	if len(st.Medians) != n || len(st.Means) != n || len(st.Scales) != n || len(st.Vocab) != len(st.Schema.Categorical) {
		return goerr.Wrap(model.ErrConfiguration, "preprocessor artifact is inconsistent with its schema")
	}
	*p = Preprocessor{
		schema:  st.Schema,
		medians: st.Medians,
		means:   st.Means,
		scales:  st.Scales,
		vocab:   st.Vocab,
		labels:  st.Labels,
		fitted:  true,
	}
	p.names = p.buildNames()
	return nil
}

// Save writes the fitted state as JSON
func (p *Preprocessor) Save(w io.Writer) error {
	data, err := json.Marshal(p)
	if err != nil {
		return goerr.Wrap(err, "failed to encode preprocessor")
	}
	if _, err := w.Write(data); err != nil {
		return goerr.Wrap(err, "failed to write preprocessor")
	}
	return nil
}

// Load reads a preprocessor written by Save
func Load(r io.Reader) (*Preprocessor, error) {
	var p Preprocessor
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, goerr.Wrap(err, "failed to load preprocessor")
	}
	return &p, nil
}
