package preprocess_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/service/preprocess"
)

func smallSchema() preprocess.Schema {
	return preprocess.Schema{
		Numerical:   []string{"age", "heart_rate"},
		Categorical: []string{"gender"},
		Boolean:     []string{"symptom_fever"},
	}
}

func trainingRows() []model.PatientRecord {
	return []model.PatientRecord{
		{"age": 30.0, "heart_rate": 80.0, "gender": "F", "symptom_fever": true},
		{"age": 50.0, "heart_rate": nil, "gender": "M", "symptom_fever": false},
		{"age": nil, "heart_rate": 100.0, "gender": nil, "symptom_fever": 1},
		{"age": 70.0, "heart_rate": 120.0, "gender": "M", "symptom_fever": "no"},
	}
}

func fittedPreprocessor(t *testing.T) *preprocess.Preprocessor {
	t.Helper()
	p, err := preprocess.New(smallSchema())
	gt.NoError(t, err).Required()
	gt.NoError(t, p.Fit(trainingRows(), []string{"Low", "High", "Medium", "Low"})).Required()
	return p
}

func TestFeatureNames(t *testing.T) {
	p := fittedPreprocessor(t)
	gt.Value(t, p.FeatureNames()).Equal([]string{
		"age", "heart_rate",
		"gender_F", "gender_M", "gender_missing",
		"symptom_fever",
	})
	gt.Value(t, p.Len()).Equal(6)
	gt.Value(t, p.Labels().Classes()).Equal([]string{"High", "Low", "Medium"})
}

func TestTransformImputesAndScales(t *testing.T) {
	p := fittedPreprocessor(t)

	// age median of {30,50,70} = 50; imputed column {30,50,50,70}: mean 50, pop std sqrt(200)
	fv, err := p.Transform(model.PatientRecord{"age": nil, "heart_rate": 100.0, "gender": "F", "symptom_fever": false})
	gt.NoError(t, err).Required()
	gt.Array(t, fv.Values).Length(6)
	gt.Value(t, fv.Values[0]).Equal(0.0)

	fv, err = p.Transform(model.PatientRecord{"age": 70.0, "heart_rate": 100.0, "gender": "F", "symptom_fever": true})
	gt.NoError(t, err).Required()
	gt.Bool(t, math.Abs(fv.Values[0]-20/math.Sqrt(200)) < 1e-12).True()
	gt.Value(t, fv.Values[2:]).Equal([]float64{1, 0, 0, 1})
}

func TestTransformUnknownCategoryIsAllZero(t *testing.T) {
	p := fittedPreprocessor(t)
	fv, err := p.Transform(model.PatientRecord{"age": 40, "heart_rate": 90, "gender": "X", "symptom_fever": 0})
	gt.NoError(t, err).Required()
	gt.Value(t, fv.Values[2:5]).Equal([]float64{0, 0, 0})
}

func TestTransformNeverProducesNaN(t *testing.T) {
	p := fittedPreprocessor(t)
	fv, err := p.Transform(p.EmptyRecord())
	gt.NoError(t, err).Required()
	gt.Array(t, fv.Values).Length(p.Len())
	for _, v := range fv.Values {
		gt.Bool(t, math.IsNaN(v)).False()
	}
	gt.NoError(t, fv.Validate(p.Len()))
}

func TestTransformTreatsInfinityAsMissing(t *testing.T) {
	p := fittedPreprocessor(t)

	imputed, err := p.Transform(model.PatientRecord{"age": nil, "heart_rate": nil, "gender": "F", "symptom_fever": true})
	gt.NoError(t, err).Required()

	for _, rec := range []model.PatientRecord{
		{"age": math.Inf(1), "heart_rate": math.Inf(-1), "gender": "F", "symptom_fever": true},
		{"age": "inf", "heart_rate": "-Infinity", "gender": "F", "symptom_fever": true},
	} {
		fv, err := p.Transform(rec)
		gt.NoError(t, err).Required()
		gt.Value(t, fv.Values).Equal(imputed.Values)
		gt.NoError(t, fv.Validate(p.Len()))
	}
}

func TestFitIgnoresInfinity(t *testing.T) {
	p, err := preprocess.New(smallSchema())
	gt.NoError(t, err).Required()
	rows := append(trainingRows(), model.PatientRecord{"age": math.Inf(1), "heart_rate": 90.0, "gender": "F", "symptom_fever": false})
	gt.NoError(t, p.Fit(rows, []string{"Low", "High", "Medium", "Low", "Low"})).Required()

	fv, err := p.Transform(model.PatientRecord{"age": 70.0, "heart_rate": 90.0, "gender": "F", "symptom_fever": false})
	gt.NoError(t, err).Required()
	for _, v := range fv.Values {
		gt.Bool(t, math.IsNaN(v) || math.IsInf(v, 0)).False()
	}
}

func TestTransformErrors(t *testing.T) {
	t.Run("before fit", func(t *testing.T) {
		p, err := preprocess.New(smallSchema())
		gt.NoError(t, err).Required()
		_, err = p.Transform(model.PatientRecord{})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("missing key", func(t *testing.T) {
		p := fittedPreprocessor(t)
		_, err := p.Transform(model.PatientRecord{"age": 40.0, "gender": "F", "symptom_fever": true})
		gt.Error(t, err).Is(model.ErrConfiguration)
	})

	t.Run("malformed value", func(t *testing.T) {
		p := fittedPreprocessor(t)
		_, err := p.Transform(model.PatientRecord{"age": "forty", "heart_rate": 90.0, "gender": "F", "symptom_fever": true})
		gt.Bool(t, errors.Is(err, model.ErrInvalidInput)).True()
	})
}

func TestAliasFieldsAreAccepted(t *testing.T) {
	p, err := preprocess.New(preprocess.Schema{Numerical: []string{"systolic_bp"}})
	gt.NoError(t, err).Required()
	gt.NoError(t, p.Fit([]model.PatientRecord{{"systolic_bp": 120.0}, {"systolic_bp": 140.0}}, nil)).Required()

	fv, err := p.Transform(model.PatientRecord{"blood_pressure_systolic": 140.0})
	gt.NoError(t, err).Required()
	gt.Value(t, fv.Values[0]).Equal(1.0)
}

func TestConstantColumnScalesByOne(t *testing.T) {
	p, err := preprocess.New(preprocess.Schema{Numerical: []string{"age"}})
	gt.NoError(t, err).Required()
	gt.NoError(t, p.Fit([]model.PatientRecord{{"age": 5.0}, {"age": 5.0}}, nil)).Required()

	fv, err := p.Transform(model.PatientRecord{"age": 7.0})
	gt.NoError(t, err).Required()
	gt.Value(t, fv.Values[0]).Equal(2.0)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := fittedPreprocessor(t)

	var buf bytes.Buffer
	gt.NoError(t, p.Save(&buf)).Required()
	loaded, err := preprocess.Load(&buf)
	gt.NoError(t, err).Required()

	gt.Value(t, loaded.FeatureNames()).Equal(p.FeatureNames())
	for _, row := range trainingRows() {
		a, err := p.Transform(row)
		gt.NoError(t, err).Required()
		b, err := loaded.Transform(row)
		gt.NoError(t, err).Required()
		gt.Value(t, b.Values).Equal(a.Values)
	}
	gt.Value(t, loaded.Labels().Classes()).Equal(p.Labels().Classes())
}

func TestSchemaValidate(t *testing.T) {
	gt.NoError(t, preprocess.DefaultSchema().Validate())
	gt.Error(t, preprocess.Schema{}.Validate()).Is(model.ErrConfiguration)
	gt.Error(t, preprocess.Schema{Numerical: []string{"age"}, Boolean: []string{"age"}}.Validate()).Is(model.ErrConfiguration)
}

func TestLabelEncoder(t *testing.T) {
	enc, err := preprocess.NewLabelEncoder([]string{"Pulmonology", "Cardiology", "Pulmonology"})
	gt.NoError(t, err).Required()
	gt.Value(t, enc.Len()).Equal(2)

	idx, err := enc.Encode("Pulmonology")
	gt.NoError(t, err).Required()
	gt.Value(t, idx).Equal(1)

	label, err := enc.Decode(0)
	gt.NoError(t, err).Required()
	gt.Value(t, label).Equal("Cardiology")

	_, err = enc.Encode("Dermatology")
	gt.Error(t, err).Is(model.ErrInvalidInput)
	_, err = enc.Decode(5)
	gt.Error(t, err).Is(model.ErrConfiguration)
}
