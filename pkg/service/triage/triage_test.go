package triage_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/repository/artifact"
	"github.com/vaidya-health/vaidya/pkg/service/gbdt"
	"github.com/vaidya-health/vaidya/pkg/service/preprocess"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
)

func testConfig() gbdt.Config {
	cfg := gbdt.DefaultConfig()
	cfg.Rounds = 30
	cfg.LearningRate = 0.3
	return cfg
}

var (
	bundleOnce sync.Once
	bundle     *triage.Bundle
	bundleErr  error
)

func trainedBundle(t *testing.T) *triage.Bundle {
	t.Helper()
	bundleOnce.Do(func() {
		ds := triage.GenerateSynthetic(800, 42)
		bundle, bundleErr = triage.Train(context.Background(), ds, preprocess.DefaultSchema(), testConfig())
	})
	gt.NoError(t, bundleErr).Required()
	return bundle
}

func criticalPatient() model.PatientRecord {
	return model.PatientRecord{
		"age":                          67.0,
		"gender":                       "Male",
		"blood_pressure_systolic":      160.0,
		"blood_pressure_diastolic":     100.0,
		"heart_rate":                   120.0,
		"temperature":                  38.9,
		"spo2":                         85.0,
		"respiratory_rate":             nil,
		"glucose":                      nil,
		"pain_level":                   8.0,
		"symptom_chest_pain":           true,
		"symptom_fever":                false,
		"symptom_cough":                false,
		"symptom_breathing_difficulty": true,
		"symptom_headache":             false,
		"symptom_dizziness":            true,
		"symptom_vomiting":             false,
		"diabetes":                     false,
		"hypertension":                 true,
		"heart_disease":                true,
		"asthma":                       false,
		"pregnant":                     false,
		"smoker":                       true,
		"visit_type":                   "Emergency",
		"insurance_provider":           "None",
		"recent_diagnosis":             "None",
		"chronic_disease_history":      "Hypertension",
		"family_medical_history":       "Heart Disease",
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	a := triage.GenerateSynthetic(50, 1)
	b := triage.GenerateSynthetic(50, 1)
	gt.Value(t, a.Risk).Equal(b.Risk)
	gt.Value(t, a.Department).Equal(b.Department)
	gt.Value(t, a.Rows[10]["age"]).Equal(b.Rows[10]["age"])

	c := triage.GenerateSynthetic(50, 2)
	gt.Value(t, a.Risk).NotEqual(c.Risk)
}

func TestSyntheticFollowsLabellingRules(t *testing.T) {
	ds := triage.GenerateSynthetic(500, 9)
	gt.A(t, ds.Rows).Length(500)

	for i, row := range ds.Rows {
		gt.Value(t, ds.Risk[i]).Equal(triage.LabelRisk(row).String())
		gt.Value(t, ds.Department[i]).Equal(triage.LabelDepartment(row, types.RiskLevel(ds.Risk[i])))

		age := row["age"].(float64)
		gt.B(t, age >= 18 && age < 90).True()
		spo2 := row["spo2"].(float64)
		gt.B(t, spo2 >= 85 && spo2 < 100).True()
		gt.Value(t, row["glucose"]).Equal(nil)
	}
	gt.NoError(t, ds.Validate())
}

func TestLabelRules(t *testing.T) {
	gt.Value(t, triage.LabelRisk(model.PatientRecord{"spo2": 88.0})).Equal(types.RiskLevelHigh)
	gt.Value(t, triage.LabelRisk(model.PatientRecord{"heart_rate": 111.0})).Equal(types.RiskLevelHigh)
	gt.Value(t, triage.LabelRisk(model.PatientRecord{"temperature": 39.0})).Equal(types.RiskLevelMedium)
	gt.Value(t, triage.LabelRisk(model.PatientRecord{"systolic_bp": 151.0})).Equal(types.RiskLevelMedium)
	gt.Value(t, triage.LabelRisk(model.PatientRecord{"spo2": 97.0, "heart_rate": 70.0})).Equal(types.RiskLevelLow)

	gt.Value(t, triage.LabelDepartment(model.PatientRecord{"heart_disease": 1}, types.RiskLevelLow)).Equal(triage.DepartmentCardiology)
	gt.Value(t, triage.LabelDepartment(model.PatientRecord{"asthma": true}, types.RiskLevelLow)).Equal(triage.DepartmentPulmonology)
	gt.Value(t, triage.LabelDepartment(model.PatientRecord{"symptom_fever": 1, "symptom_cough": 1}, types.RiskLevelMedium)).
		Equal(triage.DepartmentGeneralMedicine)
	gt.Value(t, triage.LabelDepartment(model.PatientRecord{}, types.RiskLevelHigh)).Equal(triage.DepartmentEmergency)
	gt.Value(t, triage.LabelDepartment(model.PatientRecord{}, types.RiskLevelLow)).Equal(triage.DepartmentGeneralMedicine)
}

func TestHighRiskScenario(t *testing.T) {
	b := trainedBundle(t)

	pred, err := b.Predict(context.Background(), criticalPatient(), 5)
	gt.NoError(t, err).Required()

	res := pred.Result
	gt.B(t, res.RiskLevel == types.RiskLevelHigh || res.RiskLevel == types.RiskLevelCritical).True()
	gt.B(t, res.RiskScore >= model.RiskThresholdMedium).True()
	gt.Value(t, model.ClassifyRisk(res.RiskScore)).Equal(res.RiskLevel)
	gt.Value(t, res.Department).Equal(triage.DepartmentCardiology)
	gt.A(t, res.TopFeatures).Length(5)

	sum := 0.0
	for _, p := range res.RiskProbabilities {
		sum += p
	}
	gt.B(t, sum > 0.999999 && sum < 1.000001).True()
	gt.Value(t, res.Confidence).Equal(res.RiskProbabilities[res.RiskLevel])
}

func TestPredictRejectsIncompleteRecord(t *testing.T) {
	b := trainedBundle(t)
	_, err := b.Predict(context.Background(), model.PatientRecord{"age": 40.0}, 5)
	gt.Error(t, err).Is(model.ErrConfiguration)
}

func TestSaveLoadYieldsIdenticalProbabilities(t *testing.T) {
	ctx := context.Background()
	b := trainedBundle(t)

	store, err := artifact.NewFS(t.TempDir())
	gt.NoError(t, err).Required()
	gt.NoError(t, b.Save(ctx, store)).Required()

	loaded, err := triage.Load(ctx, store)
	gt.NoError(t, err).Required()
	gt.Value(t, loaded.ID).Equal(b.ID)
	gt.Value(t, loaded.Rows).Equal(800)
	gt.Value(t, loaded.Explainer.Kind()).Equal(b.Explainer.Kind())

	want, err := b.Predict(ctx, criticalPatient(), 5)
	gt.NoError(t, err).Required()
	got, err := loaded.Predict(ctx, criticalPatient(), 5)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Result).Equal(want.Result)
	gt.Value(t, got.Features.Values).Equal(want.Features.Values)
}

func TestLoadWithoutArtifacts(t *testing.T) {
	store, err := artifact.NewFS(t.TempDir())
	gt.NoError(t, err).Required()

	_, err = triage.Load(context.Background(), store)
	gt.Error(t, err).Is(model.ErrConfiguration)
}

func TestLoaderLoadsOnce(t *testing.T) {
	ctx := context.Background()
	store, err := artifact.NewFS(t.TempDir())
	gt.NoError(t, err).Required()
	gt.NoError(t, trainedBundle(t).Save(ctx, store)).Required()

	loader := triage.NewLoader(store)
	var wg sync.WaitGroup
	results := make([]*triage.Bundle, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := loader.Get(ctx)
			gt.NoError(t, err)
			results[i] = b
		}()
	}
	wg.Wait()
	for _, b := range results {
		gt.B(t, b == results[0]).True()
	}
}

func TestLoaderRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store, err := artifact.NewFS(t.TempDir())
	gt.NoError(t, err).Required()
	loader := triage.NewLoader(store)

	_, err = loader.Get(ctx)
	gt.Value(t, err).NotNil()

	gt.NoError(t, trainedBundle(t).Save(ctx, store)).Required()
	first, err := loader.Get(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, first).NotNil()

	second, err := loader.Get(ctx)
	gt.NoError(t, err).Required()
	gt.B(t, first == second).True()
}

func TestTrainRejectsBadLabels(t *testing.T) {
	ds := triage.GenerateSynthetic(20, 3)
	ds.Risk[4] = "Severe"
	_, err := triage.Train(context.Background(), ds, preprocess.DefaultSchema(), testConfig())
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestCSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := triage.GenerateSynthetic(30, 5)

	var buf bytes.Buffer
	gt.NoError(t, triage.WriteCSV(&buf, ds, preprocess.DefaultSchema().Fields())).Required()

	loaded, err := triage.LoadCSV(ctx, &buf)
	gt.NoError(t, err).Required()
	gt.Value(t, loaded.Len()).Equal(30)
	gt.Value(t, loaded.Risk).Equal(ds.Risk)
	gt.Value(t, loaded.Department).Equal(ds.Department)
	gt.Value(t, loaded.Rows[0]["glucose"]).Equal(nil)
	gt.Value(t, loaded.Rows[0]["gender"]).Equal(ds.Rows[0]["gender"])
}

func TestLoadCSVSkipsInvalidRows(t *testing.T) {
	input := strings.Join([]string{
		"Patient_ID,Age,blood_pressure_systolic,Risk_Level,Department",
		"p1,45,120,Low,General Medicine",
		"p2,abc,120,Low,General Medicine",
		"p3,50,130,Unknown,General Medicine",
		"p4,60,140,High,",
		"p5,70,170,high,Cardiology",
	}, "\n")

	ds, err := triage.LoadCSV(context.Background(), strings.NewReader(input))
	gt.NoError(t, err).Required()
	gt.Value(t, ds.Len()).Equal(2)
	gt.Value(t, ds.Risk).Equal([]string{"Low", "High"})
	gt.Value(t, ds.Rows[1]["systolic_bp"]).Equal(170.0)
	_, hasID := ds.Rows[0]["patient_id"]
	gt.B(t, hasID).False()
}

func TestLoadCSVRequiresLabelColumns(t *testing.T) {
	_, err := triage.LoadCSV(context.Background(), strings.NewReader("age,gender\n40,Male\n"))
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestSplitIsDeterministicAndDisjoint(t *testing.T) {
	ds := triage.GenerateSynthetic(100, 3)
	train1, test1, err := ds.Split(0.2, 42)
	gt.NoError(t, err).Required()
	train2, test2, err := ds.Split(0.2, 42)
	gt.NoError(t, err).Required()

	gt.Value(t, train1.Len()).Equal(80)
	gt.Value(t, test1.Len()).Equal(20)
	gt.Value(t, test1.Risk).Equal(test2.Risk)
	gt.Value(t, train1.Department).Equal(train2.Department)

	_, _, err = ds.Split(1.5, 42)
	gt.Error(t, err).Is(model.ErrInvalidInput)
	_, _, err = triage.GenerateSynthetic(2, 1).Split(0.2, 42)
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestEvaluateOnHeldOutRows(t *testing.T) {
	b := trainedBundle(t)
	eval, err := triage.Evaluate(context.Background(), b, triage.GenerateSynthetic(200, 99))
	gt.NoError(t, err).Required()

	gt.B(t, eval.Risk.Accuracy > 0.8).True()
	gt.B(t, eval.Department.Accuracy > 0.6).True()

	support := 0
	for _, name := range eval.Risk.ClassNames() {
		m := eval.Risk.Classes[name]
		gt.B(t, m.Precision >= 0 && m.Precision <= 1).True()
		gt.B(t, m.Recall >= 0 && m.Recall <= 1).True()
		support += m.Support
	}
	gt.Value(t, support).Equal(200)

	_, err = triage.Evaluate(context.Background(), b, &triage.Dataset{})
	gt.Error(t, err).Is(model.ErrInvalidInput)
}
