package triage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

const (
	riskColumn       = "risk_level"
	departmentColumn = "department"
)

// identifier and date columns that never become features
var ignoredColumns = []string{
	"patient_id", "doctor_assigned", "hospital_clinic_id", "last_checkup_date", "next_appointment_date",
}

// LoadCSV reads a training dataset with a header row. Rows with an unknown risk label,
// an empty department or a non-numeric age are skipped with a warning. Cells holding a
// number become float64, empty cells become nil, anything else stays a string.
func LoadCSV(ctx context.Context, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "failed to read CSV header", goerr.V("cause", err.Error()))
	}
	for i := range header {
		header[i] = columnName(header[i])
	}
	riskIdx := slices.Index(header, riskColumn)
	deptIdx := slices.Index(header, departmentColumn)
	if riskIdx < 0 || deptIdx < 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "CSV must have risk_level and department columns", goerr.V("header", header))
	}

	ds := &Dataset{}
	skipped := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(rec) != len(header) {
			skipped++
			continue
		}

		level, err := types.ParseRiskLevel(rec[riskIdx])
		dept := strings.TrimSpace(rec[deptIdx])
		if err != nil || dept == "" {
			skipped++
			continue
		}

		row := make(model.PatientRecord, len(header))
		for i, col := range header {
			if i == riskIdx || i == deptIdx || slices.Contains(ignoredColumns, col) {
				continue
			}
			row[col] = parseCell(rec[i])
		}
		if age, ok := row["age"]; ok {
			if _, isNum := age.(float64); !isNum {
				skipped++
				continue
			}
		}

		ds.Rows = append(ds.Rows, row)
		ds.Risk = append(ds.Risk, level.String())
		ds.Department = append(ds.Department, dept)
	}

	if skipped > 0 {
		logging.From(ctx).Warn("skipped invalid training rows", "count", skipped)
	}
	if ds.Len() == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "CSV has no valid rows")
	}
	return ds, nil
}

// columnName lower-cases a header cell and maps aliases to canonical fields
func columnName(h string) string {
	h = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	return model.CanonicalField(h)
}

func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// WriteCSV writes the dataset with the given feature columns followed by the label columns
func WriteCSV(w io.Writer, ds *Dataset, columns []string) error {
	cw := csv.NewWriter(w)
	header := append(slices.Clone(columns), riskColumn, departmentColumn)
	if err := cw.Write(header); err != nil {
		return goerr.Wrap(err, "failed to write CSV header")
	}

	for i, row := range ds.Rows {
		rec := make([]string, 0, len(header))
		for _, col := range columns {
			rec = append(rec, formatCell(row[col]))
		}
		rec = append(rec, ds.Risk[i], ds.Department[i])
		if err := cw.Write(rec); err != nil {
			return goerr.Wrap(err, "failed to write CSV row", goerr.V("row", i))
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return goerr.Wrap(err, "failed to flush CSV")
	}
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
