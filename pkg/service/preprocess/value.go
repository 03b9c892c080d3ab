package preprocess

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// MissingCategory replaces absent categorical values before encoding
const MissingCategory = "missing"

// toNumber converts a record value. missing is true for nil, non-finite numbers and blank strings.
func toNumber(field string, v any) (value float64, missing bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, true, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, true, nil
		}
		return x, false, nil
	case float32:
		return toNumber(field, float64(x))
	case int:
		return float64(x), false, nil
	case int32:
		return float64(x), false, nil
	case int64:
		return float64(x), false, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, goerr.Wrap(model.ErrInvalidInput, "invalid number", goerr.V(model.FieldKey, field), goerr.V("value", x))
		}
		return toNumber(field, f)
	case bool:
		if x {
			return 1, false, nil
		}
		return 0, false, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
			return 0, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, goerr.Wrap(model.ErrInvalidInput, "invalid number", goerr.V(model.FieldKey, field), goerr.V("value", x))
		}
		return toNumber(field, f)
	default:
		return 0, false, goerr.Wrap(model.ErrInvalidInput, "unsupported numeric value type",
			goerr.V(model.FieldKey, field), goerr.V("type", fmt.Sprintf("%T", v)))
	}
}

func toCategory(field string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return MissingCategory, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return MissingCategory, nil
		}
		return s, nil
	case bool, int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(x), nil
	default:
		return "", goerr.Wrap(model.ErrInvalidInput, "unsupported categorical value type",
			goerr.V(model.FieldKey, field), goerr.V("type", fmt.Sprintf("%T", v)))
	}
}

func toFlag(field string, v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "no", "n":
			return 0, nil
		case "1", "true", "yes", "y":
			return 1, nil
		}
		return 0, goerr.Wrap(model.ErrInvalidInput, "invalid boolean", goerr.V(model.FieldKey, field), goerr.V("value", x))
	default:
		f, missing, err := toNumber(field, v)
		if err != nil {
			return 0, err
		}
		if missing || f == 0 {
			return 0, nil
		}
		return 1, nil
	}
}
