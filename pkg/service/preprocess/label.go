package preprocess

import (
	"encoding/json"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// LabelEncoder maps class labels to dense indices in sorted label order
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder learns the sorted set of distinct labels
func NewLabelEncoder(labels []string) (*LabelEncoder, error) {
	if len(labels) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "no labels to encode")
	}
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	return newLabelEncoder(classes), nil
}

func newLabelEncoder(classes []string) *LabelEncoder {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &LabelEncoder{classes: classes, index: idx}
}

// Classes returns the labels in index order
func (e *LabelEncoder) Classes() []string {
	return slices.Clone(e.classes)
}

// Len returns the number of classes
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Encode returns the index of label
func (e *LabelEncoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, goerr.Wrap(model.ErrInvalidInput, "unknown label", goerr.V("label", label))
	}
	return i, nil
}

// EncodeAll encodes every label
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		v, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Decode returns the label at index i
func (e *LabelEncoder) Decode(i int) (string, error) {
	if i < 0 || i >= len(e.classes) {
		return "", goerr.Wrap(model.ErrConfiguration, "label index out of range", goerr.V("index", i), goerr.V("classes", len(e.classes)))
	}
	return e.classes[i], nil
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.classes)
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return err
	}
	*e = *newLabelEncoder(classes)
	return nil
}
