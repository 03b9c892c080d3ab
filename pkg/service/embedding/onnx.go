package embedding

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates a local sentence encoder exported to ONNX with its HuggingFace
// tokenizer.json
type ONNXConfig struct {
	RuntimePath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	// WithTokenTypes feeds token_type_ids as a third input
	WithTokenTypes bool
	OutputName     string
	QueryPrefix    string
	PassagePrefix  string
}

// ONNXEncoder runs a multilingual transformer locally and mean-pools its last hidden state
type ONNXEncoder struct {
	cfg     ONNXConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

var ortInit sync.Once
var ortInitErr error

// NewONNXEncoder initializes the ONNX runtime environment once per process and loads
// the model and tokenizer.
func NewONNXEncoder(cfg ONNXConfig) (*ONNXEncoder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, goerr.Wrap(model.ErrConfiguration, "onnx model and tokenizer paths are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	ortInit.Do(func() {
		if cfg.RuntimePath != "" {
			ort.SetSharedLibraryPath(cfg.RuntimePath)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	if ortInitErr != nil {
		return nil, goerr.Wrap(ortInitErr, "failed to initialize onnxruntime", goerr.V("runtime", cfg.RuntimePath))
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tokenizer", goerr.V("path", cfg.TokenizerPath))
	}

	inputs := []string{"input_ids", "attention_mask"}
	if cfg.WithTokenTypes {
		inputs = append(inputs, "token_type_ids")
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create onnx session", goerr.V("model", cfg.ModelPath))
	}

	return &ONNXEncoder{cfg: cfg, tk: tk, session: session}, nil
}

func (e *ONNXEncoder) Name() string {
	return "onnx:" + e.cfg.ModelPath
}

func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// Encode embeds texts one at a time; the session is not shared across goroutines
func (e *ONNXEncoder) Encode(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	prefix := e.cfg.PassagePrefix
	if isQuery {
		prefix = e.cfg.QueryPrefix
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "onnx encoding cancelled")
		}
		vec, err := e.encodeOne(prefix + text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode text", goerr.V("index", i))
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ONNXEncoder) encodeOne(text string) ([]float32, error) {
	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to tokenize")
	}

	n := min(len(enc.Ids), e.cfg.MaxSeqLen)
	if n == 0 {
		return nil, goerr.New("tokenizer produced no tokens")
	}
	ids := make([]int64, n)
	mask := make([]int64, n)
	typeIDs := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		mask[i] = 1
		if i < len(enc.AttentionMask) {
			mask[i] = int64(enc.AttentionMask[i])
		}
		if i < len(enc.TypeIds) {
			typeIDs[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create input_ids tensor")
	}
	defer func() { _ = idsTensor.Destroy() }()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create attention_mask tensor")
	}
	defer func() { _ = maskTensor.Destroy() }()

	inputs := []ort.Value{idsTensor, maskTensor}
	if e.cfg.WithTokenTypes {
		typeTensor, err := ort.NewTensor(shape, typeIDs)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create token_type_ids tensor")
		}
		defer func() { _ = typeTensor.Destroy() }()
		inputs = append(inputs, typeTensor)
	}

	dim := model.EmbeddingDimension
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n), int64(dim)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create output tensor")
	}
	defer func() { _ = output.Destroy() }()

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, goerr.New("onnx encoder is closed")
	}
	err = e.session.Run(inputs, []ort.Value{output})
	e.mu.Unlock()
	if err != nil {
		return nil, goerr.Wrap(err, "onnx inference failed")
	}

	return meanPool(output.GetData(), mask, dim), nil
}

// meanPool averages token vectors of hidden ([tokens x dim], row-major) over unmasked tokens
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for j, v := range row {
			out[j] += v
		}
		count++
	}
	if count > 0 {
		for j := range out {
			out[j] /= count
		}
	}
	return out
}
