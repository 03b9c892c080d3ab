package embedding

import (
	"crypto/sha256"
	"math"
	"strings"
	"unicode"

	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText applies NFKC normalization, trims surrounding space and removes control
// characters other than newlines and tabs.
func NormalizeText(text string) string {
	normed := strings.TrimSpace(norm.NFKC.String(text))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
}

// HashEmbedding derives a deterministic unit vector of model.EmbeddingDimension from the
// SHA-256 digest of text: bytes scaled to [0,1], L2-normalized, zero padded.
// It carries no semantic similarity.
func HashEmbedding(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	values := make([]float64, len(sum))
	for i, b := range sum {
		values[i] = float64(b) / 255
	}
	out := make([]float32, model.EmbeddingDimension)
	norm := l2(values)
	for i, v := range values {
		if i >= len(out) {
			break
		}
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out
}

func l2(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v * v
	}
	return math.Sqrt(s)
}

// normalizeVector converts v to float32 and scales it to unit length.
// ok is false for zero, NaN or Inf vectors.
func normalizeVector(v []float32) ([]float32, bool) {
	values := make([]float64, len(v))
	for i, x := range v {
		values[i] = float64(x)
	}
	n := l2(values)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range values {
		out[i] = float32(x / n)
	}
	return out, true
}
