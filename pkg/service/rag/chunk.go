package rag

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
)

// Chunk splits text into windows of size characters where consecutive windows share
// overlap characters. Window k starts at k*(size-overlap); the last window ends at the
// end of the text.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "chunk size must be positive", goerr.V("chunk_size", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, goerr.Wrap(model.ErrInvalidInput, "chunk overlap must be in [0, chunk_size)",
			goerr.V("chunk_size", size), goerr.V("chunk_overlap", overlap))
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Reassemble joins chunks produced by Chunk with the same overlap back into the text
func Reassemble(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
