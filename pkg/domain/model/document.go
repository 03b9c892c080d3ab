package model

import (
	"maps"
	"time"

	"github.com/vaidya-health/vaidya/pkg/domain/types"
)

// EmbeddingDimension is the dimension of every vector stored in the index.
// Gemini text-embedding-004 and multilingual mpnet encoders both produce 768 dimensions.
const EmbeddingDimension = 768

// ExcerptLength is the number of characters kept in RetrievalResult.Excerpt
const ExcerptLength = 500

// DocumentID is the increasing identifier assigned by the vector index, starting from 0
type DocumentID int64

// Document is an indexed text with its embedding. Documents are never mutated after insertion.
type Document struct {
	ID        DocumentID
	Text      string
	Embedding []float32
	DocType   types.DocType
	Source    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// PatientID returns the patient_id metadata value, or empty when absent
func (d *Document) PatientID() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	if v, ok := d.Metadata[MetaPatientID].(string); ok {
		return v
	}
	return ""
}

// Copy returns a deep copy of the document
func (d *Document) Copy() *Document {
	copied := &Document{
		ID:        d.ID,
		Text:      d.Text,
		DocType:   d.DocType,
		Source:    d.Source,
		CreatedAt: d.CreatedAt,
	}
	if d.Embedding != nil {
		copied.Embedding = make([]float32, len(d.Embedding))
		copy(copied.Embedding, d.Embedding)
	}
	if d.Metadata != nil {
		copied.Metadata = maps.Clone(d.Metadata)
	}
	return copied
}

// Metadata keys attached by the retrieval pipeline
const (
	MetaPatientID   = "patient_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaLength      = "length"
)

// RetrievalResult is one search hit ordered by descending similarity
type RetrievalResult struct {
	DocumentID DocumentID     `json:"document_id"`
	Similarity float64        `json:"similarity"`
	Excerpt    string         `json:"excerpt"`
	Text       string         `json:"-"`
	DocType    types.DocType  `json:"doc_type"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Excerpt truncates text to ExcerptLength characters without splitting a rune
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= ExcerptLength {
		return text
	}
	return string(runes[:ExcerptLength])
}
