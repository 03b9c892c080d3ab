package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/service/vectorindex"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultTopK         = 3

	defaultEHRSource = "EHR"
)

// Index is the document store the pipeline writes to and searches
type Index interface {
	AddBatch(ctx context.Context, entries []vectorindex.Entry) ([]model.DocumentID, error)
	Search(ctx context.Context, query string, topK int, docType types.DocType) ([]model.RetrievalResult, error)
	Documents(filter func(*model.Document) bool) []*model.Document
}

// Config holds chunking and retrieval parameters
type Config struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
	TopK         int `toml:"top_k"`
}

// DefaultConfig returns 500 character chunks with 50 characters of overlap
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		TopK:         DefaultTopK,
	}
}

// Validate checks the chunking parameters
func (c Config) Validate() error {
	if _, err := Chunk("x", c.ChunkSize, c.ChunkOverlap); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return goerr.Wrap(model.ErrInvalidInput, "top_k must be positive", goerr.V("top_k", c.TopK))
	}
	return nil
}

// Knowledge is a curated medical reference text indexed at startup
type Knowledge struct {
	Title  string `toml:"title" json:"title"`
	Text   string `toml:"text" json:"text"`
	Source string `toml:"source" json:"source,omitempty"`
}

// Pipeline chunks clinical documents into the index and builds LLM context from searches
type Pipeline struct {
	index Index
	cfg   Config
}

// New creates a pipeline over index
func New(index Index, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid retrieval configuration")
	}
	return &Pipeline{index: index, cfg: cfg}, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// AddDocument chunks an EHR document and indexes every chunk. It returns the number of
// chunks indexed; an empty document indexes nothing.
func (p *Pipeline) AddDocument(ctx context.Context, text, patientID, source string) (int, error) {
	chunks, err := Chunk(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if source == "" {
		source = defaultEHRSource
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorindex.Entry{
			Text:    chunk,
			DocType: types.DocTypeEHR,
			Source:  source,
			Metadata: map[string]any{
				model.MetaPatientID:   patientID,
				model.MetaChunkIndex:  i,
				model.MetaTotalChunks: len(chunks),
				model.MetaLength:      utf8.RuneCountInString(chunk),
			},
		}
	}

	ids, err := p.index.AddBatch(ctx, entries)
	if err != nil && len(ids) == 0 {
		return 0, goerr.Wrap(err, "failed to index document", goerr.V(model.PatientIDKey, patientID))
	}

	logging.From(ctx).Info("processed EHR document", "chunks", len(ids), "patient_id", patientID)
	return len(ids), err
}

// AddLabResults indexes lab results as indented JSON
func (p *Pipeline) AddLabResults(ctx context.Context, lab map[string]any, patientID string) (model.DocumentID, error) {
	raw, err := json.MarshalIndent(lab, "", "  ")
	if err != nil {
		return -1, goerr.Wrap(model.ErrInvalidInput, "lab results are not serializable", goerr.V("cause", err.Error()))
	}
	return p.addOne(ctx, vectorindex.Entry{
		Text:     string(raw),
		DocType:  types.DocTypeLab,
		Source:   "lab_results",
		Metadata: patientMetadata(patientID, string(raw)),
	})
}

// AddMedications indexes a medication list as one document
func (p *Pipeline) AddMedications(ctx context.Context, meds []model.Medication, patientID string) (model.DocumentID, error) {
	text := FormatMedications(meds)
	return p.addOne(ctx, vectorindex.Entry{
		Text:     text,
		DocType:  types.DocTypeMedications,
		Source:   "medication_list",
		Metadata: patientMetadata(patientID, text),
	})
}

// SeedKnowledge indexes reference documents. Entries with empty text are skipped.
func (p *Pipeline) SeedKnowledge(ctx context.Context, docs []Knowledge) (int, error) {
	entries := make([]vectorindex.Entry, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		text := d.Text
		if d.Title != "" {
			text = d.Title + "\n" + d.Text
		}
		source := d.Source
		if source == "" {
			source = "knowledge_base"
		}
		entries = append(entries, vectorindex.Entry{
			Text:     text,
			DocType:  types.DocTypeKnowledge,
			Source:   source,
			Metadata: map[string]any{"title": d.Title, model.MetaLength: utf8.RuneCountInString(text)},
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids, err := p.index.AddBatch(ctx, entries)
	if err != nil && len(ids) == 0 {
		return 0, goerr.Wrap(err, "failed to seed knowledge")
	}
	logging.From(ctx).Info("seeded medical knowledge", "documents", len(ids))
	return len(ids), err
}

// PatientDocuments returns every document of a patient ordered by ID
func (p *Pipeline) PatientDocuments(patientID string) []*model.Document {
	return p.index.Documents(func(d *model.Document) bool {
		return d.PatientID() == patientID
	})
}

// Retrieve returns the topK documents most similar to query. topK <= 0 uses the configured value.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error) {
	if topK <= 0 {
		topK = p.cfg.TopK
	}
	results, err := p.index.Search(ctx, query, topK, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search documents")
	}
	return results, nil
}

// RetrieveContext formats the topK search hits as one context string for the LLM
func (p *Pipeline) RetrieveContext(ctx context.Context, query string, topK int) (string, error) {
	results, err := p.Retrieve(ctx, query, topK)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// FormatContext renders results as "[TYPE - Score: 0.87]\n<text>" blocks separated by blank lines
func FormatContext(results []model.RetrievalResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%s - Score: %.2f]\n%s", r.DocType.Label(), r.Similarity, r.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// FormatMedications renders a medication list as a bulleted text
func FormatMedications(meds []model.Medication) string {
	var b strings.Builder
	b.WriteString("Medications:")
	for _, m := range meds {
		b.WriteString("\n- ")
		b.WriteString(m.Name)
		b.WriteString(":")
		for _, part := range []string{m.Dosage, m.Frequency, m.Route} {
			if part != "" {
				b.WriteString(" ")
				b.WriteString(part)
			}
		}
	}
	return b.String()
}

func (p *Pipeline) addOne(ctx context.Context, entry vectorindex.Entry) (model.DocumentID, error) {
	ids, err := p.index.AddBatch(ctx, []vectorindex.Entry{entry})
	if len(ids) == 0 {
		if err == nil {
			err = goerr.New("no document indexed")
		}
		return -1, goerr.Wrap(err, "failed to index document", goerr.V("doc_type", entry.DocType))
	}
	return ids[0], err
}

func patientMetadata(patientID, text string) map[string]any {
	return map[string]any{
		model.MetaPatientID: patientID,
		model.MetaLength:    utf8.RuneCountInString(text),
	}
}
