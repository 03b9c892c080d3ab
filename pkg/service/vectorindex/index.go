package vectorindex

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Embedder converts text into fixed dimension vectors
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) [][]float32
	Dimension() int
}

// Entry is a document to insert
type Entry struct {
	Text     string
	DocType  types.DocType
	Source   string
	Metadata map[string]any
}

// maxIDAttempts bounds how many taken IDs AddBatch skips for one document
const maxIDAttempts = 64

// Index is an exact nearest neighbour index over squared Euclidean distance.
// Document IDs increase from 0 and are never reused until Clear; gaps appear when a
// write-through fails or another index sharing the repository takes an ID.
type Index struct {
	embedder Embedder
	repo     interfaces.DocumentRepository
	now      func() time.Time

	// writeMu serializes ID allocation, write-through, Load and Clear
	writeMu sync.Mutex
	nextID  model.DocumentID

	mu     sync.RWMutex
	docs   []*model.Document // ascending ID
	matrix []float32         // row i belongs to docs[i]
}

// Option configures Index
type Option func(*Index)

// WithRepository writes every inserted document through to repo
func WithRepository(repo interfaces.DocumentRepository) Option {
	return func(x *Index) {
		x.repo = repo
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(x *Index) {
		x.now = now
	}
}

// New creates an empty index
func New(embedder Embedder, opts ...Option) *Index {
	x := &Index{
		embedder: embedder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Dimension returns the vector dimension of the index
func (x *Index) Dimension() int {
	return x.embedder.Dimension()
}

// Add embeds and stores a single document
func (x *Index) Add(ctx context.Context, text string, docType types.DocType, source string, metadata map[string]any) (model.DocumentID, error) {
	ids, err := x.AddBatch(ctx, []Entry{{Text: text, DocType: docType, Source: source, Metadata: metadata}})
	if len(ids) == 0 {
		return -1, err
	}
	return ids[0], err
}

// AddBatch embeds entries in one batch and stores them in order. With a repository
// attached, every document is created there before it becomes searchable; when a
// write-through fails, the documents stored so far stay indexed, their IDs are returned
// with the error and the rest of the batch is dropped.
func (x *Index) AddBatch(ctx context.Context, entries []Entry) ([]model.DocumentID, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		if !e.DocType.IsValid() {
			return nil, goerr.Wrap(model.ErrInvalidInput, "unknown document type",
				goerr.V("doc_type", e.DocType), goerr.V("index", i))
		}
		texts[i] = e.Text
	}

	vectors := x.embedder.EmbedBatch(ctx, texts, false)
	dim := x.Dimension()
	for _, v := range vectors {
		if len(v) != dim {
			return nil, goerr.Wrap(model.ErrConfiguration, "embedding dimension mismatch",
				goerr.V(model.ExpectedKey, dim), goerr.V(model.ActualKey, len(v)))
		}
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	created := x.now()
	docs := make([]*model.Document, 0, len(entries))
	var persistErr error
	for i, e := range entries {
		doc := &model.Document{
			Text:      e.Text,
			Embedding: vectors[i],
			DocType:   e.DocType,
			Source:    e.Source,
			Metadata:  maps.Clone(e.Metadata),
			CreatedAt: created,
		}
		if err := x.allocate(ctx, doc); err != nil {
			persistErr = goerr.Wrap(err, "failed to persist document", goerr.V("index", i))
			break
		}
		docs = append(docs, doc)
	}

	ids := make([]model.DocumentID, len(docs))
	x.mu.Lock()
	for i, doc := range docs {
		x.docs = append(x.docs, doc)
		x.matrix = append(x.matrix, doc.Embedding...)
		ids[i] = doc.ID
	}
	x.mu.Unlock()

	if persistErr != nil {
		return ids, persistErr
	}
	logging.From(ctx).Debug("documents indexed", "count", len(ids), "first_id", ids[0])
	return ids, nil
}

// allocate assigns the next free ID to doc and creates it in the repository. IDs taken
// by another writer are skipped. The caller holds writeMu.
func (x *Index) allocate(ctx context.Context, doc *model.Document) error {
	for range maxIDAttempts {
		doc.ID = x.nextID
		x.nextID++
		if x.repo == nil {
			return nil
		}
		err := x.repo.Create(ctx, doc.Copy())
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return err
		}
		logging.From(ctx).Debug("document ID taken, trying next", "document_id", doc.ID)
	}
	return goerr.Wrap(model.ErrConflict, "no free document ID",
		goerr.V("attempts", maxIDAttempts), goerr.V("next_id", x.nextID))
}

// Search embeds query and returns the topK nearest documents. An empty docType searches
// every type; otherwise only documents of that type are ranked.
func (x *Index) Search(ctx context.Context, query string, topK int, docType types.DocType) ([]model.RetrievalResult, error) {
	if topK <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "top_k must be positive", goerr.V("top_k", topK))
	}
	if x.Len() == 0 {
		return []model.RetrievalResult{}, nil
	}
	vec := x.embedder.EmbedBatch(ctx, []string{query}, true)[0]
	return x.SearchVector(vec, topK, docType)
}

type candidate struct {
	doc      *model.Document
	distance float64
}

// SearchVector ranks documents by squared Euclidean distance to vec. Ties are ordered by
// ascending document ID.
func (x *Index) SearchVector(vec []float32, topK int, docType types.DocType) ([]model.RetrievalResult, error) {
	if topK <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "top_k must be positive", goerr.V("top_k", topK))
	}
	if docType != "" && !docType.IsValid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unknown document type", goerr.V("doc_type", docType))
	}
	dim := x.Dimension()
	if len(vec) != dim {
		return nil, goerr.Wrap(model.ErrConfiguration, "query dimension mismatch",
			goerr.V(model.ExpectedKey, dim), goerr.V(model.ActualKey, len(vec)))
	}

	x.mu.RLock()
	candidates := make([]candidate, 0, len(x.docs))
	for i, doc := range x.docs {
		if docType != "" && doc.DocType != docType {
			continue
		}
		row := x.matrix[i*dim : (i+1)*dim]
		candidates = append(candidates, candidate{doc: doc, distance: squaredL2(row, vec)})
	}
	x.mu.RUnlock()

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.doc.ID, b.doc.ID)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]model.RetrievalResult, len(candidates))
	for i, c := range candidates {
		results[i] = model.RetrievalResult{
			DocumentID: c.doc.ID,
			Similarity: Similarity(c.distance),
			Excerpt:    model.Excerpt(c.doc.Text),
			Text:       c.doc.Text,
			DocType:    c.doc.DocType,
			Source:     c.doc.Source,
			Metadata:   maps.Clone(c.doc.Metadata),
		}
	}
	return results, nil
}

// Get returns a copy of the document with id
func (x *Index) Get(id model.DocumentID) (*model.Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i, ok := slices.BinarySearchFunc(x.docs, id, func(d *model.Document, id model.DocumentID) int {
		return cmp.Compare(d.ID, id)
	})
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("document_id", id))
	}
	return x.docs[i].Copy(), nil
}

// Documents returns copies of the documents accepted by filter, ordered by ID.
// A nil filter returns every document.
func (x *Index) Documents(filter func(*model.Document) bool) []*model.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []*model.Document
	for _, doc := range x.docs {
		if filter == nil || filter(doc) {
			out = append(out, doc.Copy())
		}
	}
	return out
}

// Len returns the number of documents
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Clear removes every document from the index and the attached repository.
// ID assignment restarts at 0.
func (x *Index) Clear(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.Lock()
	x.docs = nil
	x.matrix = nil
	x.mu.Unlock()
	x.nextID = 0

	if x.repo != nil {
		if err := x.repo.DeleteAll(ctx); err != nil {
			return goerr.Wrap(err, "failed to clear document repository")
		}
	}
	return nil
}

// Rebuild recomputes the vector matrix from the stored documents
func (x *Index) Rebuild() error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	matrix, err := buildMatrix(x.docs, x.Dimension())
	if err != nil {
		return err
	}
	x.mu.Lock()
	x.matrix = matrix
	x.mu.Unlock()
	return nil
}

// Load merges the documents of the attached repository into the index. Documents already
// indexed are kept, so a document returned by Add never disappears, and the next ID moves
// past the largest stored one.
func (x *Index) Load(ctx context.Context) error {
	if x.repo == nil {
		return goerr.Wrap(model.ErrConfiguration, "no document repository attached")
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	stored, err := x.repo.List(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list documents")
	}
	merged := mergeDocuments(x.docs, stored)
	matrix, err := buildMatrix(merged, x.Dimension())
	if err != nil {
		return err
	}

	x.mu.Lock()
	added := len(merged) - len(x.docs)
	x.docs = merged
	x.matrix = matrix
	x.mu.Unlock()

	if n := len(merged); n > 0 && merged[n-1].ID >= x.nextID {
		x.nextID = merged[n-1].ID + 1
	}

	logging.From(ctx).Info("vector index restored", "documents", len(merged), "added", added)
	return nil
}

// mergeDocuments unions two ID ordered document lists. On equal IDs the indexed document wins.
func mergeDocuments(indexed, stored []*model.Document) []*model.Document {
	out := make([]*model.Document, 0, max(len(indexed), len(stored)))
	i, j := 0, 0
	for i < len(indexed) && j < len(stored) {
		switch c := cmp.Compare(indexed[i].ID, stored[j].ID); {
		case c < 0:
			out = append(out, indexed[i])
			i++
		case c > 0:
			out = append(out, stored[j])
			j++
		default:
			out = append(out, indexed[i])
			i++
			j++
		}
	}
	out = append(out, indexed[i:]...)
	return append(out, stored[j:]...)
}

// Similarity maps a squared distance into (0, 1]
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

func buildMatrix(docs []*model.Document, dim int) ([]float32, error) {
	matrix := make([]float32, 0, len(docs)*dim)
	for _, doc := range docs {
		if len(doc.Embedding) != dim {
			return nil, goerr.Wrap(model.ErrConfiguration, "stored embedding dimension mismatch",
				goerr.V("document_id", doc.ID), goerr.V(model.ExpectedKey, dim), goerr.V(model.ActualKey, len(doc.Embedding)))
		}
		matrix = append(matrix, doc.Embedding...)
	}
	return matrix, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
