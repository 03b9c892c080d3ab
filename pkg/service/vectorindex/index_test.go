package vectorindex_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/repository/memory"
	"github.com/vaidya-health/vaidya/pkg/service/embedding"
	"github.com/vaidya-health/vaidya/pkg/service/vectorindex"
)

// keywordEmbedder maps texts onto axes by keyword so distances are predictable
type keywordEmbedder struct{}

var keywords = []string{"fever", "chest", "insulin", "fracture"}

func (keywordEmbedder) Dimension() int { return len(keywords) }

func (keywordEmbedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(keywords))
		for j, kw := range keywords {
			if containsWord(text, kw) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out
}

func containsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func TestAddThenSearchFindsDocument(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(embedding.New(ctx))

	id, err := idx.Add(ctx, "Patient reports chest pain radiating to left arm", types.DocTypeEHR, "note", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal(model.DocumentID(0))
	_, err = idx.Add(ctx, "Metformin 500mg twice daily", types.DocTypeMedications, "", nil)
	gt.NoError(t, err).Required()

	results, err := idx.Search(ctx, "Patient reports chest pain radiating to left arm", 1, "")
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(1).Required()
	gt.Value(t, results[0].DocumentID).Equal(model.DocumentID(0))
	gt.Value(t, results[0].Similarity).Equal(1.0)
}

func TestSearchOrderingAndSimilarity(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})

	texts := []string{"fever and chest pain", "fever", "insulin dose", "fever"}
	for _, text := range texts {
		_, err := idx.Add(ctx, text, types.DocTypeEHR, "", nil)
		gt.NoError(t, err).Required()
	}

	results, err := idx.Search(ctx, "fever", 4, "")
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(4).Required()

	// exact matches tie at distance 0 and are ordered by ID
	gt.Value(t, results[0].DocumentID).Equal(model.DocumentID(1))
	gt.Value(t, results[1].DocumentID).Equal(model.DocumentID(3))
	gt.Value(t, results[2].DocumentID).Equal(model.DocumentID(0))
	gt.Value(t, results[3].DocumentID).Equal(model.DocumentID(2))

	gt.Value(t, results[0].Similarity).Equal(1.0)
	gt.Value(t, results[2].Similarity).Equal(vectorindex.Similarity(1))
	gt.Value(t, results[3].Similarity).Equal(vectorindex.Similarity(2))
	gt.Value(t, vectorindex.Similarity(1)).Equal(0.5)
}

func TestSearchFiltersBeforeTopK(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})

	_, err := idx.Add(ctx, "fever", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	_, err = idx.Add(ctx, "fever", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	_, err = idx.Add(ctx, "insulin", types.DocTypeLab, "", nil)
	gt.NoError(t, err).Required()

	results, err := idx.Search(ctx, "fever", 1, types.DocTypeLab)
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(1).Required()
	gt.Value(t, results[0].DocumentID).Equal(model.DocumentID(2))
	gt.Value(t, results[0].DocType).Equal(types.DocTypeLab)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := vectorindex.New(keywordEmbedder{})
	results, err := idx.Search(context.Background(), "fever", 5, "")
	gt.NoError(t, err)
	gt.Array(t, results).Length(0)
}

func TestSearchRejectsInvalidArguments(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})

	_, err := idx.Search(ctx, "fever", 0, "")
	gt.Error(t, err).Is(model.ErrInvalidInput)

	_, err = idx.SearchVector([]float32{1, 0}, 3, "")
	gt.Error(t, err).Is(model.ErrConfiguration)

	_, err = idx.Add(ctx, "fever", types.DocType("spreadsheet"), "", nil)
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestExcerptIsTruncated(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})
	long := ""
	for len([]rune(long)) < 600 {
		long += "ज्वर "
	}
	_, err := idx.Add(ctx, long, types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()

	results, err := idx.Search(ctx, "anything", 1, "")
	gt.NoError(t, err).Required()
	gt.Value(t, len([]rune(results[0].Excerpt))).Equal(model.ExcerptLength)
	gt.Value(t, results[0].Text).Equal(long)
}

func TestGetAndDocuments(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})
	meta := map[string]any{model.MetaPatientID: "P-7"}
	_, err := idx.Add(ctx, "fever", types.DocTypeEHR, "", meta)
	gt.NoError(t, err).Required()
	_, err = idx.Add(ctx, "insulin", types.DocTypeMedications, "", nil)
	gt.NoError(t, err).Required()

	meta[model.MetaPatientID] = "mutated"
	doc, err := idx.Get(0)
	gt.NoError(t, err).Required()
	gt.Value(t, doc.PatientID()).Equal("P-7")

	_, err = idx.Get(5)
	gt.Error(t, err).Is(model.ErrNotFound)

	docs := idx.Documents(func(d *model.Document) bool { return d.PatientID() == "P-7" })
	gt.Array(t, docs).Length(1)
	gt.Array(t, idx.Documents(nil)).Length(2)
}

func TestWriteThroughAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	idx := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))

	ids, err := idx.AddBatch(ctx, []vectorindex.Entry{
		{Text: "fever", DocType: types.DocTypeEHR},
		{Text: "chest", DocType: types.DocTypeKnowledge},
	})
	gt.NoError(t, err).Required()
	gt.Value(t, ids).Equal([]model.DocumentID{0, 1})

	restored := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))
	gt.NoError(t, restored.Load(ctx)).Required()
	gt.Value(t, restored.Len()).Equal(2)

	results, err := restored.Search(ctx, "chest", 1, "")
	gt.NoError(t, err).Required()
	gt.Value(t, results[0].DocumentID).Equal(model.DocumentID(1))

	id, err := restored.Add(ctx, "insulin", types.DocTypeMedications, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal(model.DocumentID(2))

	gt.NoError(t, restored.Clear(ctx)).Required()
	gt.Value(t, restored.Len()).Equal(0)
	docs, err := repo.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, docs).Length(0)
}

// flakyRepository fails the Create calls listed in failOn (1-based)
type flakyRepository struct {
	*memory.Memory
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (r *flakyRepository) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	r.calls++
	fail := r.failOn[r.calls]
	r.mu.Unlock()
	if fail {
		return errors.New("transient write failure")
	}
	return r.Memory.Create(ctx, doc)
}

func TestFailedWriteThroughIsNotIndexed(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{Memory: memory.New(), failOn: map[int]bool{2: true}}
	idx := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))

	id, err := idx.Add(ctx, "fever", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal(model.DocumentID(0))

	id, err = idx.Add(ctx, "chest", types.DocTypeEHR, "", nil)
	gt.Value(t, err).NotNil()
	gt.Value(t, id).Equal(model.DocumentID(-1))
	gt.Value(t, idx.Len()).Equal(1)

	id, err = idx.Add(ctx, "insulin", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal(model.DocumentID(2))

	_, err = idx.Get(1)
	gt.Error(t, err).Is(model.ErrNotFound)
	doc, err := idx.Get(2)
	gt.NoError(t, err).Required()
	gt.Value(t, doc.Text).Equal("insulin")

	restored := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))
	gt.NoError(t, restored.Load(ctx)).Required()
	gt.Value(t, restored.Len()).Equal(2)

	results, err := restored.Search(ctx, "insulin", 1, "")
	gt.NoError(t, err).Required()
	gt.Value(t, results[0].DocumentID).Equal(model.DocumentID(2))

	id, err = restored.Add(ctx, "fracture", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal(model.DocumentID(3))
}

func TestAddBatchKeepsStoredPrefixOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{Memory: memory.New(), failOn: map[int]bool{2: true}}
	idx := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))

	ids, err := idx.AddBatch(ctx, []vectorindex.Entry{
		{Text: "fever", DocType: types.DocTypeEHR},
		{Text: "chest", DocType: types.DocTypeEHR},
		{Text: "insulin", DocType: types.DocTypeEHR},
	})
	gt.Value(t, err).NotNil()
	gt.Value(t, ids).Equal([]model.DocumentID{0})
	gt.Value(t, idx.Len()).Equal(1)

	docs, err := repo.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, docs).Length(1)
}

func TestIndexesSharingRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	a := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))
	b := vectorindex.New(keywordEmbedder{}, vectorindex.WithRepository(repo))

	idA, err := a.Add(ctx, "fever note from instance A", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	idB, err := b.Add(ctx, "chest note from instance B", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, idA).Equal(model.DocumentID(0))
	gt.Value(t, idB).Equal(model.DocumentID(1))

	stored, err := repo.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, stored).Length(2)

	gt.NoError(t, a.Load(ctx)).Required()
	gt.Value(t, a.Len()).Equal(2)
	doc, err := a.Get(idA)
	gt.NoError(t, err).Required()
	gt.Value(t, doc.Text).Equal("fever note from instance A")

	results, err := a.Search(ctx, "chest", 1, "")
	gt.NoError(t, err).Required()
	gt.Value(t, results[0].DocumentID).Equal(idB)

	idA2, err := a.Add(ctx, "insulin note from instance A", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()
	gt.Value(t, idA2).Equal(model.DocumentID(2))

	gt.NoError(t, b.Load(ctx)).Required()
	gt.Value(t, b.Len()).Equal(3)
}

func TestRebuildKeepsResults(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})
	_, err := idx.Add(ctx, "fracture", types.DocTypeEHR, "", nil)
	gt.NoError(t, err).Required()

	gt.NoError(t, idx.Rebuild()).Required()
	results, err := idx.Search(ctx, "fracture", 1, "")
	gt.NoError(t, err).Required()
	gt.Value(t, results[0].Similarity).Equal(1.0)
}

func TestConcurrentAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.New(keywordEmbedder{})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := fmt.Sprintf("fever case %d", i)
			id, err := idx.Add(ctx, text, types.DocTypeEHR, "", nil)
			if err != nil {
				t.Errorf("add failed: %v", err)
				return
			}
			doc, err := idx.Get(id)
			if err != nil || doc.Text != text {
				t.Errorf("added document %d not visible", id)
			}
			if _, err := idx.Search(ctx, "fever", 3, ""); err != nil {
				t.Errorf("search failed: %v", err)
			}
		}()
	}
	wg.Wait()

	gt.Value(t, idx.Len()).Equal(20)
	seen := map[model.DocumentID]bool{}
	for _, doc := range idx.Documents(nil) {
		seen[doc.ID] = true
	}
	gt.Value(t, len(seen)).Equal(20)
}
