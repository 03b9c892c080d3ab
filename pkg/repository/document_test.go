package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/repository/firestore"
	"github.com/vaidya-health/vaidya/pkg/repository/memory"
)

func newTestDocument(id model.DocumentID) *model.Document {
	embedding := make([]float32, model.EmbeddingDimension)
	for i := range embedding {
		embedding[i] = float32(i) / float32(model.EmbeddingDimension)
	}
	return &model.Document{
		ID:        id,
		Text:      fmt.Sprintf("Patient note %d: mild fever and cough", id),
		Embedding: embedding,
		DocType:   types.DocTypeEHR,
		Source:    "upload",
		Metadata: map[string]any{
			model.MetaPatientID: "P-001",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func runDocumentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.DocumentRepository) {
	t.Helper()

	t.Run("List returns documents in ID order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, id := range []model.DocumentID{2, 0, 1} {
			gt.NoError(t, repo.Create(ctx, newTestDocument(id))).Required()
		}

		docs, err := repo.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(3).Required()
		for i, doc := range docs {
			gt.Value(t, doc.ID).Equal(model.DocumentID(i))
		}
	})

	t.Run("Create preserves every field", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		original := newTestDocument(0)
		gt.NoError(t, repo.Create(ctx, original)).Required()

		docs, err := repo.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(1).Required()
		got := docs[0]

		gt.Value(t, got.Text).Equal(original.Text)
		gt.Value(t, got.DocType).Equal(original.DocType)
		gt.Value(t, got.Source).Equal(original.Source)
		gt.Value(t, got.PatientID()).Equal("P-001")
		gt.Array(t, got.Embedding).Length(model.EmbeddingDimension)
		gt.Value(t, got.Embedding[model.EmbeddingDimension-1]).Equal(original.Embedding[model.EmbeddingDimension-1])
		gt.Bool(t, got.CreatedAt.Equal(original.CreatedAt)).True()
	})

	t.Run("stored documents are not affected by caller mutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		doc := newTestDocument(0)
		gt.NoError(t, repo.Create(ctx, doc)).Required()
		doc.Text = "changed"
		doc.Embedding[0] = 42

		docs, err := repo.List(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, docs[0].Text).NotEqual("changed")
		gt.Value(t, docs[0].Embedding[0]).NotEqual(float32(42))
	})

	t.Run("Create rejects a taken ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Create(ctx, newTestDocument(0))).Required()

		other := newTestDocument(0)
		other.Text = "written by another instance"
		gt.Error(t, repo.Create(ctx, other)).Is(model.ErrConflict)

		docs, err := repo.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(1).Required()
		gt.Value(t, docs[0].Text).NotEqual("written by another instance")
	})

	t.Run("DeleteAll removes everything", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		gt.NoError(t, repo.Create(ctx, newTestDocument(0))).Required()
		gt.NoError(t, repo.Create(ctx, newTestDocument(1))).Required()

		gt.NoError(t, repo.DeleteAll(ctx)).Required()
		docs, err := repo.List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, docs).Length(0)
	})
}

func newFirestoreDocumentRepository(t *testing.T) interfaces.DocumentRepository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d_", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		if err := repo.DeleteAll(ctx); err != nil {
			t.Errorf("failed to clean up documents: %v", err)
		}
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close firestore repository: %v", err)
		}
	})
	return repo
}

func TestMemoryDocumentRepository(t *testing.T) {
	runDocumentRepositoryTest(t, func(t *testing.T) interfaces.DocumentRepository {
		return memory.New()
	})
}

func TestFirestoreDocumentRepository(t *testing.T) {
	runDocumentRepositoryTest(t, newFirestoreDocumentRepository)
}
