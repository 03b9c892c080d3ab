package artifact_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/domain/interfaces"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/repository/artifact"
)

func runArtifactStoreTest(t *testing.T, newStore func(t *testing.T) interfaces.ArtifactStore) {
	t.Helper()

	t.Run("save then load", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		data := []byte(`{"classes":["High","Low","Medium"]}`)

		gt.NoError(t, store.Save(ctx, "risk_classifier.json", data)).Required()
		got, err := store.Load(ctx, "risk_classifier.json")
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal(data)
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		gt.NoError(t, store.Save(ctx, "bundle/meta.json", []byte("v1"))).Required()
		gt.NoError(t, store.Save(ctx, "bundle/meta.json", []byte("v2"))).Required()

		got, err := store.Load(ctx, "bundle/meta.json")
		gt.NoError(t, err).Required()
		gt.Value(t, string(got)).Equal("v2")
	})

	t.Run("missing artifact", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(context.Background(), "does-not-exist.json")
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}

func TestFSArtifactStore(t *testing.T) {
	runArtifactStoreTest(t, func(t *testing.T) interfaces.ArtifactStore {
		store, err := artifact.NewFS(t.TempDir())
		gt.NoError(t, err).Required()
		return store
	})
}

func TestFSArtifactStoreRejectsEscapingNames(t *testing.T) {
	store, err := artifact.NewFS(t.TempDir())
	gt.NoError(t, err).Required()
	err = store.Save(context.Background(), "../outside.json", []byte("x"))
	gt.Error(t, err).Is(model.ErrInvalidInput)
}

func TestGCSArtifactStore(t *testing.T) {
	bucket := os.Getenv("TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("TEST_GCS_BUCKET not set")
	}

	runArtifactStoreTest(t, func(t *testing.T) interfaces.ArtifactStore {
		prefix := fmt.Sprintf("vaidya-test/%d", time.Now().UnixNano())
		store, err := artifact.NewGCS(context.Background(), bucket, prefix)
		gt.NoError(t, err).Required()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
