package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// documentDoc is the Firestore representation of model.Document.
// Embedding is stored as firestore.Vector32 so the collection can carry a vector index.
type documentDoc struct {
	ID        int64              `firestore:"ID"`
	Text      string             `firestore:"Text"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
	DocType   string             `firestore:"DocType"`
	Source    string             `firestore:"Source"`
	Metadata  map[string]any     `firestore:"Metadata,omitempty"`
	CreatedAt time.Time          `firestore:"CreatedAt"`
}

func toDocumentDoc(d *model.Document) *documentDoc {
	doc := &documentDoc{
		ID:        int64(d.ID),
		Text:      d.Text,
		DocType:   string(d.DocType),
		Source:    d.Source,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(d.Embedding)
	}
	return doc
}

func fromDocumentDoc(d *documentDoc) *model.Document {
	doc := &model.Document{
		ID:        model.DocumentID(d.ID),
		Text:      d.Text,
		DocType:   types.DocType(d.DocType),
		Source:    d.Source,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		doc.Embedding = []float32(d.Embedding)
	}
	return doc
}

// documentKey zero pads the ID so that Firestore document names sort like IDs
func documentKey(id model.DocumentID) string {
	return fmt.Sprintf("%012d", id)
}

func (f *Firestore) Create(ctx context.Context, doc *model.Document) error {
	if _, err := f.collection().Doc(documentKey(doc.ID)).Create(ctx, toDocumentDoc(doc)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(model.ErrConflict, "document already exists", goerr.V("document_id", doc.ID))
		}
		return goerr.Wrap(err, "failed to create document", goerr.V("document_id", doc.ID))
	}
	return nil
}

func (f *Firestore) List(ctx context.Context) ([]*model.Document, error) {
	iter := f.collection().OrderBy("ID", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	docs := make([]*model.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents")
		}

		var d documentDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal document", goerr.V("ref", snap.Ref.ID))
		}
		docs = append(docs, fromDocumentDoc(&d))
	}

	return docs, nil
}

func (f *Firestore) DeleteAll(ctx context.Context) error {
	iter := f.collection().Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to iterate documents")
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue document deletion", goerr.V("ref", snap.Ref.ID))
		}
	}
	bw.End()

	return nil
}
