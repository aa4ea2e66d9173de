package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/docgpt/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreRecorder writes one RunRecord document per operation into a
// collection. Only metadata is stored.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRecorder creates the Firestore client and the recorder.
func NewFirestoreRecorder(ctx context.Context, projectID, collection string) (*FirestoreRecorder, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection must be provided for the run ledger")
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreRecorder{client: client, collection: collection}, nil
}

// Start adds the initial record and returns its document id.
func (r *FirestoreRecorder) Start(ctx context.Context, rec models.RunRecord) (string, error) {
	docRef, _, err := r.client.Collection(r.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}
	return docRef.ID, nil
}

// Finish writes the terminal status of the record id.
func (r *FirestoreRecorder) Finish(ctx context.Context, id string, rec models.RunRecord) error {
	if _, err := r.client.Collection(r.collection).Doc(id).Update(ctx, finishUpdates(rec)); err != nil {
		return fmt.Errorf("failed to update run record %s: %w", id, err)
	}
	return nil
}

// Close releases the Firestore client.
func (r *FirestoreRecorder) Close() error {
	return r.client.Close()
}

func finishUpdates(rec models.RunRecord) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: rec.Status},
	}
	if rec.PageCount > 0 {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: rec.PageCount})
	}
	if rec.ErrorKind != "" {
		updates = append(updates, firestore.Update{Path: "errorKind", Value: rec.ErrorKind})
	}
	if rec.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: rec.ErrorDetails})
	}
	return updates
}
