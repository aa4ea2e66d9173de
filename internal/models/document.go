package models

import "time"

// Run statuses written to the ledger.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// RunRecord is the ledger entry for one summarize or answer operation.
// It holds metadata about the upload only, never its bytes or text.
type RunRecord struct {
	RequestID        string    `firestore:"requestId,omitempty"`
	Operation        string    `firestore:"operation,omitempty"`
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorKind        string    `firestore:"errorKind,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}
