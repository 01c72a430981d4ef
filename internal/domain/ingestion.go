package domain

import "time"

// IngestionStatus tracks an ingest attempt through archive and indexing.
type IngestionStatus string

const (
	IngestionStatusPending IngestionStatus = "pending"
	IngestionStatusIndexed IngestionStatus = "indexed"
	IngestionStatusFailed  IngestionStatus = "failed"
)

func (s IngestionStatus) IsValid() bool {
	switch s {
	case IngestionStatusPending, IngestionStatusIndexed, IngestionStatusFailed:
		return true
	}
	return false
}

// Ingestion is the ledger row for one ingest attempt. ObjectCreated is true when
// the attempt wrote a key that did not exist before, which is the only case in
// which cleanup may delete the object.
type Ingestion struct {
	ID            string
	Namespace     string
	StorageKey    string
	Filename      string
	ContentType   string
	SizeBytes     int64
	Chunks        int
	Status        IngestionStatus
	ObjectCreated bool
	ObjectRemoved bool
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NeedsCleanup reports whether a blob written by this attempt may be orphaned.
func (i *Ingestion) NeedsCleanup() bool {
	return i.Status != IngestionStatusIndexed && i.ObjectCreated && !i.ObjectRemoved
}
