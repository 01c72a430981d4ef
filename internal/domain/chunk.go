package domain

import "time"

// ChunkMetadata is attached to every stored chunk and returned as an answer source.
type ChunkMetadata struct {
	Source     string `json:"source"`
	CustomerID string `json:"customer_id"`
	ProjectID  string `json:"project_id"`
}

// ChunkRecord is one row of the vector index.
// IngestionID links the row to the ledger entry that wrote it and is never
// returned to clients.
type ChunkRecord struct {
	ID          string
	Namespace   string
	IngestionID string
	Content     string
	Metadata    ChunkMetadata
	Embedding   []float32
	CreatedAt   time.Time
}

// QueryResult is a similarity search hit. Not persisted.
type QueryResult struct {
	Content  string
	Metadata ChunkMetadata
	Score    float64
}
