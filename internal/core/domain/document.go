package domain

import "time"

type PaperStatus string

const (
	PaperStatusPending PaperStatus = "pending"
	PaperStatusIndexed PaperStatus = "indexed"
	PaperStatusFailed  PaperStatus = "failed"
)

// Paper is the read model of an ingested document. Ingestion itself
// happens outside this service; we only read what the pipeline wrote.
type Paper struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Authors    string      `json:"authors,omitempty"`
	Year       int         `json:"year,omitempty"`
	PageCount  int         `json:"page_count,omitempty"`
	ChunkCount int         `json:"chunk_count"`
	Status     PaperStatus `json:"status"`
	IndexedAt  *time.Time  `json:"indexed_at,omitempty"`
}
