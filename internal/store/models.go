package store

import "time"

// IngestedChunk records what was last uploaded for one vector ID.
type IngestedChunk struct {
	ID          string    `json:"id"` // vector ID, e.g. "chunk-3"
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type IngestionRun struct {
	ID         string     `json:"id"` // UUID
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"` // Nullable
	Upserted   int        `json:"upserted"`
	Deleted    int        `json:"deleted"`
	Unchanged  int        `json:"unchanged"`
}
