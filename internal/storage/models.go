package storage

import "time"

// ChunkRecord is one persisted transcript chunk. Embedding is nil when no
// vector has been stored for the chunk; such records are skipped by vector
// search but still found by keyword search.
type ChunkRecord struct {
	ID         int64
	VideoID    string
	VideoURL   string
	ChunkID    string
	Tier       string
	Start      float64
	End        float64
	Text       string
	SegmentIDs []int
	Embedding  []float32
	CreatedAt  time.Time
}

// SearchResult pairs a chunk with the score that ranked it. For keyword
// results Score is the normalized bm25 relevance in [0,1]; for vector results
// it is cosine similarity in [-1,1].
type SearchResult struct {
	Chunk ChunkRecord
	Score float64
}
