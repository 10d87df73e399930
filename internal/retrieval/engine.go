// Package retrieval ranks stored chunks against a question by fusing vector
// similarity with keyword relevance. Vector search supplies the candidate
// pool; keyword scores only reorder within it.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/storage"
)

const (
	// poolSize is how many vector candidates enter hybrid reranking.
	poolSize = 30

	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// ScoredChunk is one ranked retrieval result with its component scores.
type ScoredChunk struct {
	Chunk      storage.ChunkRecord
	Similarity float64
	Keyword    float64
	Combined   float64
}

// Engine performs hybrid retrieval over one source's chunk store.
type Engine struct {
	store    storage.ChunkStore
	embedder llm.Embedder
}

func NewEngine(store storage.ChunkStore, embedder llm.Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Retrieve returns the top maxChunks fine-tier chunks for the query. The
// candidate pool is the poolSize nearest chunks by embedding; each candidate
// is then rescored as a weighted blend of cosine similarity and normalized
// bm25 relevance.
func (e *Engine) Retrieve(ctx context.Context, query string, maxChunks int) ([]ScoredChunk, error) {
	logger := contextutil.LoggerFromContext(ctx)

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := e.store.VectorSearch(ctx, queryVec, "fine", poolSize)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	chunkIDs := make([]string, len(candidates))
	for i, c := range candidates {
		chunkIDs[i] = c.Chunk.ChunkID
	}

	rawScores, err := e.store.KeywordScores(ctx, query, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("keyword scoring failed: %w", err)
	}
	keyword := normalizeKeywordScores(chunkIDs, rawScores)

	scored := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		kw := keyword[c.Chunk.ChunkID]
		scored[i] = ScoredChunk{
			Chunk:      c.Chunk,
			Similarity: c.Score,
			Keyword:    kw,
			Combined:   vectorWeight*c.Score + keywordWeight*kw,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Combined > scored[j].Combined
	})

	if maxChunks > 0 && len(scored) > maxChunks {
		scored = scored[:maxChunks]
	}

	logger.Debug("hybrid retrieval complete",
		slog.Int("pool", len(candidates)),
		slog.Int("returned", len(scored)),
		slog.Int("keyword_matches", len(rawScores)))
	return scored, nil
}

// normalizeKeywordScores maps raw bm25 scores (lower is better) into [0,1]
// relevance across the candidate pool. Candidates with no keyword match get
// 0; when every matched score is identical they all get 1.
func normalizeKeywordScores(chunkIDs []string, raw map[string]float64) map[string]float64 {
	normalized := make(map[string]float64, len(chunkIDs))
	if len(raw) == 0 {
		return normalized
	}

	first := true
	var minScore, maxScore float64
	for _, id := range chunkIDs {
		score, ok := raw[id]
		if !ok {
			continue
		}
		if first {
			minScore, maxScore = score, score
			first = false
			continue
		}
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}

	spread := maxScore - minScore
	for _, id := range chunkIDs {
		score, ok := raw[id]
		if !ok {
			continue
		}
		if spread == 0 {
			normalized[id] = 1.0
		} else {
			normalized[id] = (maxScore - score) / spread
		}
	}
	return normalized
}
