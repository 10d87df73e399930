package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrNotFound is returned when a lookup matches no chunk.
var ErrNotFound = errors.New("chunk not found")

//go:generate mockgen -source=chunk_repo.go -destination=mocks/chunk_store.go -package=mocks

// ChunkStore is the read/write surface the rest of the service uses.
// Implementations are not safe for concurrent writes to the same file.
type ChunkStore interface {
	Upsert(ctx context.Context, records []ChunkRecord) (int, error)
	KeywordSearch(ctx context.Context, query, tier string, limit int) ([]SearchResult, error)
	KeywordScores(ctx context.Context, query string, chunkIDs []string) (map[string]float64, error)
	VectorSearch(ctx context.Context, queryVec []float32, tier string, limit int) ([]SearchResult, error)
	GetByChunkID(ctx context.Context, chunkID string) (ChunkRecord, error)
	ListByTier(ctx context.Context, tier string) ([]ChunkRecord, error)
}

// ChunkRepo implements ChunkStore over a single SQLite database.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

const chunkColumns = `id, video_id, video_url, chunk_id, tier, start, end, text, segment_ids, embedding, created_at`

// Upsert writes records in one transaction, replacing any existing row with
// the same chunk_id. Last write wins. Returns the number of records persisted.
func (r *ChunkRepo) Upsert(ctx context.Context, records []ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// REPLACE would delete the old row without firing the delete trigger,
	// leaving a stale entry in the FTS mirror. The conflict update fires
	// chunks_au, which rewrites the mirror entry in step.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks
			(video_id, video_url, chunk_id, tier, start, end, text, segment_ids, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			video_id = excluded.video_id,
			video_url = excluded.video_url,
			tier = excluded.tier,
			start = excluded.start,
			end = excluded.end,
			text = excluded.text,
			segment_ids = excluded.segment_ids,
			embedding = excluded.embedding`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, rec := range records {
		segIDs, err := json.Marshal(rec.SegmentIDs)
		if err != nil {
			return stored, fmt.Errorf("failed to encode segment ids for %s: %w", rec.ChunkID, err)
		}

		var embedding any
		if rec.Embedding != nil {
			data, err := json.Marshal(rec.Embedding)
			if err != nil {
				return stored, fmt.Errorf("failed to encode embedding for %s: %w", rec.ChunkID, err)
			}
			embedding = string(data)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.VideoID, rec.VideoURL, rec.ChunkID, rec.Tier,
			rec.Start, rec.End, rec.Text, string(segIDs), embedding,
		); err != nil {
			return stored, fmt.Errorf("failed to upsert chunk %s: %w", rec.ChunkID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return stored, nil
}

// KeywordSearch runs an FTS5 match and returns the top chunks with bm25
// relevance normalized to [0,1], best match first. A tier of "" searches
// both tiers.
func (r *ChunkRepo) KeywordSearch(ctx context.Context, query, tier string, limit int) ([]SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	q := `
		SELECT ` + prefixed("c", chunkColumns) + `, bm25(chunks_fts) AS score
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE chunks_fts MATCH ?`
	args := []any{match}
	if tier != "" {
		q += ` AND c.tier = ?`
		args = append(args, tier)
	}
	q += ` ORDER BY score ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		rec, score, err := scanChunkWithScore(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	normalizeBM25(results)
	return results, nil
}

// KeywordScores returns the raw bm25 score for each of the given chunk ids
// that matches the query. Lower is better; ids with no match are absent from
// the returned map.
func (r *ChunkRepo) KeywordScores(ctx context.Context, query string, chunkIDs []string) (map[string]float64, error) {
	scores := make(map[string]float64)
	if len(chunkIDs) == 0 {
		return scores, nil
	}
	match := ftsQuery(query)
	if match == "" {
		return scores, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]

	q := `
		SELECT f.chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts f
		WHERE chunks_fts MATCH ? AND f.chunk_id IN (` + placeholders + `)`
	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, match)
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword scoring failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		scores[id] = score
	}
	return scores, rows.Err()
}

// VectorSearch scans all stored embeddings, ranks by cosine similarity to
// queryVec and returns the top limit chunks, most similar first. Chunks with
// no stored embedding are skipped.
func (r *ChunkRepo) VectorSearch(ctx context.Context, queryVec []float32, tier string, limit int) ([]SearchResult, error) {
	q := `SELECT ` + chunkColumns + ` FROM chunks WHERE embedding IS NOT NULL`
	var args []any
	if tier != "" {
		q += ` AND tier = ?`
		args = append(args, tier)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if rec.Embedding == nil {
			continue
		}
		sim := cosine(queryVec, rec.Embedding)
		results = append(results, SearchResult{Chunk: rec, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListByTier returns a tier's chunks in playback order.
func (r *ChunkRepo) ListByTier(ctx context.Context, tier string) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE tier = ? ORDER BY start, chunk_id`, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var records []ChunkRecord
	for rows.Next() {
		rec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByChunkID fetches a single chunk, returning ErrNotFound when absent.
func (r *ChunkRepo) GetByChunkID(ctx context.Context, chunkID string) (ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, chunkID)

	rec, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ChunkRecord{}, ErrNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (ChunkRecord, error) {
	var rec ChunkRecord
	var segIDs string
	var embedding sql.NullString

	err := row.Scan(&rec.ID, &rec.VideoID, &rec.VideoURL, &rec.ChunkID, &rec.Tier,
		&rec.Start, &rec.End, &rec.Text, &segIDs, &embedding, &rec.CreatedAt)
	if err != nil {
		return ChunkRecord{}, err
	}

	if err := json.Unmarshal([]byte(segIDs), &rec.SegmentIDs); err != nil {
		return ChunkRecord{}, fmt.Errorf("failed to decode segment ids for %s: %w", rec.ChunkID, err)
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &rec.Embedding); err != nil {
			return ChunkRecord{}, fmt.Errorf("failed to decode embedding for %s: %w", rec.ChunkID, err)
		}
	}
	return rec, nil
}

func scanChunkWithScore(rows *sql.Rows) (ChunkRecord, float64, error) {
	var rec ChunkRecord
	var segIDs string
	var embedding sql.NullString
	var score float64

	err := rows.Scan(&rec.ID, &rec.VideoID, &rec.VideoURL, &rec.ChunkID, &rec.Tier,
		&rec.Start, &rec.End, &rec.Text, &segIDs, &embedding, &rec.CreatedAt, &score)
	if err != nil {
		return ChunkRecord{}, 0, err
	}

	if err := json.Unmarshal([]byte(segIDs), &rec.SegmentIDs); err != nil {
		return ChunkRecord{}, 0, fmt.Errorf("failed to decode segment ids for %s: %w", rec.ChunkID, err)
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &rec.Embedding); err != nil {
			return ChunkRecord{}, 0, fmt.Errorf("failed to decode embedding for %s: %w", rec.ChunkID, err)
		}
	}
	return rec, score, nil
}

// normalizeBM25 rewrites raw bm25 scores (lower is better) as relevance in
// [0,1]. When all scores are equal every result gets 1.0.
func normalizeBM25(results []SearchResult) {
	if len(results) == 0 {
		return
	}
	minScore, maxScore := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	spread := maxScore - minScore
	for i := range results {
		if spread == 0 {
			results[i].Score = 1.0
		} else {
			results[i].Score = (maxScore - results[i].Score) / spread
		}
	}
}

// ftsQuery turns free text into an FTS5 match expression. Each term is
// quoted so punctuation in the user's question never reaches the FTS parser,
// and terms are OR'd so partial matches still rank.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// cosine returns the cosine similarity of two vectors, or 0 when either has
// zero magnitude or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
