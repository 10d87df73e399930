// Package indexer runs the ingestion pipeline for one video: fetch the
// transcript, segment it into both tiers, embed the chunks and persist them
// to the video's own chunk database. A video with no transcript is rejected
// before any store is created.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
	"github.com/GavinStein1/pod2chat/internal/storage"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

// TranscriptSource fetches raw transcript segments for a video.
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, videoID string) ([]segmenter.RawSegment, error)
}

// Result reports what one indexing run produced.
type Result struct {
	VideoID      string `json:"video_id"`
	URL          string `json:"url"`
	Segments     int    `json:"segments"`
	FineChunks   int    `json:"fine_chunks"`
	CoarseChunks int    `json:"coarse_chunks"`
	Stored       int    `json:"stored"`
}

// Indexer wires the pipeline stages together.
type Indexer struct {
	source   TranscriptSource
	embedder llm.Embedder
	dataDir  string
	fine     segmenter.TierConfig
	coarse   segmenter.TierConfig
}

func New(source TranscriptSource, embedder llm.Embedder, dataDir string, fine, coarse segmenter.TierConfig) *Indexer {
	return &Indexer{
		source:   source,
		embedder: embedder,
		dataDir:  dataDir,
		fine:     fine,
		coarse:   coarse,
	}
}

// Index ingests one video, identified by URL or bare id. Re-indexing the
// same video replaces its chunks in place.
func (ix *Indexer) Index(ctx context.Context, rawURL string) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	videoID, err := youtube.ParseVideoID(rawURL)
	if err != nil {
		return Result{}, err
	}
	videoURL := youtube.WatchURL(videoID)

	raw, err := ix.source.FetchTranscript(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch transcript for %s: %w", videoID, err)
	}

	fineChunks, coarseChunks := segmenter.TwoTier(raw, ix.fine, ix.coarse)
	if len(fineChunks) == 0 {
		return Result{}, fmt.Errorf("transcript for %s produced no chunks", videoID)
	}
	logger.Info("transcript segmented",
		slog.String("video_id", videoID),
		slog.Int("segments", len(raw)),
		slog.Int("fine_chunks", len(fineChunks)),
		slog.Int("coarse_chunks", len(coarseChunks)))

	chunks := append(fineChunks, coarseChunks...)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed chunks for %s: %w", videoID, err)
	}

	records := make([]storage.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = storage.ChunkRecord{
			VideoID:    videoID,
			VideoURL:   videoURL,
			ChunkID:    c.ChunkID,
			Tier:       string(c.Tier),
			Start:      c.Start,
			End:        c.End,
			Text:       c.Text,
			SegmentIDs: c.SegmentIDs,
			Embedding:  vectors[i],
		}
	}

	db, err := storage.Open(storage.StorePath(ix.dataDir, videoID))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open chunk store for %s: %w", videoID, err)
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		return Result{}, err
	}

	stored, err := storage.NewChunkRepo(db).Upsert(ctx, records)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store chunks for %s: %w", videoID, err)
	}
	logger.Info("video indexed", slog.String("video_id", videoID), slog.Int("stored", stored))

	return Result{
		VideoID:      videoID,
		URL:          videoURL,
		Segments:     len(raw),
		FineChunks:   len(fineChunks),
		CoarseChunks: len(coarseChunks),
		Stored:       stored,
	}, nil
}
