package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/GavinStein1/pod2chat/internal/segmenter"
	"github.com/GavinStein1/pod2chat/internal/storage"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

type fakeSource struct {
	segments []segmenter.RawSegment
	err      error
}

func (f *fakeSource) FetchTranscript(context.Context, string) ([]segmenter.RawSegment, error) {
	return f.segments, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
	}
	return vecs, nil
}

func transcript(n int) []segmenter.RawSegment {
	segs := make([]segmenter.RawSegment, n)
	for i := range segs {
		segs[i] = segmenter.RawSegment{
			Start: float64(i * 4),
			End:   float64(i*4 + 3),
			Text:  fmt.Sprintf("segment %d talks about pricing and strategy in detail", i),
		}
	}
	return segs
}

func testConfigs() (fine, coarse segmenter.TierConfig) {
	fine = segmenter.TierConfig{TargetTokens: 40, OverlapFrac: 0.2, MinTokens: 10, LookbackFrac: 0.25}
	coarse = segmenter.TierConfig{TargetTokens: 160, OverlapFrac: 0.1, MinTokens: 40, LookbackFrac: 0.2}
	return fine, coarse
}

func TestIndex(t *testing.T) {
	dataDir := t.TempDir()
	fine, coarse := testConfigs()
	ix := New(&fakeSource{segments: transcript(60)}, fakeEmbedder{}, dataDir, fine, coarse)

	result, err := ix.Index(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("index failed: %v", err)
	}

	if result.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("video id = %q", result.VideoID)
	}
	if result.Segments != 60 {
		t.Errorf("segments = %d, want 60", result.Segments)
	}
	if result.FineChunks == 0 || result.CoarseChunks == 0 {
		t.Errorf("expected chunks in both tiers: %+v", result)
	}
	if result.Stored != result.FineChunks+result.CoarseChunks {
		t.Errorf("stored = %d, want %d", result.Stored, result.FineChunks+result.CoarseChunks)
	}

	db, err := storage.Open(storage.StorePath(dataDir, "dQw4w9WgXcQ"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()
	repo := storage.NewChunkRepo(db)

	fineStored, err := repo.ListByTier(context.Background(), "fine")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(fineStored) != result.FineChunks {
		t.Errorf("stored %d fine chunks, result says %d", len(fineStored), result.FineChunks)
	}
	for _, c := range fineStored {
		if c.Embedding == nil {
			t.Errorf("chunk %s stored without embedding", c.ChunkID)
		}
		if c.VideoURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
			t.Errorf("chunk %s has url %q", c.ChunkID, c.VideoURL)
		}
	}
}

func TestIndexReplacesExistingChunks(t *testing.T) {
	dataDir := t.TempDir()
	fine, coarse := testConfigs()
	ix := New(&fakeSource{segments: transcript(60)}, fakeEmbedder{}, dataDir, fine, coarse)

	first, err := ix.Index(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("first index failed: %v", err)
	}
	second, err := ix.Index(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("second index failed: %v", err)
	}
	if first.Stored != second.Stored {
		t.Errorf("re-index stored %d chunks, first run stored %d", second.Stored, first.Stored)
	}

	db, err := storage.Open(storage.StorePath(dataDir, "dQw4w9WgXcQ"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	all, err := storage.NewChunkRepo(db).ListByTier(context.Background(), "fine")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != first.FineChunks {
		t.Errorf("re-indexing duplicated chunks: %d stored, want %d", len(all), first.FineChunks)
	}
}

func TestIndexNoTranscript(t *testing.T) {
	dataDir := t.TempDir()
	fine, coarse := testConfigs()
	ix := New(&fakeSource{err: youtube.ErrNoTranscript}, fakeEmbedder{}, dataDir, fine, coarse)

	_, err := ix.Index(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, youtube.ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}

	// No store directory should exist for a video that could not be
	// fetched.
	if _, statErr := os.Stat(filepath.Join(dataDir, "dQw4w9WgXcQ")); !os.IsNotExist(statErr) {
		t.Error("store directory created despite transcript failure")
	}
}

func TestIndexInvalidURL(t *testing.T) {
	fine, coarse := testConfigs()
	ix := New(&fakeSource{}, fakeEmbedder{}, t.TempDir(), fine, coarse)

	_, err := ix.Index(context.Background(), "https://example.com/nothing")
	if !errors.Is(err, youtube.ErrInvalidVideoRef) {
		t.Errorf("expected ErrInvalidVideoRef, got %v", err)
	}
}
