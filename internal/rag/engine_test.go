package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/storage"
)

type fakeStore struct {
	vectorResults []storage.SearchResult
	vectorLimit   int
}

func (f *fakeStore) Upsert(context.Context, []storage.ChunkRecord) (int, error) { return 0, nil }

func (f *fakeStore) KeywordSearch(context.Context, string, string, int) ([]storage.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) KeywordScores(context.Context, string, []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (f *fakeStore) VectorSearch(_ context.Context, _ []float32, _ string, limit int) ([]storage.SearchResult, error) {
	f.vectorLimit = limit
	return f.vectorResults, nil
}

func (f *fakeStore) GetByChunkID(context.Context, string) (storage.ChunkRecord, error) {
	return storage.ChunkRecord{}, storage.ErrNotFound
}

func (f *fakeStore) ListByTier(context.Context, string) ([]storage.ChunkRecord, error) {
	return nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type fakeCompleter struct {
	prompts []string
	text    string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (llm.Completion, error) {
	f.prompts = append(f.prompts, user)
	return llm.Completion{Text: f.text, InputTokens: 100, OutputTokens: 30}, nil
}

func TestAsk(t *testing.T) {
	store := &fakeStore{vectorResults: []storage.SearchResult{
		{
			Chunk: storage.ChunkRecord{
				ChunkID: "fine-0003-00:02:05",
				Start:   125,
				End:     190,
				Text:    "pricing depends on willingness to pay",
			},
			Score: 0.9,
		},
	}}
	completer := &fakeCompleter{text: "It depends on willingness to pay."}
	engine := New(fakeEmbedder{}, completer)

	answer, err := engine.Ask(context.Background(), store, "how should I price?", 5)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Answer != "It depends on willingness to pay." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(answer.Sources))
	}
	src := answer.Sources[0]
	if src.ChunkID != "fine-0003-00:02:05" || src.Timestamp != "00:02:05" {
		t.Errorf("source = %+v", src)
	}
	if answer.InputTokens != 100 || answer.OutputTokens != 30 {
		t.Errorf("token usage = %d/%d, want 100/30", answer.InputTokens, answer.OutputTokens)
	}

	if len(completer.prompts) != 1 {
		t.Fatalf("completer called %d times, want 1", len(completer.prompts))
	}
	prompt := completer.prompts[0]
	if !strings.Contains(prompt, "[00:02:05-00:03:10] pricing depends on willingness to pay") {
		t.Errorf("prompt missing time-ranged excerpt: %q", prompt)
	}
	if !strings.Contains(prompt, "how should I price?") {
		t.Errorf("prompt missing question: %q", prompt)
	}
}

func TestAskNoResults(t *testing.T) {
	completer := &fakeCompleter{text: "should not be used"}
	engine := New(fakeEmbedder{}, completer)

	answer, err := engine.Ask(context.Background(), &fakeStore{}, "anything?", 5)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Answer != NoAnswerMessage {
		t.Errorf("answer = %q, want canned message", answer.Answer)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(answer.Sources))
	}
	if len(completer.prompts) != 0 {
		t.Error("completer should not be called when retrieval is empty")
	}
}

func TestAskDefaultMaxChunks(t *testing.T) {
	store := &fakeStore{}
	engine := New(fakeEmbedder{}, &fakeCompleter{})

	if _, err := engine.Ask(context.Background(), store, "q", 0); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	// The retrieval pool is larger than the answer set; the default answer
	// set size caps the results after fusion, but the vector pool request
	// stays at its fixed size.
	if store.vectorLimit != 30 {
		t.Errorf("vector pool size = %d, want 30", store.vectorLimit)
	}
}
