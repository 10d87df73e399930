// Package rag answers questions about an indexed video by retrieving the
// most relevant transcript chunks and asking the model to answer from them.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/prompts"
	"github.com/GavinStein1/pod2chat/internal/retrieval"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
	"github.com/GavinStein1/pod2chat/internal/storage"
)

// NoAnswerMessage is returned verbatim when retrieval finds nothing usable.
const NoAnswerMessage = "I couldn't find relevant information in the transcript to answer your question."

const defaultMaxChunks = 10

// Completer issues one paced completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (llm.Completion, error)
}

// Source cites one chunk that informed an answer.
type Source struct {
	ChunkID   string  `json:"chunk_id"`
	Timestamp string  `json:"timestamp"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Score     float64 `json:"score"`
}

// Answer is the response to one question.
type Answer struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
}

// Engine answers questions against a video's chunk store.
type Engine struct {
	embedder  llm.Embedder
	completer Completer
}

func New(embedder llm.Embedder, completer Completer) *Engine {
	return &Engine{embedder: embedder, completer: completer}
}

// Ask retrieves up to maxChunks relevant chunks (10 when maxChunks is zero)
// and generates an answer grounded in them.
func (e *Engine) Ask(ctx context.Context, store storage.ChunkStore, question string, maxChunks int) (Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}

	results, err := retrieval.NewEngine(store, e.embedder).Retrieve(ctx, question, maxChunks)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieval failed: %w", err)
	}
	if len(results) == 0 {
		logger.Info("no relevant chunks for question")
		return Answer{Answer: NoAnswerMessage}, nil
	}

	comp, err := e.completer.Complete(ctx, prompts.AskSystem,
		prompts.AskUser(formatContext(results), question))
	if err != nil {
		return Answer{}, fmt.Errorf("answer generation failed: %w", err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ChunkID:   r.Chunk.ChunkID,
			Timestamp: segmenter.FormatTimestamp(r.Chunk.Start),
			Start:     r.Chunk.Start,
			End:       r.Chunk.End,
			Score:     r.Combined,
		}
	}

	logger.Info("question answered",
		slog.Int("chunks_used", len(results)),
		slog.Int("output_tokens", comp.OutputTokens))
	return Answer{
		Answer:       comp.Text,
		Sources:      sources,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
	}, nil
}

// formatContext renders retrieved chunks as time-ranged excerpts.
func formatContext(results []retrieval.ScoredChunk) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%s-%s] %s",
			segmenter.FormatTimestamp(r.Chunk.Start),
			segmenter.FormatTimestamp(r.Chunk.End),
			r.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n")
}
