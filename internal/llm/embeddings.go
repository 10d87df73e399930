package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
)

const (
	// maxBatchSize caps how many texts go to the embeddings endpoint in one
	// request.
	maxBatchSize = 100
	// batchPause is the idle time between consecutive batch requests.
	batchPause = 100 * time.Millisecond
	// rateLimitBackoff is how long to wait before retrying a rate-limited
	// batch. A batch is retried at most once.
	rateLimitBackoff = time.Second
)

// Embedder is the embedding surface the indexer and retrieval engine depend
// on. EmbedBatch returns one vector per input text; a nil vector marks a
// text whose embedding failed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClient calls the embeddings endpoint of an OpenAI-compatible
// service.
type EmbeddingClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	pause      func(context.Context, time.Duration)
}

func NewEmbeddingClient(baseURL, apiKey, model string) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pause: sleepCtx,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || vecs[0] == nil {
		return nil, &ServiceError{Kind: KindMalformed, Message: "embedding response missing vector"}
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of at most maxBatchSize, pausing
// briefly between batches. A rate-limited batch is retried once after a
// short wait; a batch that still fails contributes nil vectors rather than
// aborting the whole run.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if start > 0 {
			c.pause(ctx, batchPause)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batchVecs, err := c.embedRequest(ctx, batch)
		if IsRateLimited(err) {
			logger.Warn("embedding batch rate limited, retrying once",
				slog.Int("batch_start", start))
			c.pause(ctx, rateLimitBackoff)
			batchVecs, err = c.embedRequest(ctx, batch)
		}
		if err != nil {
			logger.Warn("embedding batch failed, storing without vectors",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
			batchVecs = make([][]float32, len(batch))
		}

		vectors = append(vectors, batchVecs...)
	}

	return vectors, nil
}

func (c *EmbeddingClient) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Kind: KindFatal, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ServiceError{
			Kind:    KindMalformed,
			Message: fmt.Sprintf("failed to decode embedding response: %v", err),
		}
	}
	if len(decoded.Data) != len(texts) {
		return nil, &ServiceError{
			Kind:    KindMalformed,
			Message: fmt.Sprintf("embedding response has %d vectors for %d inputs", len(decoded.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &ServiceError{Kind: KindMalformed, Message: "embedding response index out of range"}
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
