// Package orchestrator plans token-budgeted generation: it decides whether a
// request fits the model's context window in one call, splits it into
// batches when it does not, paces every call through a sliding-window rate
// budget and merges batch outputs back into one document.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
)

const (
	// systemOverhead covers message framing the token estimate cannot see.
	systemOverhead = 100
	// perUnitOverhead is charged per unit when sizing batches, covering
	// separators and framing around each unit's text.
	perUnitOverhead = 20

	completionBackoff = time.Second
)

// ModelLimits sizes requests against the model's context window. Tunable
// per deployment via the tuning file.
type ModelLimits struct {
	// ContextTokens is the model's total context window.
	ContextTokens int `yaml:"context_tokens"`
	// ResponseReserve is held back from every request for the reply.
	ResponseReserve int `yaml:"response_reserve"`
}

func DefaultModelLimits() ModelLimits {
	return ModelLimits{ContextTokens: 400_000, ResponseReserve: 8_000}
}

// MergeStrategy selects how batch outputs are reassembled.
type MergeStrategy string

const (
	// MergeCombine concatenates batch outputs in order.
	MergeCombine MergeStrategy = "combine"
	// MergeHierarchical asks the model to synthesize batch outputs into one
	// document.
	MergeHierarchical MergeStrategy = "hierarchical"
	// MergeSelective drops near-duplicate sections across batch outputs.
	MergeSelective MergeStrategy = "selective"
)

// Unit is one indivisible piece of input. Batching never splits a unit.
type Unit struct {
	Text string
}

// Request describes one generation job.
type Request struct {
	System      string
	BuildPrompt func(body string) string
	Units       []Unit
	Merge       MergeStrategy
}

// Orchestrator runs generation jobs against a completion client under a
// shared rate budget.
type Orchestrator struct {
	completer llm.Completer
	embedder  llm.Embedder
	budget    *RateBudget
	limits    ModelLimits
	clock     Clock
}

func New(completer llm.Completer, embedder llm.Embedder, budget *RateBudget, limits ModelLimits) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		embedder:  embedder,
		budget:    budget,
		limits:    limits,
		clock:     realClock{},
	}
}

// Run executes the job. When the whole input fits in one request it is sent
// as one; otherwise the units are partitioned into batches, each batch is
// generated separately and the outputs are merged per req.Merge. A batch
// that fails after retry yields a placeholder instead of failing the job.
func (o *Orchestrator) Run(ctx context.Context, req Request) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	texts := make([]string, len(req.Units))
	for i, u := range req.Units {
		texts[i] = u.Text
	}
	fullPrompt := req.BuildPrompt(strings.Join(texts, "\n\n"))

	if o.fitsInSingleRequest(req.System, fullPrompt) {
		comp, err := o.Complete(ctx, req.System, fullPrompt)
		if err == nil {
			return comp.Text, nil
		}
		if !llm.IsContextExceeded(err) {
			return "", err
		}
		// The estimate was optimistic; fall back to batching.
		logger.Warn("single request rejected for size, splitting into batches")
	}

	batches := partition(req.Units, o.batchBudget(req.System, req.BuildPrompt))
	logger.Info("generating in batches", slog.Int("batches", len(batches)))

	parts := make([]string, len(batches))
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		prompt := req.BuildPrompt(strings.Join(batch, "\n\n"))
		comp, err := o.Complete(ctx, req.System, prompt)
		if err != nil {
			logger.Warn("batch failed",
				slog.Int("batch", i+1),
				slog.String("error", err.Error()))
			parts[i] = fmt.Sprintf("(Batch %d processing failed)", i+1)
			continue
		}
		parts[i] = comp.Text
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return o.merge(ctx, parts, req.Merge)
}

// Complete issues one paced completion. A rate-limited call waits briefly
// and retries once.
func (o *Orchestrator) Complete(ctx context.Context, system, user string) (llm.Completion, error) {
	planned := estimateRequest(system, user) + o.limits.ResponseReserve

	if err := o.budget.Wait(ctx, planned); err != nil {
		return llm.Completion{}, err
	}

	comp, err := o.completer.Complete(ctx, system, user)
	if llm.IsRateLimited(err) {
		o.clock.Sleep(ctx, completionBackoff)
		if werr := o.budget.Wait(ctx, planned); werr != nil {
			return llm.Completion{}, werr
		}
		comp, err = o.completer.Complete(ctx, system, user)
	}
	if err != nil {
		return llm.Completion{}, err
	}

	o.budget.Record(comp.InputTokens + comp.OutputTokens)
	return comp, nil
}

func estimateRequest(system, user string) int {
	return segmenter.EstimateTokens(system) + segmenter.EstimateTokens(user) + systemOverhead
}

func (o *Orchestrator) fitsInSingleRequest(system, prompt string) bool {
	return estimateRequest(system, prompt)+o.limits.ResponseReserve <= o.limits.ContextTokens
}

// batchBudget is the token room left for unit text once the empty prompt
// scaffolding, system message and response reserve are paid for.
func (o *Orchestrator) batchBudget(system string, buildPrompt func(string) string) int {
	base := estimateRequest(system, buildPrompt(""))
	return o.limits.ContextTokens - base - o.limits.ResponseReserve
}

// partition greedily packs units into batches of at most budget tokens,
// preserving order. A unit larger than the budget still gets its own batch;
// the service's own limit decides its fate.
func partition(units []Unit, budget int) [][]string {
	var batches [][]string
	var current []string
	used := 0

	for _, u := range units {
		cost := segmenter.EstimateTokens(u.Text) + perUnitOverhead
		if len(current) > 0 && used+cost > budget {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, u.Text)
		used += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
