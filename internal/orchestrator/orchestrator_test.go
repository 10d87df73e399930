package orchestrator

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/GavinStein1/pod2chat/internal/llm"
)

type completionResult struct {
	comp llm.Completion
	err  error
}

type fakeCompleter struct {
	script  []completionResult
	calls   int
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (llm.Completion, error) {
	f.prompts = append(f.prompts, user)
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i].comp, f.script[i].err
}

type fakeSectionEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeSectionEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeSectionEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	return make([][]float32, len(texts)), nil
}

func newTestOrchestrator(completer *fakeCompleter, embedder llm.Embedder) (*Orchestrator, *fakeClock) {
	clock := newFakeClock()
	o := New(completer, embedder, NewRateBudgetWithClock(DefaultRateLimits(), clock), DefaultModelLimits())
	o.clock = clock
	return o, clock
}

func identityPrompt(body string) string {
	return "Summarize this:\n" + body
}

func TestRunSingleRequest(t *testing.T) {
	completer := &fakeCompleter{script: []completionResult{
		{comp: llm.Completion{Text: "a summary", InputTokens: 50, OutputTokens: 20}},
	}}
	o, _ := newTestOrchestrator(completer, &fakeSectionEmbedder{})

	out, err := o.Run(context.Background(), Request{
		System:      "be brief",
		BuildPrompt: identityPrompt,
		Units:       []Unit{{Text: "first part"}, {Text: "second part"}},
		Merge:       MergeCombine,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "a summary" {
		t.Errorf("output = %q", out)
	}
	if completer.calls != 1 {
		t.Errorf("calls = %d, want 1 when input fits", completer.calls)
	}
	if !strings.Contains(completer.prompts[0], "first part\n\nsecond part") {
		t.Errorf("units not joined into prompt: %q", completer.prompts[0])
	}
	if o.budget.entries[0].tokens != 70 {
		t.Errorf("recorded %d tokens, want 70", o.budget.entries[0].tokens)
	}
}

func TestRunContextExceededFallsBackToBatches(t *testing.T) {
	contextErr := &llm.ServiceError{Kind: llm.KindContextExceeded, StatusCode: http.StatusBadRequest}
	completer := &fakeCompleter{script: []completionResult{
		{err: contextErr},
		{comp: llm.Completion{Text: "batched summary", InputTokens: 40, OutputTokens: 10}},
	}}
	o, _ := newTestOrchestrator(completer, &fakeSectionEmbedder{})

	out, err := o.Run(context.Background(), Request{
		System:      "be brief",
		BuildPrompt: identityPrompt,
		Units:       []Unit{{Text: "only unit"}},
		Merge:       MergeCombine,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "batched summary" {
		t.Errorf("output = %q", out)
	}
	if completer.calls != 2 {
		t.Errorf("calls = %d, want 2 (rejected single plus one batch)", completer.calls)
	}
}

func TestRunFailedBatchYieldsPlaceholder(t *testing.T) {
	contextErr := &llm.ServiceError{Kind: llm.KindContextExceeded, StatusCode: http.StatusBadRequest}
	completer := &fakeCompleter{script: []completionResult{{err: contextErr}}}
	o, _ := newTestOrchestrator(completer, &fakeSectionEmbedder{})

	out, err := o.Run(context.Background(), Request{
		System:      "be brief",
		BuildPrompt: identityPrompt,
		Units:       []Unit{{Text: "doomed unit"}},
		Merge:       MergeCombine,
	})
	if err != nil {
		t.Fatalf("run should not fail when a batch fails: %v", err)
	}
	if out != "(Batch 1 processing failed)" {
		t.Errorf("output = %q, want placeholder", out)
	}
}

func TestRunFatalErrorAborts(t *testing.T) {
	completer := &fakeCompleter{script: []completionResult{
		{err: &llm.ServiceError{Kind: llm.KindFatal, Message: "auth failed"}},
	}}
	o, _ := newTestOrchestrator(completer, &fakeSectionEmbedder{})

	_, err := o.Run(context.Background(), Request{
		System:      "be brief",
		BuildPrompt: identityPrompt,
		Units:       []Unit{{Text: "anything"}},
	})
	if err == nil {
		t.Fatal("expected fatal error to abort the run")
	}
}

func TestCompleteRetriesAfterRateLimit(t *testing.T) {
	completer := &fakeCompleter{script: []completionResult{
		{err: &llm.ServiceError{Kind: llm.KindRateLimited, StatusCode: http.StatusTooManyRequests}},
		{comp: llm.Completion{Text: "after retry", InputTokens: 10, OutputTokens: 5}},
	}}
	o, clock := newTestOrchestrator(completer, &fakeSectionEmbedder{})

	comp, err := o.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if comp.Text != "after retry" {
		t.Errorf("text = %q", comp.Text)
	}
	if completer.calls != 2 {
		t.Errorf("calls = %d, want 2", completer.calls)
	}
	if clock.totalSlept() < completionBackoff {
		t.Errorf("expected backoff before retry, slept %v", clock.totalSlept())
	}
}

func TestPartition(t *testing.T) {
	word := strings.TrimSpace(strings.Repeat("word ", 100))
	units := []Unit{{Text: word}, {Text: word}, {Text: word}, {Text: word}}

	// Each unit costs 100 tokens plus perUnitOverhead, so a 250 budget
	// holds two units.
	batches := partition(units, 250)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	for i, b := range batches {
		if len(b) != 2 {
			t.Errorf("batch %d holds %d units, want 2", i, len(b))
		}
	}
}

func TestPartitionOversizedUnit(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("word ", 500))
	units := []Unit{{Text: "small"}, {Text: big}, {Text: "small"}}

	batches := partition(units, 100)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[1]) != 1 || batches[1][0] != big {
		t.Error("oversized unit should occupy its own batch, unsplit")
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	units := []Unit{{Text: "alpha"}, {Text: "beta"}, {Text: "gamma"}}
	batches := partition(units, 1_000_000)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if strings.Join(batches[0], " ") != "alpha beta gamma" {
		t.Errorf("order not preserved: %v", batches[0])
	}
}
