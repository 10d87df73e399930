package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/orchestrator"
	"github.com/GavinStein1/pod2chat/internal/prompts"
	"github.com/GavinStein1/pod2chat/internal/storage"
)

type fakeGenerator struct {
	runs        []orchestrator.Request
	runOutputs  map[string]string
	runErr      error
	decisions   []string
	completeErr error
	completed   int
}

func (f *fakeGenerator) Run(_ context.Context, req orchestrator.Request) (string, error) {
	f.runs = append(f.runs, req)
	if f.runErr != nil {
		return "", f.runErr
	}
	return f.runOutputs[req.System], nil
}

func (f *fakeGenerator) Complete(_ context.Context, _, _ string) (llm.Completion, error) {
	if f.completeErr != nil {
		return llm.Completion{}, f.completeErr
	}
	i := f.completed
	if i >= len(f.decisions) {
		i = len(f.decisions) - 1
	}
	f.completed++
	return llm.Completion{Text: f.decisions[i], InputTokens: 10, OutputTokens: 5}, nil
}

func coarseChunk(id string, start float64, text string) storage.ChunkRecord {
	return storage.ChunkRecord{ChunkID: id, Tier: "coarse", Start: start, End: start + 60, Text: text}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantTopic string
	}{
		{"plain assign", `{"action":"assign","topic":"Pricing"}`, true, "Pricing"},
		{"plain create", `{"action":"create","topic":"Growth"}`, true, "Growth"},
		{"fenced", "```json\n{\"action\":\"create\",\"topic\":\"Growth\"}\n```", true, "Growth"},
		{"prose wrapped", `Sure! {"action":"assign","topic":"Pricing"} as requested.`, true, "Pricing"},
		{"not json", "I think this is about pricing", false, ""},
		{"unknown action", `{"action":"merge","topic":"Pricing"}`, false, ""},
		{"empty topic", `{"action":"create","topic":"  "}`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := parseDecision(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && d.Topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", d.Topic, tt.wantTopic)
			}
		})
	}
}

func TestExtractTopics(t *testing.T) {
	gen := &fakeGenerator{decisions: []string{
		`{"action":"create","topic":"Pricing"}`,
		`{"action":"assign","topic":"pricing"}`,
		`{"action":"create","topic":"Growth"}`,
		`no json here`,
	}}
	s := New(gen)

	coarse := []storage.ChunkRecord{
		coarseChunk("coarse-0000-00:00:00", 0, "pricing talk"),
		coarseChunk("coarse-0001-00:01:00", 60, "more pricing"),
		coarseChunk("coarse-0002-00:02:00", 120, "growth talk"),
		coarseChunk("coarse-0003-00:03:00", 180, "unclear talk"),
	}

	topics := s.extractTopics(context.Background(), coarse)
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3: %+v", len(topics), topics)
	}
	if topics[0].name != "Pricing" || len(topics[0].chunks) != 2 {
		t.Errorf("case-insensitive assign should land in Pricing: %+v", topics[0])
	}
	if topics[1].name != "Growth" || len(topics[1].chunks) != 1 {
		t.Errorf("topic 1 = %+v", topics[1])
	}
	if topics[2].name != fallbackTopic {
		t.Errorf("unparseable decision should fall back, got %q", topics[2].name)
	}
}

func TestExtractTopicsCompleteFailure(t *testing.T) {
	gen := &fakeGenerator{completeErr: errors.New("service down")}
	s := New(gen)

	topics := s.extractTopics(context.Background(), []storage.ChunkRecord{
		coarseChunk("coarse-0000-00:00:00", 0, "anything"),
	})
	if len(topics) != 1 || topics[0].name != fallbackTopic {
		t.Errorf("failed decisions should collect under the fallback topic: %+v", topics)
	}
}

func TestSummarize(t *testing.T) {
	gen := &fakeGenerator{
		decisions: []string{`{"action":"create","topic":"Pricing"}`},
		runOutputs: map[string]string{
			prompts.SynopsisSystem:   "An episode about pricing, starting at [00:00:30].",
			prompts.DeepDiveSystem:   "## Pricing\nDetailed discussion at [00:01:30].",
			prompts.FrameworksSystem: "### Pricing checklist\n1. Segment first.",
		},
	}
	s := New(gen)

	meta := Metadata{
		VideoID:  "abc123",
		Title:    "Pricing Masterclass",
		Channel:  "Some Channel",
		Duration: 3661,
		URL:      "https://www.youtube.com/watch?v=abc123",
	}
	coarse := []storage.ChunkRecord{
		coarseChunk("coarse-0000-00:00:00", 0, "talking about the pricing framework step by step"),
	}

	doc, err := s.Summarize(context.Background(), meta, coarse)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}

	for _, want := range []string{
		"# Pricing Masterclass",
		"**Channel:** Some Channel",
		"**Duration:** 01:01:01",
		"## Synopsis",
		"## Topic Map",
		"| Start | Topic |",
		"| Pricing |",
		"## Deep Dive",
		"## Frameworks & Methods",
		"Pricing checklist",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}

	// Timestamps become seek links; the URL already has a query string, so
	// the time parameter is appended with &.
	if !strings.Contains(doc, "[[00:00:30]](https://www.youtube.com/watch?v=abc123&t=30s)") {
		t.Errorf("synopsis timestamp not hyperlinked:\n%s", doc)
	}

	if len(gen.runs) != 3 {
		t.Fatalf("got %d generation runs, want 3", len(gen.runs))
	}
	if gen.runs[0].Merge != orchestrator.MergeHierarchical {
		t.Error("synopsis should merge hierarchically")
	}
	if gen.runs[1].Merge != orchestrator.MergeSelective {
		t.Error("deep dive should merge selectively")
	}
}

func TestSummarizeSkipsFrameworksWithoutActionableContent(t *testing.T) {
	gen := &fakeGenerator{
		decisions: []string{`{"action":"create","topic":"Chat"}`},
		runOutputs: map[string]string{
			prompts.SynopsisSystem: "synopsis",
			prompts.DeepDiveSystem: "deep dive",
		},
	}
	s := New(gen)

	coarse := []storage.ChunkRecord{
		coarseChunk("coarse-0000-00:00:00", 0, "just casual conversation about the weather"),
	}

	doc, err := s.Summarize(context.Background(), Metadata{Title: "Chat", URL: "https://example.com/v"}, coarse)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if strings.Contains(doc, "Frameworks & Methods") {
		t.Error("frameworks section should be omitted without actionable content")
	}
	if len(gen.runs) != 2 {
		t.Errorf("got %d generation runs, want 2", len(gen.runs))
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := New(&fakeGenerator{})
	if _, err := s.Summarize(context.Background(), Metadata{}, nil); err == nil {
		t.Error("expected error for empty chunk list")
	}
}

func TestFilterActionable(t *testing.T) {
	chunks := []storage.ChunkRecord{
		{ChunkID: "a", Text: "here is a framework for pricing"},
		{ChunkID: "b", Text: "tangent about lunch"},
		{ChunkID: "c", Text: "How to negotiate: first listen"},
		{ChunkID: "d", Text: "stepping stones are not steps"},
	}

	got := filterActionable(chunks)
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ChunkID
	}
	if strings.Join(ids, ",") != "a,c" {
		t.Errorf("actionable chunks = %v, want [a c]", ids)
	}
}

func TestLinkTimestamps(t *testing.T) {
	doc := "See [00:01:02] and [01:00:00]."

	linked := linkTimestamps(doc, "https://example.com/watch?v=x")
	if !strings.Contains(linked, "[[00:01:02]](https://example.com/watch?v=x&t=62s)") {
		t.Errorf("first timestamp not linked: %q", linked)
	}
	if !strings.Contains(linked, "[[01:00:00]](https://example.com/watch?v=x&t=3600s)") {
		t.Errorf("second timestamp not linked: %q", linked)
	}

	plain := linkTimestamps(doc, "https://example.com/video")
	if !strings.Contains(plain, "https://example.com/video?t=62s") {
		t.Errorf("bare URL should gain ? separator: %q", plain)
	}

	if got := linkTimestamps(doc, ""); got != doc {
		t.Errorf("empty URL should leave the document unchanged")
	}
}
