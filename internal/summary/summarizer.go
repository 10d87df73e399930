// Package summary generates a structured markdown summary of an indexed
// source in several passes: a metadata header, a streaming topic
// extraction, a synopsis, a topic map, per-topic deep dives and an optional
// frameworks section. All model calls go through the generation
// orchestrator so they share one rate budget.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/orchestrator"
	"github.com/GavinStein1/pod2chat/internal/prompts"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
	"github.com/GavinStein1/pod2chat/internal/storage"
)

// fallbackTopic absorbs passages whose topic decision could not be parsed.
const fallbackTopic = "Main Discussion"

var (
	frameworkRe = regexp.MustCompile(`(?i)\b(step|framework|checklist|process|method|how to|first|second|third)\b`)
	timestampRe = regexp.MustCompile(`\[(\d{2}):(\d{2}):(\d{2})\]`)
)

// Metadata describes the source being summarized.
type Metadata struct {
	VideoID  string
	Title    string
	Channel  string
	Duration float64
	URL      string
}

// Generator is the orchestrator surface the summarizer uses.
type Generator interface {
	Run(ctx context.Context, req orchestrator.Request) (string, error)
	Complete(ctx context.Context, system, user string) (llm.Completion, error)
}

// Summarizer produces the full summary document.
type Summarizer struct {
	gen Generator
}

func New(gen Generator) *Summarizer {
	return &Summarizer{gen: gen}
}

type topic struct {
	name   string
	chunks []storage.ChunkRecord
}

// Summarize builds the complete markdown document from coarse-tier chunks.
// Every [HH:MM:SS] timestamp in the finished document becomes a hyperlink
// into the source.
func (s *Summarizer) Summarize(ctx context.Context, meta Metadata, coarse []storage.ChunkRecord) (string, error) {
	if len(coarse) == 0 {
		return "", fmt.Errorf("no coarse chunks to summarize")
	}
	logger := contextutil.LoggerFromContext(ctx)

	topics := s.extractTopics(ctx, coarse)
	logger.Info("topics extracted", slog.Int("topics", len(topics)))

	synopsis, err := s.gen.Run(ctx, orchestrator.Request{
		System:      prompts.SynopsisSystem,
		BuildPrompt: prompts.SynopsisUser,
		Units:       chunkUnits(coarse),
		Merge:       orchestrator.MergeHierarchical,
	})
	if err != nil {
		return "", fmt.Errorf("synopsis generation failed: %w", err)
	}

	deepDive, err := s.gen.Run(ctx, orchestrator.Request{
		System:      prompts.DeepDiveSystem,
		BuildPrompt: prompts.DeepDiveUser,
		Units:       topicUnits(topics),
		Merge:       orchestrator.MergeSelective,
	})
	if err != nil {
		return "", fmt.Errorf("deep dive generation failed: %w", err)
	}

	frameworks := ""
	if actionable := filterActionable(coarse); len(actionable) > 0 {
		frameworks, err = s.gen.Run(ctx, orchestrator.Request{
			System:      prompts.FrameworksSystem,
			BuildPrompt: prompts.FrameworksUser,
			Units:       chunkUnits(actionable),
			Merge:       orchestrator.MergeHierarchical,
		})
		if err != nil {
			logger.Warn("frameworks generation failed, omitting section",
				slog.String("error", err.Error()))
			frameworks = ""
		}
	}

	var b strings.Builder
	b.WriteString(buildHeader(meta))
	b.WriteString("\n## Synopsis\n\n")
	b.WriteString(strings.TrimSpace(synopsis))
	b.WriteString("\n\n## Topic Map\n\n")
	b.WriteString(buildTopicMap(topics))
	b.WriteString("\n## Deep Dive\n\n")
	b.WriteString(strings.TrimSpace(deepDive))
	if frameworks != "" {
		b.WriteString("\n\n## Frameworks & Methods\n\n")
		b.WriteString(strings.TrimSpace(frameworks))
	}
	b.WriteString("\n")

	return linkTimestamps(b.String(), meta.URL), nil
}

// extractTopics walks the coarse chunks in order, asking the model for each
// one whether it continues an existing topic or opens a new one. Chunks
// whose decision cannot be obtained or parsed land in the fallback topic.
func (s *Summarizer) extractTopics(ctx context.Context, coarse []storage.ChunkRecord) []topic {
	logger := contextutil.LoggerFromContext(ctx)

	var topics []topic
	index := make(map[string]int)

	assign := func(name string, c storage.ChunkRecord) {
		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			topics[i].chunks = append(topics[i].chunks, c)
			return
		}
		index[key] = len(topics)
		topics = append(topics, topic{name: name, chunks: []storage.ChunkRecord{c}})
	}

	for _, c := range coarse {
		names := make([]string, len(topics))
		for i, t := range topics {
			names[i] = t.name
		}

		name := fallbackTopic
		comp, err := s.gen.Complete(ctx, prompts.TopicDecisionSystem,
			prompts.TopicDecisionUser(names, chunkText(c)))
		if err != nil {
			logger.Warn("topic decision failed, using fallback topic",
				slog.String("chunk_id", c.ChunkID),
				slog.String("error", err.Error()))
		} else if d, ok := parseDecision(comp.Text); ok {
			name = d.Topic
		} else {
			logger.Warn("unparseable topic decision, using fallback topic",
				slog.String("chunk_id", c.ChunkID))
		}

		assign(name, c)
	}

	return topics
}

type decision struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// parseDecision pulls the JSON decision out of a model reply, tolerating
// code fences and surrounding prose.
func parseDecision(raw string) (decision, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return decision{}, false
	}

	var d decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
		return decision{}, false
	}
	d.Topic = strings.TrimSpace(d.Topic)
	if d.Topic == "" || (d.Action != "assign" && d.Action != "create") {
		return decision{}, false
	}
	return d, true
}

func chunkText(c storage.ChunkRecord) string {
	return fmt.Sprintf("[%s] %s", segmenter.FormatTimestamp(c.Start), c.Text)
}

func chunkUnits(chunks []storage.ChunkRecord) []orchestrator.Unit {
	units := make([]orchestrator.Unit, len(chunks))
	for i, c := range chunks {
		units[i] = orchestrator.Unit{Text: chunkText(c)}
	}
	return units
}

// topicUnits renders one unit per topic so batching never splits a topic's
// material across requests.
func topicUnits(topics []topic) []orchestrator.Unit {
	units := make([]orchestrator.Unit, len(topics))
	for i, t := range topics {
		var b strings.Builder
		b.WriteString("Topic: " + t.name + "\n")
		for _, c := range t.chunks {
			b.WriteString(chunkText(c))
			b.WriteString("\n")
		}
		units[i] = orchestrator.Unit{Text: strings.TrimSpace(b.String())}
	}
	return units
}

func filterActionable(chunks []storage.ChunkRecord) []storage.ChunkRecord {
	var out []storage.ChunkRecord
	for _, c := range chunks {
		if frameworkRe.MatchString(c.Text) {
			out = append(out, c)
		}
	}
	return out
}

func buildHeader(meta Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	fmt.Fprintf(&b, "**Channel:** %s\n", meta.Channel)
	if meta.Duration > 0 {
		fmt.Fprintf(&b, "**Duration:** %s\n", segmenter.FormatTimestamp(meta.Duration))
	}
	fmt.Fprintf(&b, "**Source:** %s\n", meta.URL)
	return b.String()
}

func buildTopicMap(topics []topic) string {
	var b strings.Builder
	b.WriteString("| Start | Topic |\n| --- | --- |\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "| [%s] | %s |\n", segmenter.FormatTimestamp(t.chunks[0].Start), t.name)
	}
	return b.String()
}

// linkTimestamps rewrites every [HH:MM:SS] in the document as a markdown
// link that seeks to that moment in the source.
func linkTimestamps(doc, url string) string {
	if url == "" {
		return doc
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}

	return timestampRe.ReplaceAllStringFunc(doc, func(match string) string {
		parts := timestampRe.FindStringSubmatch(match)
		h, _ := strconv.Atoi(parts[1])
		m, _ := strconv.Atoi(parts[2])
		s, _ := strconv.Atoi(parts[3])
		total := h*3600 + m*60 + s
		return fmt.Sprintf("[%s](%s%st=%ds)", match, url, sep, total)
	})
}
