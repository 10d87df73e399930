package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
)

// duplicateThreshold is the cosine similarity two sections must strictly
// exceed to be treated as saying the same thing.
const duplicateThreshold = 0.85

const mergeSystem = "You are an editor who merges partial documents into one coherent whole."

func hierarchicalMergePrompt(parts []string) string {
	var b strings.Builder
	b.WriteString("Merge the following partial documents into a single coherent document. ")
	b.WriteString("Preserve every distinct point and all timestamps, remove repetition, and keep the original structure and markdown formatting.\n")
	for i, p := range parts {
		fmt.Fprintf(&b, "\n--- Part %d ---\n%s\n", i+1, p)
	}
	return b.String()
}

// merge reassembles batch outputs. Hierarchical and selective merges fall
// back to plain combination when their extra model calls fail, so a merge
// never loses batch output.
func (o *Orchestrator) merge(ctx context.Context, parts []string, strategy MergeStrategy) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	switch strategy {
	case MergeHierarchical:
		prompt := hierarchicalMergePrompt(parts)
		if !o.fitsInSingleRequest(mergeSystem, prompt) {
			logger.Warn("merged parts exceed context window, combining instead")
			return combine(parts), nil
		}
		comp, err := o.Complete(ctx, mergeSystem, prompt)
		if err != nil {
			logger.Warn("hierarchical merge failed, combining instead",
				slog.String("error", err.Error()))
			return combine(parts), nil
		}
		return comp.Text, nil

	case MergeSelective:
		merged, err := o.selectiveMerge(ctx, parts)
		if err != nil {
			logger.Warn("selective merge failed, combining instead",
				slog.String("error", err.Error()))
			return combine(parts), nil
		}
		return merged, nil

	default:
		return combine(parts), nil
	}
}

func combine(parts []string) string {
	return strings.Join(parts, "\n\n")
}

// selectiveMerge splits every part into markdown sections, embeds them and
// drops sections that restate an earlier one. Sections whose embedding is
// unavailable are always kept.
func (o *Orchestrator) selectiveMerge(ctx context.Context, parts []string) (string, error) {
	var sections []string
	for _, p := range parts {
		sections = append(sections, splitSections(p)...)
	}
	if len(sections) <= 1 {
		return combine(parts), nil
	}

	vectors, err := o.embedder.EmbedBatch(ctx, sections)
	if err != nil {
		return "", err
	}
	if len(vectors) != len(sections) {
		return "", fmt.Errorf("embedding count mismatch: %d vectors for %d sections", len(vectors), len(sections))
	}

	var kept []string
	var keptVecs [][]float32
	for i, section := range sections {
		vec := vectors[i]
		if vec != nil && isDuplicate(vec, keptVecs) {
			continue
		}
		kept = append(kept, section)
		keptVecs = append(keptVecs, vec)
	}

	return strings.Join(kept, "\n\n"), nil
}

func isDuplicate(vec []float32, keptVecs [][]float32) bool {
	for _, kv := range keptVecs {
		if kv == nil {
			continue
		}
		if cosine(vec, kv) > duplicateThreshold {
			return true
		}
	}
	return false
}

// splitSections breaks markdown into sections at top-level headings. Text
// before the first heading is its own section. Documents without headings
// fall back to blank-line separation.
func splitSections(markdown string) []string {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var offsets []int
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		h, ok := child.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		start := h.Lines().At(0).Start
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		offsets = append(offsets, start)
	}

	if len(offsets) == 0 {
		var sections []string
		for _, block := range strings.Split(markdown, "\n\n") {
			if block = strings.TrimSpace(block); block != "" {
				sections = append(sections, block)
			}
		}
		return sections
	}

	var sections []string
	appendSection := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	appendSection(markdown[:offsets[0]])
	for i, start := range offsets {
		end := len(markdown)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		appendSection(markdown[start:end])
	}
	return sections
}

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
