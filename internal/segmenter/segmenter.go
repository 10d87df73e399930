// Package segmenter converts a flat timestamped transcript into two
// independent sequences of overlapping chunks: a fine tier for retrieval and
// a coarse tier for context. Cut points are chosen by a boundary score over
// pause gaps, discourse cues and sentence-final punctuation rather than raw
// token counts. The package is pure: no I/O, no external calls.
package segmenter

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Normalize drops blank-text entries, sorts by (start, end) and assigns
// sequential ids. Malformed timestamps are the transcript source's problem;
// by the time raw segments reach here they are numeric.
func Normalize(raw []RawSegment) []Segment {
	segs := make([]Segment, 0, len(raw))
	for i, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{Start: r.Start, End: r.End, Text: text, ID: i})
	}
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Start != segs[j].Start {
			return segs[i].Start < segs[j].Start
		}
		return segs[i].End < segs[j].End
	})
	return segs
}

// BuildChunks walks the segment sequence for one tier and emits overlapping
// chunks. Every segment ends up in at least one chunk, no chunk is empty,
// and consecutive chunks overlap by cfg.OverlapFrac of the preceding chunk's
// segment span (except the final chunk).
func BuildChunks(segs []Segment, tier Tier, cfg TierConfig) []Chunk {
	var chunks []Chunk
	n := len(segs)
	if n == 0 {
		return chunks
	}

	segTokens := make([]int, n)
	for i, s := range segs {
		segTokens[i] = EstimateTokens(s.Text)
	}

	idx := 0
	chunkNum := 0

	for idx < n {
		tokSum := 0
		endIdx := idx
		for endIdx < n && tokSum < cfg.TargetTokens {
			tokSum += segTokens[endIdx]
			endIdx++
		}

		// Fold an undersized tail into this chunk instead of emitting a
		// tiny dangling final chunk.
		if endIdx < n {
			remaining := 0
			for i := endIdx; i < n; i++ {
				remaining += segTokens[i]
			}
			if remaining < cfg.MinTokens {
				endIdx = n
			}
		}

		cutIdx := findBestCutIndex(segs, idx, endIdx, cfg.LookbackFrac)
		if cutIdx <= idx {
			cutIdx = endIdx
		}

		members := segs[idx:cutIdx]
		if len(members) == 0 {
			break
		}

		texts := make([]string, len(members))
		ids := make([]int, len(members))
		for i, s := range members {
			texts[i] = s.Text
			ids[i] = s.ID
		}
		start := members[0].Start
		end := members[len(members)-1].End

		chunks = append(chunks, Chunk{
			ChunkID:    fmt.Sprintf("%s-%04d-%s", tier, chunkNum, FormatTimestamp(start)),
			Tier:       tier,
			Start:      start,
			End:        end,
			Text:       strings.Join(texts, " "),
			SegmentIDs: ids,
		})
		chunkNum++

		if cutIdx >= n {
			break
		}

		step := int(math.Round(float64(cutIdx-idx) * (1.0 - cfg.OverlapFrac)))
		if step < 1 {
			step = 1
		}
		idx += step
	}

	return chunks
}

// TwoTier normalizes raw segments and builds both tiers.
func TwoTier(raw []RawSegment, fine, coarse TierConfig) (fineChunks, coarseChunks []Chunk) {
	segs := Normalize(raw)
	return BuildChunks(segs, TierFine, fine), BuildChunks(segs, TierCoarse, coarse)
}
