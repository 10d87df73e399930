package segmenter

import (
	"math"
	"regexp"
	"strings"
)

// Discourse and transition cues that mark a likely topic shift at the start
// of the next segment. Word-boundary matched, case-insensitive.
var discourseRe = regexp.MustCompile(`(?i)\b(anyway|so|now|next|okay|let's|let us|the key|important|to summarize|in summary|moving on|that said|on the other hand)\b`)

// isSentenceBoundary reports whether text ends in sentence-final punctuation.
func isSentenceBoundary(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.HasSuffix(text, "…")
}

// boundaryScore scores a potential cut between prev and next. Higher is a
// better boundary. The score is purely lexical and timing based: no speaker
// labels are assumed.
func boundaryScore(prev, next Segment) float64 {
	score := 0.0

	gap := next.Start - prev.End
	if gap < 0 {
		gap = 0
	}
	switch {
	case gap >= 4.0:
		score += 2.5
	case gap >= 2.0:
		score += 1.5
	case gap >= 1.0:
		score += 0.8
	}

	if discourseRe.MatchString(next.Text) {
		score += 1.2
	}

	if isSentenceBoundary(prev.Text) {
		score += 0.7
	}

	return score
}

// findBestCutIndex chooses the best boundary near hardEndIdx by scanning a
// lookback window backward from it. Returns the exclusive end index of the
// chunk. Ties go to the first-encountered maximum in the forward scan; a
// degenerate window falls back to hardEndIdx.
func findBestCutIndex(segs []Segment, startIdx, hardEndIdx int, lookbackFrac float64) int {
	if hardEndIdx <= startIdx+1 {
		return hardEndIdx
	}

	windowLen := hardEndIdx - startIdx
	lookback := int(math.Ceil(float64(windowLen) * lookbackFrac))
	if lookback < 1 {
		lookback = 1
	}
	scanFrom := hardEndIdx - lookback
	if scanFrom < startIdx+1 {
		scanFrom = startIdx + 1
	}

	bestIdx := hardEndIdx
	bestScore := math.Inf(-1)

	span := hardEndIdx - scanFrom
	if span < 1 {
		span = 1
	}
	for i := scanFrom; i < hardEndIdx; i++ {
		score := boundaryScore(segs[i-1], segs[i])

		// Among equal boundaries, prefer the cut closer to the target.
		closeness := float64(i-scanFrom) / float64(span)
		score += 0.2 * closeness

		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return bestIdx
}
