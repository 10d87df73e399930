package segmenter

import (
	"fmt"
	"regexp"
)

var tokenRe = regexp.MustCompile(`\w+|[^\w\s]`)

// EstimateTokens approximates a model token count by counting word and
// punctuation runs. It is deliberately not an exact tokenization; callers
// budget with a reserve on top of this estimate.
func EstimateTokens(text string) int {
	return len(tokenRe.FindAllStringIndex(text, -1))
}

// FormatTimestamp renders seconds as HH:MM:SS, clamping negatives to zero.
func FormatTimestamp(seconds float64) string {
	s := int(seconds)
	if s < 0 {
		s = 0
	}
	h := s / 3600
	m := (s % 3600) / 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s%60)
}
