package segmenter

// Tier identifies one of the two chunk granularities.
type Tier string

const (
	// TierFine produces short chunks sized for precise retrieval.
	TierFine Tier = "fine"
	// TierCoarse produces long chunks sized for topical context.
	TierCoarse Tier = "coarse"
)

// RawSegment is one timestamped entry as supplied by the transcript source.
type RawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segment is a normalized transcript segment. Immutable once created.
type Segment struct {
	Start float64
	End   float64
	Text  string
	ID    int
}

// Chunk is a contiguous run of segments emitted by the segmenter.
// Start and End always span exactly the first and last member segment.
type Chunk struct {
	ChunkID    string
	Tier       Tier
	Start      float64
	End        float64
	Text       string
	SegmentIDs []int
	Embedding  []float32 // nil until embedded; nil means absent, never zero-filled
}

// TierConfig holds the per-tier segmentation parameters.
type TierConfig struct {
	TargetTokens int     `yaml:"target_tokens"`
	OverlapFrac  float64 `yaml:"overlap"`
	MinTokens    int     `yaml:"min_tokens"`
	LookbackFrac float64 `yaml:"lookback"`
}

// DefaultFineConfig returns the retrieval-tier defaults.
func DefaultFineConfig() TierConfig {
	return TierConfig{TargetTokens: 380, OverlapFrac: 0.20, MinTokens: 140, LookbackFrac: 0.25}
}

// DefaultCoarseConfig returns the context-tier defaults.
func DefaultCoarseConfig() TierConfig {
	return TierConfig{TargetTokens: 1200, OverlapFrac: 0.12, MinTokens: 240, LookbackFrac: 0.20}
}
