package bandit

import "hash/fnv"

// FeatureDims is the fixed dimensionality of a hashed ContextFeatures
// vector: the last two slots are reserved for the skill's user-history
// frequency and recency, the rest are feature-hashed buckets for
// detected project types, recently modified file extensions, and
// present tool binaries — the same hashed-bucket trick
// internal/index/vector's HashEmbedder uses for text, applied here to
// a ContextSnapshot's discrete signals instead of tokens.
const FeatureDims = 34

const historyDims = 2

// ContextFeatures is the fixed-dimension feature vector spec.md §4.9
// derives from a ContextSnapshot: detected project types with
// confidences, recently modified file extensions, present tool
// binaries, and the skill's user-history frequency/recency.
type ContextFeatures struct {
	ProjectTypes     map[string]float64
	RecentExtensions []string
	ToolBinaries     []string
	HistoryFrequency float64
	HistoryRecency   float64
}

// Vector renders the features into a fixed-length, deterministic
// numeric vector via feature hashing, suitable for a linear bandit's
// dot product.
func (f ContextFeatures) Vector() []float64 {
	buckets := FeatureDims - historyDims
	vec := make([]float64, FeatureDims)

	for projectType, confidence := range f.ProjectTypes {
		vec[hashBucket("project:"+projectType, buckets)] += confidence
	}
	for _, ext := range f.RecentExtensions {
		vec[hashBucket("ext:"+ext, buckets)] += 1
	}
	for _, tool := range f.ToolBinaries {
		vec[hashBucket("tool:"+tool, buckets)] += 1
	}

	vec[buckets] = f.HistoryFrequency
	vec[buckets+1] = f.HistoryRecency
	return vec
}

func hashBucket(s string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(buckets))
}
