package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/lexical"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/vector"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
)

// minCandidates is the floor on how many candidates each sub-search
// returns before fusion, per spec.md §4.4 step 1 ("k = max(limit, 50)").
const minCandidates = 50

// DefaultBM25Weight and DefaultSemanticWeight are the fusion formula's
// default weights, per spec.md §4.4 step 2.
const (
	DefaultBM25Weight     = 0.5
	DefaultSemanticWeight = 0.5
)

// HybridResult is one fused search hit, per spec.md §4.4.
type HybridResult struct {
	SkillID       string
	Score         float64
	BM25Rank      *int
	SemanticRank  *int
	BM25Score     *float64
	SemanticScore *float64
}

// LexicalSearcher is the narrow contract Engine needs from the
// lexical index, satisfied by *lexical.Index.
type LexicalSearcher interface {
	Search(query string, limit int) []lexical.Result
}

// VectorSearcher is the narrow contract Engine needs from a vector
// index. Both *vector.FlatIndex and *vector.ANNIndex are adapted to
// this shape (see FlatIndexAdapter) since FlatIndex.Search takes no
// context while ANNIndex.Search does — the interface standardizes on
// the context-carrying shape so callers can cancel a slow ANN query.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, limit int) ([]vector.Result, error)
}

// FlatIndexAdapter adapts *vector.FlatIndex to VectorSearcher by
// ignoring the context, since brute-force cosine search over an
// in-memory slice has no cancellable I/O to respect.
type FlatIndexAdapter struct {
	Index *vector.FlatIndex
}

// Search implements VectorSearcher.
func (a FlatIndexAdapter) Search(_ context.Context, query []float32, limit int) ([]vector.Result, error) {
	return a.Index.Search(query, limit)
}

// Engine runs hybrid lexical+vector search, fusing ranked lists per
// spec.md §4.4 with an LRU cache layer in front of both the fused
// results and the query embedding.
type Engine struct {
	lexical  LexicalSearcher
	vec      VectorSearcher
	embedder vector.Embedder
	cache    *CacheLayer

	bm25Weight     float64
	semanticWeight float64

	log *logging.Logger
}

// NewEngine builds a hybrid search engine with the default fusion
// weights and a fresh default-sized cache layer.
func NewEngine(lex LexicalSearcher, vec VectorSearcher, embedder vector.Embedder) *Engine {
	return &Engine{
		lexical:        lex,
		vec:            vec,
		embedder:       embedder,
		cache:          NewCacheLayer(),
		bm25Weight:     DefaultBM25Weight,
		semanticWeight: DefaultSemanticWeight,
		log:            logging.Get(logging.CategorySearch),
	}
}

// WithWeights overrides the engine's fusion weights.
func (e *Engine) WithWeights(bm25, semantic float64) *Engine {
	e.bm25Weight = bm25
	e.semanticWeight = semantic
	return e
}

// WithCache replaces the engine's cache layer, for callers that want
// custom sizes.
func (e *Engine) WithCache(cache *CacheLayer) *Engine {
	e.cache = cache
	return e
}

// Cache returns the engine's cache layer, for stats inspection.
func (e *Engine) Cache() *CacheLayer { return e.cache }

// Search runs the hybrid search described in spec.md §4.4: parallel
// lexical and vector searches over max(limit, minCandidates)
// candidates each, fused by weighted normalized score, truncated to
// limit.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]HybridResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if cached, ok := e.cache.GetQuery(query, limit); ok {
		return cached, nil
	}

	candidateK := limit
	if candidateK < minCandidates {
		candidateK = minCandidates
	}

	var lexResults []lexical.Result
	var vecResults []vector.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResults = e.lexical.Search(query, candidateK)
		return nil
	})
	g.Go(func() error {
		if e.vec == nil || e.embedder == nil {
			return nil
		}
		queryVec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			return err
		}
		results, err := e.vec.Search(gctx, queryVec, candidateK)
		if err != nil {
			return err
		}
		vecResults = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(lexResults, vecResults, e.bm25Weight, e.semanticWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	e.cache.PutQuery(query, limit, fused)
	return fused, nil
}

// candidate accumulates one skill's lexical and/or semantic signal
// ahead of fusion.
type candidate struct {
	skillID       string
	bm25Score     *float64
	bm25Rank      *int
	semanticScore *float64
	semanticRank  *int
}

// fuse implements spec.md §4.4 steps 2-4: min-max normalize each
// ranked list independently, combine by weighted sum (missing
// component treated as 0), sort descending by fused score, ties
// broken by lower combined rank then by skill id.
func fuse(lex []lexical.Result, vec []vector.Result, bm25Weight, semanticWeight float64) []HybridResult {
	candidates := make(map[string]*candidate)
	order := func(id string) *candidate {
		c, ok := candidates[id]
		if !ok {
			c = &candidate{skillID: id}
			candidates[id] = c
		}
		return c
	}

	bm25Min, bm25Max := minMaxLexical(lex)
	for i, r := range lex {
		c := order(r.SkillID)
		score := r.Score
		c.bm25Score = &score
		rank := i + 1
		c.bm25Rank = &rank
	}

	semMin, semMax := minMaxVector(vec)
	for i, r := range vec {
		c := order(r.SkillID)
		cosine := r.Cosine
		c.semanticScore = &cosine
		rank := i + 1
		c.semanticRank = &rank
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]HybridResult, 0, len(ids))
	for _, id := range ids {
		c := candidates[id]

		normBM25 := 0.0
		if c.bm25Score != nil {
			normBM25 = minMaxNormalize(*c.bm25Score, bm25Min, bm25Max)
		}
		normSem := 0.0
		if c.semanticScore != nil {
			normSem = minMaxNormalize(*c.semanticScore, semMin, semMax)
		}

		out = append(out, HybridResult{
			SkillID:       id,
			Score:         bm25Weight*normBM25 + semanticWeight*normSem,
			BM25Rank:      c.bm25Rank,
			SemanticRank:  c.semanticRank,
			BM25Score:     c.bm25Score,
			SemanticScore: c.semanticScore,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := combinedRank(a, len(lex), len(vec)), combinedRank(b, len(lex), len(vec))
		if ra != rb {
			return ra < rb
		}
		return a.SkillID < b.SkillID
	})

	return out
}

// combinedRank sums the two ranked-list positions a result appears at,
// treating an absent list as contributing its candidate-pool size plus
// one (i.e. worse than any ranked position), for tie-breaking.
func combinedRank(r HybridResult, bm25Pool, semanticPool int) int {
	total := 0
	if r.BM25Rank != nil {
		total += *r.BM25Rank
	} else {
		total += bm25Pool + 1
	}
	if r.SemanticRank != nil {
		total += *r.SemanticRank
	} else {
		total += semanticPool + 1
	}
	return total
}

func minMaxLexical(results []lexical.Result) (min, max float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

func minMaxVector(results []vector.Result) (min, max float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Cosine, results[0].Cosine
	for _, r := range results[1:] {
		if r.Cosine < min {
			min = r.Cosine
		}
		if r.Cosine > max {
			max = r.Cosine
		}
	}
	return min, max
}

// minMaxNormalize maps value into [0, 1] given the pool's min and max.
// A degenerate pool (min == max) normalizes every value to 1, since
// every candidate is equally the best available signal.
func minMaxNormalize(value, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (value - min) / (max - min)
}
