// Package lexical implements the BM25 full-text index over skill
// documents (name + description + body + tags), spec.md §4.2.
//
// No example repo in the retrieved pack ships a BM25 implementation,
// so this package is intentionally built on the standard library only
// (regexp/unicode for tokenization, plain arithmetic for scoring) — a
// deliberate exception recorded in DESIGN.md, not an oversight.
package lexical

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
)

const (
	// DefaultK1 and DefaultB are BM25's term-frequency saturation and
	// length-normalization parameters, exactly as spec.md §4.2.
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize lowercases s and splits it into Unicode letter/digit runs.
// Stop words are intentionally not removed, per spec.md §4.2.
func Tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

// Result is one ranked hit from Search.
type Result struct {
	SkillID string
	Score   float64
}

// document is the index's internal per-skill bookkeeping: term
// frequencies and total token count, used for BM25's length
// normalization.
type document struct {
	termFreq map[string]int
	length   int
}

// Index is an in-memory BM25 index over a corpus of skill documents,
// rebuilt incrementally on every Update/Remove and wholesale on
// Rebuild (corruption recovery, spec.md §4.2 "on corruption, full
// rebuild from the archive").
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	docs      map[string]*document
	docFreq   map[string]int // number of docs containing a term
	totalDocs int
	totalLen  int // sum of all document lengths, for avgDocLen
	log       *logging.Logger
}

// New constructs an empty index with BM25's default parameters.
func New() *Index {
	return &Index{
		k1:      DefaultK1,
		b:       DefaultB,
		docs:    make(map[string]*document),
		docFreq: make(map[string]int),
		log:     logging.Get(logging.CategoryIndex),
	}
}

// Update (re)indexes skillID with text, replacing any prior document
// for that id. Invoked by the indexer on every Store commit, per
// spec.md §4.2.
func (idx *Index) Update(skillID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(skillID)
	idx.addLocked(skillID, text)
}

// Remove drops skillID from the index entirely.
func (idx *Index) Remove(skillID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(skillID)
}

// Rebuild discards the index and reindexes every (skillID, text) pair
// in docs, used for corruption recovery.
func (idx *Index) Rebuild(docs map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[string]*document, len(docs))
	idx.docFreq = make(map[string]int)
	idx.totalDocs = 0
	idx.totalLen = 0
	for id, text := range docs {
		idx.addLocked(id, text)
	}
	idx.log.Info("lexical index rebuilt", "documents", len(docs))
}

func (idx *Index) addLocked(skillID, text string) {
	tokens := Tokenize(text)
	d := &document{termFreq: make(map[string]int, len(tokens)), length: len(tokens)}
	for _, tok := range tokens {
		d.termFreq[tok]++
	}
	idx.docs[skillID] = d
	idx.totalDocs++
	idx.totalLen += d.length
	for term := range d.termFreq {
		idx.docFreq[term]++
	}
}

func (idx *Index) removeLocked(skillID string) {
	d, ok := idx.docs[skillID]
	if !ok {
		return
	}
	for term := range d.termFreq {
		idx.docFreq[term]--
		if idx.docFreq[term] <= 0 {
			delete(idx.docFreq, term)
		}
	}
	idx.totalDocs--
	idx.totalLen -= d.length
	delete(idx.docs, skillID)
}

// Search ranks every indexed document against query by BM25 score,
// returning the top limit results ordered by descending score, ties
// broken by ascending skill id for determinism, per spec.md §4.2.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	if len(terms) == 0 || idx.totalDocs == 0 {
		return nil
	}
	avgDocLen := float64(idx.totalLen) / float64(idx.totalDocs)

	scores := make(map[string]float64)
	for _, term := range terms {
		df := idx.docFreq[term]
		if df == 0 {
			continue
		}
		idf := idfBM25(idx.totalDocs, df)
		for id, d := range idx.docs {
			tf := d.termFreq[term]
			if tf == 0 {
				continue
			}
			norm := 1 - idx.b + idx.b*float64(d.length)/avgDocLen
			scores[id] += idf * (float64(tf) * (idx.k1 + 1)) / (float64(tf) + idx.k1*norm)
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{SkillID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SkillID < results[j].SkillID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// idfBM25 is the standard BM25 inverse document frequency with the
// +1 smoothing term that keeps it non-negative for df > N/2.
func idfBM25(totalDocs, df int) float64 {
	n := float64(totalDocs)
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
}
