// Package indexer wires the Store's commit path to the derived
// lexical and vector indexes, the "Indexer" role spec.md §4.2
// describes: "On commit, the Indexer updates the Lexical Index
// (tokenized full-text) and the Vector Index (embeddings of
// title+description+body+tags)."
package indexer

import (
	"context"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/lexical"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/vector"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// VectorUpserter is the narrow write contract an Indexer needs from a
// vector index, satisfied by *vector.FlatIndex and, via the same
// method set, any ANN backend built the same way.
type VectorUpserter interface {
	Upsert(skillID, contentHash string, vec []float32) error
	Remove(skillID string)
}

// Indexer implements store.Indexer: it is handed to Store.SetIndexer
// so every PutSkill/DeleteSkill commit keeps the lexical and vector
// indexes in sync, per spec.md §4.2's dataflow ("the Indexes...are
// derived state owned by the Store; they are rebuildable from the
// archive").
type Indexer struct {
	lexical  *lexical.Index
	vector   VectorUpserter
	embedder vector.Embedder
	log      *logging.Logger
}

// New builds an Indexer over an already-constructed lexical index,
// vector index, and embedder.
func New(lex *lexical.Index, vec VectorUpserter, embedder vector.Embedder) *Indexer {
	return &Indexer{lexical: lex, vector: vec, embedder: embedder, log: logging.Get(logging.CategoryIndex)}
}

// IndexSkill updates both indexes for sk, embedding its searchable
// text (title+description+body+tags, per spec.md §4.2) only if a
// vector index and embedder are configured.
func (ix *Indexer) IndexSkill(ctx context.Context, sk *skill.Skill) error {
	text := SearchableText(sk)
	ix.lexical.Update(sk.ID, text)

	if ix.vector == nil || ix.embedder == nil {
		return nil
	}
	emb, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return ix.vector.Upsert(sk.ID, sk.Source.ContentHash, emb)
}

// RemoveSkill drops id from both indexes.
func (ix *Indexer) RemoveSkill(_ context.Context, id string) error {
	ix.lexical.Remove(id)
	if ix.vector != nil {
		ix.vector.Remove(id)
	}
	return nil
}

// Rebuild wholesale-replaces the lexical index from corpus and
// re-embeds every skill into the vector index, for the recovery path's
// "full rebuild from the archive" case (spec.md §4.2).
func (ix *Indexer) Rebuild(ctx context.Context, corpus []*skill.Skill) error {
	docs := make(map[string]string, len(corpus))
	for _, sk := range corpus {
		docs[sk.ID] = SearchableText(sk)
	}
	ix.lexical.Rebuild(docs)

	if ix.vector == nil || ix.embedder == nil {
		return nil
	}
	for _, sk := range corpus {
		emb, err := ix.embedder.Embed(ctx, docs[sk.ID])
		if err != nil {
			return err
		}
		if err := ix.vector.Upsert(sk.ID, sk.Source.ContentHash, emb); err != nil {
			return err
		}
	}
	return nil
}

// SearchableText renders a skill's indexable text: name, description,
// section block content, and tags, space-joined. Shared by the
// lexical and vector halves of indexing so both see the same corpus.
func SearchableText(sk *skill.Skill) string {
	parts := make([]string, 0, len(sk.Sections)+len(sk.Tags)+2)
	parts = append(parts, sk.Name, sk.Description)
	for _, sec := range sk.Sections {
		for _, blk := range sec.Blocks {
			if blk.Content != "" {
				parts = append(parts, blk.Content)
			}
		}
	}
	parts = append(parts, sk.Tags...)

	out := ""
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !first {
			out += " "
		}
		out += p
		first = false
	}
	return out
}
