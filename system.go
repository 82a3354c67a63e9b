// Package ms is the system's public entry point: the "Motherboard"
// that wires the dual store, the derived indexes, hybrid search, the
// inheritance resolver, the progressive-disclosure composer, the
// dedup engine, the contextual bandit, the quarantine store, and the
// lint engine into one long-lived handle, grounded on the teacher's
// internal/system.BootCortex/Cortex wiring (the same role this
// package plays for ms, since spec.md frames the whole system as
// "an in-process library with local filesystem persistence" rather
// than a CLI or networked service — there is no command layer to do
// this wiring instead).
package ms

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/bandit"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/composer"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/config"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/dedup"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/lexical"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/vector"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/indexer"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/lint"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/lock"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/quarantine"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/resolver"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/search"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/store"
)

// embeddingsCacheDir is the vector cache's parent directory within the
// data root, per spec.md §6.
const embeddingsCacheDir = "caches"

// System is a fully wired ms instance rooted at one data directory.
// Every exported field is a ready-to-use collaborator; callers needing
// finer control (a custom AcipEngine, a non-default embedder) can
// build their own wiring from the internal packages directly instead
// of going through Open.
type System struct {
	Store   *store.Store
	Lexical *lexical.Index
	// Vector is set below config.SearchConfig.AnnThreshold skills, where
	// flat brute-force cosine is cheap and exact; ANNVector takes over
	// at or above the threshold. Exactly one of the two is non-nil, per
	// spec.md §9 Open Question (b)'s automatic-switch requirement.
	Vector    *vector.FlatIndex
	ANNVector *vector.ANNIndex
	Embedder  vector.Embedder
	Indexer   *indexer.Indexer
	Search    *search.Engine
	Resolver  *resolver.Resolver
	Composer  *composer.Composer
	Dedup     *dedup.Engine
	Bandit    *bandit.Bandit
	BanditDB  *bandit.Store

	Lint       *lint.Engine
	Quarantine *quarantine.Store

	lock     *lock.Lock
	dataRoot string
	log      *logging.Logger
}

// Open boots a System rooted at dataRoot: it acquires the global
// mutation lock, opens the store (running crash recovery), loads
// config.toml, constructs the configured embedder, loads the
// persisted vector cache, seeds the lexical and vector indexes and the
// bandit's arms from every non-deprecated skill on record, and wires
// every derived component together. autoRecover is forwarded to
// store.Open.
//
// acipEngine may be nil: spec.md §4.11 treats the actual injection
// classifier as an external collaborator, so a System opened without
// one simply has a nil Quarantine.
func Open(ctx context.Context, dataRoot string, autoRecover bool, acipEngine quarantine.AcipEngine) (*System, error) {
	log := logging.Get(logging.CategorySystem)

	fileLock := lock.New(dataRoot)
	if err := fileLock.Acquire(ctx, lock.DefaultTimeout); err != nil {
		return nil, err
	}

	st, err := store.Open(dataRoot, autoRecover)
	if err != nil {
		_ = fileLock.Release()
		return nil, err
	}

	cfg, err := config.Load(dataRoot)
	if err != nil {
		st.Close()
		_ = fileLock.Release()
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Search)
	if err != nil {
		st.Close()
		_ = fileLock.Release()
		return nil, err
	}

	corpus, err := st.ListSkills(ctx, -1)
	if err != nil {
		st.Close()
		_ = fileLock.Release()
		return nil, err
	}

	// Picks the vector backend by corpus size before anything else is
	// wired, per spec.md §9 Open Question (b): flat brute-force cosine
	// below the threshold, sqlite-vec ANN at or above it, both behind
	// the same indexer.VectorUpserter/search.VectorSearcher contracts
	// so nothing downstream branches on which one is active.
	var (
		vecUpserter indexer.VectorUpserter
		vecSearcher search.VectorSearcher
		flatIndex   *vector.FlatIndex
		annIndex    *vector.ANNIndex
	)
	if len(corpus) >= cfg.Search.AnnThreshold {
		annIndex, err = vector.NewANNIndex(st.DB(), embedder.Dims())
		if err != nil {
			st.Close()
			_ = fileLock.Release()
			return nil, err
		}
		vecUpserter, vecSearcher = annIndex, annIndex
	} else {
		flatIndex = vector.NewFlatIndex(embedder.Dims())
		cachePath := filepath.Join(dataRoot, embeddingsCacheDir, vector.FileName)
		if err := flatIndex.LoadFrom(cachePath); err != nil {
			log.Warn("vector cache load failed, starting empty", "error", err.Error())
		}
		vecUpserter, vecSearcher = flatIndex, search.FlatIndexAdapter{Index: flatIndex}
	}

	lexIndex := lexical.New()
	ix := indexer.New(lexIndex, vecUpserter, embedder)

	if err := ix.Rebuild(ctx, corpus); err != nil {
		log.Warn("initial index rebuild failed", "error", err.Error())
	}
	st.SetIndexer(ix)

	searchEngine := search.NewEngine(lexIndex, vecSearcher, embedder).
		WithWeights(cfg.Search.BM25Weight, cfg.Search.SemanticWeight)

	res := resolver.New(st)
	comp := composer.New(res)

	dedupEngine := dedup.WithEmbedder(embedder)
	if err := dedupEngine.IndexSkills(ctx, corpus); err != nil {
		log.Warn("dedup index seed failed", "error", err.Error())
	}

	banditEngine := bandit.New(rand.NewSource(time.Now().UnixNano()))
	banditDB := bandit.NewStore(st.DB())
	if err := banditDB.LoadAll(ctx, banditEngine); err != nil {
		log.Warn("bandit param load failed, starting cold", "error", err.Error())
	}
	banditEngine.Register(skillIDs(corpus))

	lintEngine := lint.WithDefaults()

	var quarantineStore *quarantine.Store
	if acipEngine != nil {
		quarantineStore = quarantine.New(acipEngine, quarantine.NewSQLStore(st.DB()))
	}

	log.Info("system opened", "data_root", dataRoot, "skills", len(corpus))

	return &System{
		Store:      st,
		Lexical:    lexIndex,
		Vector:     flatIndex,
		ANNVector:  annIndex,
		Embedder:   embedder,
		Indexer:    ix,
		Search:     searchEngine,
		Resolver:   res,
		Composer:   comp,
		Dedup:      dedupEngine,
		Bandit:     banditEngine,
		BanditDB:   banditDB,
		Lint:       lintEngine,
		Quarantine: quarantineStore,
		lock:       fileLock,
		dataRoot:   dataRoot,
		log:        log,
	}, nil
}

// Close persists every in-memory learned/cached state back to disk
// (the vector cache, every registered bandit arm), closes the store,
// and releases the mutation lock, grounded on the teacher's
// Cortex.Close best-effort-join-errors pattern.
func (s *System) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs []error

	// The ANN backend's state lives in ms.db itself, flushed by
	// Store.Close() below; only the flat backend needs an explicit
	// cache-file save.
	if s.Vector != nil {
		cacheDir := filepath.Join(s.dataRoot, embeddingsCacheDir)
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			errs = append(errs, err)
		} else if err := s.Vector.SaveTo(filepath.Join(cacheDir, vector.FileName)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range s.Bandit.ArmIDs() {
		if err := s.BanditDB.SaveArm(ctx, id, s.Bandit); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("system closed", "data_root", s.dataRoot)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// buildEmbedder constructs the vector.Embedder config.toml's
// search.embedding_backend names. Unknown or empty backend names fall
// back to the deterministic hashed embedder, the same default
// DefaultConfig ships.
func buildEmbedder(cfg config.SearchConfig) (vector.Embedder, error) {
	switch cfg.EmbeddingBackend {
	case "", "hashed":
		return vector.NewHashEmbedder(cfg.EmbeddingDims), nil
	case "ollama":
		return vector.NewOllamaEmbedder("", "", cfg.EmbeddingDims), nil
	default:
		return vector.NewHashEmbedder(cfg.EmbeddingDims), nil
	}
}

func skillIDs(skills []*skill.Skill) []string {
	ids := make([]string, len(skills))
	for i, sk := range skills {
		ids[i] = sk.ID
	}
	return ids
}
