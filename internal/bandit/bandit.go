// Package bandit implements the contextual bandit that ranks skill
// suggestions and the feedback tracker that converts implicit usage
// signals into training rewards, per spec.md §4.9.
package bandit

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
)

// explorationScale tunes how quickly the exploration bonus decays with
// pull count; chosen so a fresh arm's bonus is comparable in magnitude
// to a typical contextual score, and a well-pulled arm's bonus is
// negligible.
const explorationScale = 1.0

// priorVariance is the per-feature-weight prior variance before any
// observations (a diffuse, weakly-informative prior).
const priorVariance = 1.0

// noiseVariance is the assumed observation noise variance used when
// turning accumulated precision back into a posterior variance.
const noiseVariance = 0.25

// armParams holds one skill id's per-feature Bayesian linear
// regression state: independent (diagonal-covariance) ridge regression
// per feature dimension, updated online as feedback arrives. This is a
// deliberate simplification of full linear Thompson sampling (which
// tracks a full d x d covariance matrix): tracking feature weights
// independently avoids a matrix-inversion dependency this module has
// no other use for, at the cost of ignoring cross-feature correlation.
type armParams struct {
	precision []float64 // per-dimension accumulated x^2, regularized by 1/priorVariance
	weighted  []float64 // per-dimension accumulated x*reward
	pullCount int
	rewardSum float64
}

func newArmParams(dims int) *armParams {
	precision := make([]float64, dims)
	for i := range precision {
		precision[i] = 1.0 / priorVariance
	}
	return &armParams{precision: precision, weighted: make([]float64, dims)}
}

func (a *armParams) mean() []float64 {
	out := make([]float64, len(a.precision))
	for i := range out {
		out[i] = a.weighted[i] / a.precision[i]
	}
	return out
}

func (a *armParams) variance(i int) float64 {
	return noiseVariance / a.precision[i]
}

func (a *armParams) avgReward() float64 {
	if a.pullCount == 0 {
		return 0
	}
	return a.rewardSum / float64(a.pullCount)
}

func (a *armParams) update(features []float64, reward float64) {
	for i, x := range features {
		a.precision[i] += x * x
		a.weighted[i] += x * reward
	}
	a.pullCount++
	a.rewardSum += reward
}

// Recommendation is one ranked candidate returned by Recommend.
type Recommendation struct {
	SkillID          string
	Score            float64 // posterior-sampled combined score; this is the ranking key
	ContextualScore  float64 // deterministic dot(mean weights, features)
	ExplorationBonus float64 // decays with pull count
	PullCount        int
	AvgReward        float64
}

// Stats is an aggregate snapshot across every registered arm.
type Stats struct {
	ArmCount         int
	TotalPulls       int
	OverallAvgReward float64
}

// Bandit is a contextual linear Thompson-sampling bandit parameterized
// per skill id, per spec.md §4.9.
type Bandit struct {
	mu   sync.Mutex
	arms map[string]*armParams
	rng  *rand.Rand
	log  *logging.Logger
}

// New constructs an empty Bandit. rngSource seeds the Thompson sampler;
// pass a fixed source for reproducible tests, or nil for a fixed,
// reproducible default (callers that want process-to-process
// variation, e.g. System.Open, pass their own time-seeded source).
func New(rngSource rand.Source) *Bandit {
	if rngSource == nil {
		rngSource = rand.NewSource(1)
	}
	return &Bandit{
		arms: make(map[string]*armParams),
		rng:  rand.New(rngSource),
		log:  logging.Get(logging.CategoryBandit),
	}
}

// Register idempotently initializes per-arm parameters for each of
// skillIDs on first registration; re-registering an existing arm is a
// no-op.
func (b *Bandit) Register(skillIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range skillIDs {
		if _, ok := b.arms[id]; !ok {
			b.arms[id] = newArmParams(FeatureDims)
		}
	}
}

// Recommend scores every registered arm against features and returns
// the top k, sorted by combined score descending.
func (b *Bandit) Recommend(features ContextFeatures, k int) []Recommendation {
	vec := features.Vector()

	b.mu.Lock()
	defer b.mu.Unlock()

	recs := make([]Recommendation, 0, len(b.arms))
	for id, arm := range b.arms {
		mean := arm.mean()
		contextual := dot(mean, vec)

		sampled := 0.0
		for i, x := range vec {
			w := b.rng.NormFloat64()*math.Sqrt(arm.variance(i)) + mean[i]
			sampled += w * x
		}

		bonus := explorationScale / math.Sqrt(float64(arm.pullCount)+1)

		recs = append(recs, Recommendation{
			SkillID:          id,
			Score:            sampled + bonus,
			ContextualScore:  contextual,
			ExplorationBonus: bonus,
			PullCount:        arm.pullCount,
			AvgReward:        arm.avgReward(),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].SkillID < recs[j].SkillID
	})
	if k > 0 && len(recs) > k {
		recs = recs[:k]
	}
	return recs
}

// Update applies feedback's mapped reward to skillID's arm, registering
// it first if it hasn't been seen before.
func (b *Bandit) Update(skillID string, features ContextFeatures, feedback Feedback) {
	reward := RewardFor(feedback)

	b.mu.Lock()
	defer b.mu.Unlock()
	arm, ok := b.arms[skillID]
	if !ok {
		arm = newArmParams(FeatureDims)
		b.arms[skillID] = arm
	}
	arm.update(features.Vector(), reward)
}

// Stats reports aggregate counters across every registered arm.
func (b *Bandit) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var totalPulls int
	var totalReward float64
	for _, arm := range b.arms {
		totalPulls += arm.pullCount
		totalReward += arm.rewardSum
	}
	stats := Stats{ArmCount: len(b.arms), TotalPulls: totalPulls}
	if totalPulls > 0 {
		stats.OverallAvgReward = totalReward / float64(totalPulls)
	}
	return stats
}

// ArmIDs returns every currently registered skill id, for callers that
// need to sweep all arms (e.g. persisting every arm's parameters).
func (b *Bandit) ArmIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.arms))
	for id := range b.arms {
		ids = append(ids, id)
	}
	return ids
}

// ArmStats returns the pull count and average reward for a single arm,
// and whether it has been registered at all.
func (b *Bandit) ArmStats(skillID string) (pullCount int, avgReward float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	arm, found := b.arms[skillID]
	if !found {
		return 0, 0, false
	}
	return arm.pullCount, arm.avgReward(), true
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
