package bandit

// FeedbackKind enumerates the implicit-feedback signals the tracker
// can emit, per spec.md §4.9.
type FeedbackKind string

const (
	FeedbackSelected        FeedbackKind = "selected"
	FeedbackUsedDuration    FeedbackKind = "used_duration"
	FeedbackLoadedOnly      FeedbackKind = "loaded_only"
	FeedbackUnloadedQuickly FeedbackKind = "unloaded_quickly"
	FeedbackIgnored         FeedbackKind = "ignored"
	FeedbackHidden          FeedbackKind = "hidden"
)

// Feedback is one observed signal about a skill suggestion or load.
// Minutes is only meaningful when Kind is FeedbackUsedDuration.
type Feedback struct {
	Kind    FeedbackKind
	Minutes int
}

// RewardFor is the single place spec.md §9 Open Question (c) calls for:
// every caller mapping a Feedback into a bandit reward goes through
// here, so the UsedDuration shaping curve only needs to be right once.
//
//   - Selected, or UsedDuration with minutes >= 5 -> 1.0.
//   - UsedDuration with 0 < minutes < 5           -> 0.4 + 0.1*minutes/5.
//   - LoadedOnly                                  -> 0.2.
//   - UnloadedQuickly or Ignored                  -> 0.0.
//   - Hidden                                      -> -0.5 (explicit penalty,
//     not clamped into [0,1] here — the bandit's running average is
//     allowed to go negative so a hidden skill's score visibly drops;
//     callers presenting a reward on its own should clamp to [0,1]).
func RewardFor(f Feedback) float64 {
	switch f.Kind {
	case FeedbackSelected:
		return 1.0
	case FeedbackUsedDuration:
		if f.Minutes >= 5 {
			return 1.0
		}
		return 0.4 + 0.1*float64(f.Minutes)/5
	case FeedbackLoadedOnly:
		return 0.2
	case FeedbackUnloadedQuickly, FeedbackIgnored:
		return 0.0
	case FeedbackHidden:
		return -0.5
	default:
		return 0.0
	}
}

// ClampReward confines a raw reward to [0,1], for callers (e.g. a
// display layer) that want Hidden's negative shaping folded back into
// the nominal reward range instead of surfaced as-is.
func ClampReward(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
