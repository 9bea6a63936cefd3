package domain

const (
	warmThreshold = 10
	hotThreshold  = 22
)

// TierForScore maps a cumulative score to its intent tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= hotThreshold:
		return TierHot
	case score >= warmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// DetectCrossing computes the tier for the new score and reports whether it
// strictly advanced past previous. The returned tier never regresses: when
// the score maps below the previously stored tier, previous is kept.
func DetectCrossing(previous Tier, score float64) (Tier, bool) {
	next := TierForScore(score)
	if !next.Above(previous) {
		return previous, false
	}
	return next, true
}
