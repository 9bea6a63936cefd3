package domain

import "time"

// Tier classifies a lead's purchase intent from its cumulative score.
type Tier string

const (
	// TierCold is the initial tier for every lead.
	TierCold Tier = "cold"
	// TierWarm indicates meaningful engagement.
	TierWarm Tier = "warm"
	// TierHot indicates strong purchase intent.
	TierHot Tier = "hot"
)

var tierRank = map[Tier]int{
	TierCold: 0,
	TierWarm: 1,
	TierHot:  2,
}

// Above reports whether t is strictly higher than other in the
// cold < warm < hot ordering.
func (t Tier) Above(other Tier) bool {
	return tierRank[t] > tierRank[other]
}

// LeadProfile is the accumulated funnel state for one lead. The cumulative
// score never decreases and the tier never regresses.
type LeadProfile struct {
	LeadID          string
	CustomerID      string
	SessionIDs      []string
	CumulativeScore float64
	CurrentTier     Tier
	// MergedInto names the canonical lead when this profile was absorbed
	// by identity stitching. Empty for live profiles.
	MergedInto string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Escalation records one upward tier crossing for a lead.
type Escalation struct {
	ID                string
	LeadID            string
	TierFrom          Tier
	TierTo            Tier
	TriggeringEventID string
	CreatedAt         time.Time
	Acknowledged      bool
	AcknowledgedAt    *time.Time
}

// EscalationPage is one page of a newest-first escalation listing.
type EscalationPage struct {
	Escalations   []Escalation
	NextPageToken string
}
