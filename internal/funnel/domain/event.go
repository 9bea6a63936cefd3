// Package domain implements lead funnel behavior: engagement scoring,
// tier escalation detection, and escalation lifecycle rules.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownActionKind indicates an event carried an action kind with no
// configured weight. Scoring fails closed instead of defaulting to zero.
var ErrUnknownActionKind = errors.New("unknown action kind")

// ActionKind identifies one kind of shopper engagement action.
type ActionKind string

const (
	// ActionViewed means the shopper viewed a vehicle listing.
	ActionViewed ActionKind = "viewed"
	// ActionCompared means the shopper compared vehicles side by side.
	ActionCompared ActionKind = "compared"
	// ActionContactedDealer means the shopper reached out to a dealer.
	ActionContactedDealer ActionKind = "contacted_dealer"
	// ActionCheckedAvailability means the shopper checked lot availability.
	ActionCheckedAvailability ActionKind = "checked_availability"
	// ActionRanFinancing means the shopper ran a financing scenario.
	ActionRanFinancing ActionKind = "ran_financing"
	// ActionScheduledTestDrive means the shopper scheduled a test drive.
	ActionScheduledTestDrive ActionKind = "scheduled_test_drive"
	// ActionReserved means the shopper reserved a vehicle.
	ActionReserved ActionKind = "reserved"
	// ActionSubmittedDeposit means the shopper submitted a purchase deposit.
	ActionSubmittedDeposit ActionKind = "submitted_deposit"
)

var actionWeights = map[ActionKind]float64{
	ActionViewed:              1,
	ActionCompared:            3,
	ActionContactedDealer:     4,
	ActionCheckedAvailability: 5,
	ActionRanFinancing:        6,
	ActionScheduledTestDrive:  8,
	ActionReserved:            9,
	ActionSubmittedDeposit:    10,
}

// Weight returns the intent score contribution for the action kind.
// Unknown kinds return ErrUnknownActionKind.
func (k ActionKind) Weight() (float64, error) {
	weight, ok := actionWeights[k]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionKind, string(k))
	}
	return weight, nil
}

// EngagementEvent captures one immutable shopper action.
type EngagementEvent struct {
	EventID    string
	LeadID     string
	CustomerID string
	SessionID  string
	ActionKind ActionKind
	OccurredAt time.Time
}
