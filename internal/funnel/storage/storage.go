// Package storage defines the persistence contracts for lead funnel state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested profile, event, or escalation record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// EngagementEventRecord stores one immutable engagement event.
type EngagementEventRecord struct {
	ID         string
	LeadID     string
	CustomerID string
	SessionID  string
	ActionKind string
	OccurredAt time.Time
	RecordedAt time.Time
}

// LeadProfileRecord stores the accumulated funnel state for one lead.
type LeadProfileRecord struct {
	LeadID          string
	CustomerID      string
	SessionIDs      []string
	CumulativeScore float64
	CurrentTier     string
	// MergedInto points at the canonical lead when this profile was
	// absorbed by identity stitching. Empty for live profiles.
	MergedInto string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EscalationRecord stores one upward tier-crossing alert.
type EscalationRecord struct {
	ID                string
	LeadID            string
	TierFrom          string
	TierTo            string
	TriggeringEventID string
	CreatedAt         time.Time
	Acknowledged      bool
	AcknowledgedAt    *time.Time
}

// EscalationPage stores a paged escalation listing result.
type EscalationPage struct {
	Escalations   []EscalationRecord
	NextPageToken string
}

// EventStore persists engagement events and answers replay checks.
type EventStore interface {
	// PutEngagementEvent inserts an event. Returns ErrConflict when the
	// event id was already recorded.
	PutEngagementEvent(ctx context.Context, record EngagementEventRecord) error
	HasEngagementEvent(ctx context.Context, eventID string) (bool, error)
}

// ProfileStore persists lead profile state.
type ProfileStore interface {
	GetLeadProfile(ctx context.Context, leadID string) (LeadProfileRecord, error)
	ListLeadProfilesByCustomer(ctx context.Context, customerID string) ([]LeadProfileRecord, error)
	PutLeadProfile(ctx context.Context, record LeadProfileRecord) error
	// MergeLeadProfiles atomically upserts the canonical profile and marks
	// the absorbed lead as merged into it.
	MergeLeadProfiles(ctx context.Context, canonical LeadProfileRecord, mergedLeadID string) error
}

// EscalationStore persists tier-crossing alerts with open-alert dedup.
type EscalationStore interface {
	// CreateEscalation inserts record unless an unacknowledged escalation
	// already exists for the same lead and target tier, in which case the
	// existing record is returned with created=false.
	CreateEscalation(ctx context.Context, record EscalationRecord) (EscalationRecord, bool, error)
	GetEscalation(ctx context.Context, id string) (EscalationRecord, error)
	// AcknowledgeEscalation marks the escalation acknowledged. Returns
	// ErrNotFound for an unknown id; acknowledging an already-acknowledged
	// escalation returns the current record unchanged.
	AcknowledgeEscalation(ctx context.Context, id string, acknowledgedAt time.Time) (EscalationRecord, error)
	// ListEscalations returns escalations newest-first. The filter string
	// supports lead_id, tier_to, acknowledged, and created_at fields.
	ListEscalations(ctx context.Context, filter string, pageSize int, pageToken string) (EscalationPage, error)
}

// Store combines all funnel persistence contracts.
type Store interface {
	EventStore
	ProfileStore
	EscalationStore
}
