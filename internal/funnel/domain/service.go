package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drivelane/drivelane/internal/platform/id"
)

var (
	// ErrNotFound indicates a requested funnel record was not found.
	ErrNotFound = errors.New("funnel record not found")
	// ErrConflict indicates a write conflicted with existing uniqueness constraints.
	ErrConflict = errors.New("funnel record conflict")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("funnel store is not configured")
	// ErrEventIDRequired indicates an engagement event id is required.
	ErrEventIDRequired = errors.New("event id is required")
	// ErrLeadIDRequired indicates a lead id is required.
	ErrLeadIDRequired = errors.New("lead id is required")
	// ErrEscalationIDRequired indicates an escalation id is required.
	ErrEscalationIDRequired = errors.New("escalation id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// mergeChainLimit bounds merge-pointer traversal.
	mergeChainLimit = 5
)

// Store is the domain persistence boundary for funnel state.
type Store interface {
	HasEngagementEvent(ctx context.Context, eventID string) (bool, error)
	PutEngagementEvent(ctx context.Context, event EngagementEvent, recordedAt time.Time) error
	GetLeadProfile(ctx context.Context, leadID string) (LeadProfile, error)
	ListLeadProfilesByCustomer(ctx context.Context, customerID string) ([]LeadProfile, error)
	PutLeadProfile(ctx context.Context, profile LeadProfile) error
	MergeLeadProfiles(ctx context.Context, canonical LeadProfile, mergedLeadID string) error
	CreateEscalation(ctx context.Context, escalation Escalation) (Escalation, bool, error)
	GetEscalation(ctx context.Context, id string) (Escalation, error)
	AcknowledgeEscalation(ctx context.Context, id string, acknowledgedAt time.Time) (Escalation, error)
	ListEscalations(ctx context.Context, filter string, pageSize int, pageToken string) (EscalationPage, error)
}

// Service orchestrates engagement scoring and escalation lifecycle behavior.
// Each lead's read-modify-write runs under a per-lead lock; different leads
// update in parallel.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
	locks *lockRegistry
}

// NewService constructs funnel domain use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
		locks: newLockRegistry(),
	}
}

// RecordEngagementInput describes one engagement event delivery.
type RecordEngagementInput struct {
	EventID    string
	LeadID     string
	CustomerID string
	SessionID  string
	ActionKind ActionKind
	OccurredAt time.Time
}

// RecordEngagementResult reports the profile state after the event and the
// escalation emitted by an upward tier crossing, if any.
type RecordEngagementResult struct {
	Profile    LeadProfile
	Escalation *Escalation
	// Replayed reports the event id was already recorded and the delivery
	// was ignored.
	Replayed bool
}

// RecordEngagement applies one engagement event to the lead's profile,
// advances the tier when a score threshold is crossed, and stores an
// escalation for the crossing. Duplicate event ids are ignored. Events for a
// customer arriving under multiple lead ids are stitched into the
// earliest-created lead's profile.
func (s *Service) RecordEngagement(ctx context.Context, input RecordEngagementInput) (RecordEngagementResult, error) {
	if s == nil || s.store == nil {
		return RecordEngagementResult{}, ErrStoreNotConfigured
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return RecordEngagementResult{}, ErrEventIDRequired
	}
	leadID := strings.TrimSpace(input.LeadID)
	if leadID == "" {
		return RecordEngagementResult{}, ErrLeadIDRequired
	}
	weight, err := input.ActionKind.Weight()
	if err != nil {
		return RecordEngagementResult{}, err
	}
	customerID := strings.TrimSpace(input.CustomerID)

	var result RecordEngagementResult
	err = s.withCanonicalLock(ctx, leadID, customerID, func(canonicalID string) error {
		recorded, err := s.recordLocked(ctx, input, eventID, leadID, canonicalID, weight)
		if err != nil {
			return err
		}
		result = recorded
		return nil
	})
	if err != nil {
		return RecordEngagementResult{}, err
	}
	return result, nil
}

// withCanonicalLock resolves the canonical lead for the delivery, locks both
// the delivered and canonical leads, and confirms the resolution did not
// change before the locks were held.
func (s *Service) withCanonicalLock(ctx context.Context, leadID, customerID string, fn func(canonicalID string) error) error {
	for attempt := 0; attempt < 3; attempt++ {
		canonicalID, err := s.resolveCanonicalLead(ctx, leadID, customerID)
		if err != nil {
			return err
		}
		unlock := s.locks.lockLeads(leadID, canonicalID)
		confirmed, err := s.resolveCanonicalLead(ctx, leadID, customerID)
		if err != nil {
			unlock()
			return err
		}
		if confirmed != canonicalID {
			unlock()
			continue
		}
		err = fn(canonicalID)
		unlock()
		return err
	}
	return ErrConflict
}

// resolveCanonicalLead follows merge pointers for leadID and applies identity
// stitching: among live profiles sharing customerID, the earliest-created
// lead owns the canonical profile.
func (s *Service) resolveCanonicalLead(ctx context.Context, leadID, customerID string) (string, error) {
	canonicalID := leadID
	var canonical *LeadProfile

	profile, err := s.store.GetLeadProfile(ctx, leadID)
	switch {
	case err == nil:
		for i := 0; profile.MergedInto != "" && i < mergeChainLimit; i++ {
			next, err := s.store.GetLeadProfile(ctx, profile.MergedInto)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					break
				}
				return "", err
			}
			profile = next
		}
		canonicalID = profile.LeadID
		canonical = &profile
	case errors.Is(err, ErrNotFound):
	default:
		return "", err
	}

	if customerID == "" {
		return canonicalID, nil
	}
	profiles, err := s.store.ListLeadProfilesByCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	for _, candidate := range profiles {
		if candidate.MergedInto != "" {
			continue
		}
		if canonical == nil || earlierLead(candidate, *canonical) {
			c := candidate
			canonical = &c
			canonicalID = candidate.LeadID
		}
	}
	return canonicalID, nil
}

// earlierLead orders live profiles by (created_at, lead_id). The lead id
// tie-break keeps resolution deterministic when two first touches for a
// customer land in the same millisecond, so every delivery converges on one
// canonical lead.
func earlierLead(a, b LeadProfile) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.LeadID < b.LeadID
}

func (s *Service) recordLocked(ctx context.Context, input RecordEngagementInput, eventID, leadID, canonicalID string, weight float64) (RecordEngagementResult, error) {
	replayed, err := s.store.HasEngagementEvent(ctx, eventID)
	if err != nil {
		return RecordEngagementResult{}, err
	}
	if replayed {
		return s.replayResult(ctx, canonicalID)
	}

	now := s.nowUTC()
	occurredAt := input.OccurredAt.UTC()
	if input.OccurredAt.IsZero() {
		occurredAt = now
	}
	event := EngagementEvent{
		EventID:    eventID,
		LeadID:     canonicalID,
		CustomerID: strings.TrimSpace(input.CustomerID),
		SessionID:  strings.TrimSpace(input.SessionID),
		ActionKind: input.ActionKind,
		OccurredAt: occurredAt,
	}
	if err := s.store.PutEngagementEvent(ctx, event, now); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.replayResult(ctx, canonicalID)
		}
		return RecordEngagementResult{}, err
	}

	return s.applyScore(ctx, event, leadID, canonicalID, weight, now)
}

// applyScore is the per-lead critical section body: load the canonical
// profile, absorb a stitched lead if the event arrived under one, add the
// event's weight, advance the tier on a crossing, and persist.
func (s *Service) applyScore(ctx context.Context, event EngagementEvent, leadID, canonicalID string, weight float64, now time.Time) (RecordEngagementResult, error) {
	canonical, err := s.store.GetLeadProfile(ctx, canonicalID)
	switch {
	case errors.Is(err, ErrNotFound):
		canonical = LeadProfile{
			LeadID:      canonicalID,
			CustomerID:  event.CustomerID,
			CurrentTier: TierCold,
			CreatedAt:   now,
		}
	case err != nil:
		return RecordEngagementResult{}, err
	}
	if canonical.CurrentTier == "" {
		canonical.CurrentTier = TierCold
	}
	if canonical.CustomerID == "" {
		canonical.CustomerID = event.CustomerID
	}

	if canonicalID != leadID {
		absorbed, err := s.store.GetLeadProfile(ctx, leadID)
		switch {
		case err == nil && absorbed.MergedInto == "":
			canonical.CumulativeScore += absorbed.CumulativeScore
			canonical.SessionIDs = appendSessions(canonical.SessionIDs, absorbed.SessionIDs...)
			if absorbed.CurrentTier.Above(canonical.CurrentTier) {
				canonical.CurrentTier = absorbed.CurrentTier
			}
			canonical.UpdatedAt = now
			if err := s.store.MergeLeadProfiles(ctx, canonical, leadID); err != nil {
				return RecordEngagementResult{}, err
			}
			s.logf(ctx, "funnel lead merged lead_id=%s canonical_lead_id=%s customer_id=%s", leadID, canonicalID, event.CustomerID)
		case err != nil && !errors.Is(err, ErrNotFound):
			return RecordEngagementResult{}, err
		}
	}

	previousTier := canonical.CurrentTier
	canonical.CumulativeScore += weight
	canonical.SessionIDs = appendSessions(canonical.SessionIDs, event.SessionID)
	nextTier, crossed := DetectCrossing(previousTier, canonical.CumulativeScore)
	canonical.CurrentTier = nextTier
	canonical.UpdatedAt = now
	if err := s.store.PutLeadProfile(ctx, canonical); err != nil {
		return RecordEngagementResult{}, err
	}
	s.logf(ctx, "funnel engagement recorded event_id=%s lead_id=%s action=%s score=%v tier=%s",
		event.EventID, canonicalID, event.ActionKind, canonical.CumulativeScore, canonical.CurrentTier)

	result := RecordEngagementResult{Profile: canonical}
	if crossed {
		escalationID, err := s.newID()
		if err != nil {
			return RecordEngagementResult{}, err
		}
		candidate := Escalation{
			ID:                escalationID,
			LeadID:            canonicalID,
			TierFrom:          previousTier,
			TierTo:            nextTier,
			TriggeringEventID: event.EventID,
			CreatedAt:         now,
		}
		stored, created, err := s.store.CreateEscalation(ctx, candidate)
		if errors.Is(err, ErrConflict) {
			// The open alert was acknowledged between the insert attempt and
			// the dedup lookup; a second attempt inserts a fresh row. The
			// profile write above is not re-run, so the event's weight is
			// applied exactly once.
			stored, created, err = s.store.CreateEscalation(ctx, candidate)
		}
		if err != nil {
			return RecordEngagementResult{}, err
		}
		result.Escalation = &stored
		if created {
			s.logf(ctx, "funnel escalation created id=%s lead_id=%s tier_from=%s tier_to=%s event_id=%s",
				stored.ID, stored.LeadID, stored.TierFrom, stored.TierTo, event.EventID)
		} else {
			s.logf(ctx, "funnel escalation deduplicated id=%s lead_id=%s tier_to=%s event_id=%s",
				stored.ID, stored.LeadID, stored.TierTo, event.EventID)
		}
	}
	return result, nil
}

func (s *Service) replayResult(ctx context.Context, canonicalID string) (RecordEngagementResult, error) {
	profile, err := s.store.GetLeadProfile(ctx, canonicalID)
	if errors.Is(err, ErrNotFound) {
		profile = LeadProfile{LeadID: canonicalID, CurrentTier: TierCold}
	} else if err != nil {
		return RecordEngagementResult{}, err
	}
	return RecordEngagementResult{Profile: profile, Replayed: true}, nil
}

// GetLeadProfile returns the profile for leadID, following merge pointers to
// the canonical lead.
func (s *Service) GetLeadProfile(ctx context.Context, leadID string) (LeadProfile, error) {
	if s == nil || s.store == nil {
		return LeadProfile{}, ErrStoreNotConfigured
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return LeadProfile{}, ErrLeadIDRequired
	}
	profile, err := s.store.GetLeadProfile(ctx, leadID)
	if err != nil {
		return LeadProfile{}, err
	}
	for i := 0; profile.MergedInto != "" && i < mergeChainLimit; i++ {
		next, err := s.store.GetLeadProfile(ctx, profile.MergedInto)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return LeadProfile{}, err
		}
		profile = next
	}
	return profile, nil
}

// GetEscalationsInput configures escalation listing.
type GetEscalationsInput struct {
	// Filter supports lead_id, tier_to, acknowledged, and created_at
	// fields, e.g. `lead_id = "lead-1" AND acknowledged = false`.
	Filter    string
	PageSize  int
	PageToken string
}

// GetEscalations lists escalations newest first.
func (s *Service) GetEscalations(ctx context.Context, input GetEscalationsInput) (EscalationPage, error) {
	if s == nil || s.store == nil {
		return EscalationPage{}, ErrStoreNotConfigured
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return s.store.ListEscalations(ctx, strings.TrimSpace(input.Filter), pageSize, strings.TrimSpace(input.PageToken))
}

// GetEscalation returns one escalation by id. Unknown ids fail with
// ErrNotFound.
func (s *Service) GetEscalation(ctx context.Context, escalationID string) (Escalation, error) {
	if s == nil || s.store == nil {
		return Escalation{}, ErrStoreNotConfigured
	}
	escalationID = strings.TrimSpace(escalationID)
	if escalationID == "" {
		return Escalation{}, ErrEscalationIDRequired
	}
	return s.store.GetEscalation(ctx, escalationID)
}

// AcknowledgeEscalation marks one escalation acknowledged. Unknown ids fail
// with ErrNotFound; re-acknowledging returns the current record unchanged.
func (s *Service) AcknowledgeEscalation(ctx context.Context, escalationID string) (Escalation, error) {
	if s == nil || s.store == nil {
		return Escalation{}, ErrStoreNotConfigured
	}
	escalationID = strings.TrimSpace(escalationID)
	if escalationID == "" {
		return Escalation{}, ErrEscalationIDRequired
	}
	return s.store.AcknowledgeEscalation(ctx, escalationID, s.nowUTC())
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) logf(ctx context.Context, format string, args ...any) {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		format += " trace_id=" + sc.TraceID().String()
	}
	log.Printf(format, args...)
}

func appendSessions(sessions []string, add ...string) []string {
	for _, sessionID := range add {
		if sessionID == "" {
			continue
		}
		present := false
		for _, existing := range sessions {
			if existing == sessionID {
				present = true
				break
			}
		}
		if !present {
			sessions = append(sessions, sessionID)
		}
	}
	return sessions
}
