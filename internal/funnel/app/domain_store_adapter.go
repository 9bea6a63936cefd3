// Package app wires funnel domain behavior to its SQLite persistence.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/drivelane/drivelane/internal/funnel/domain"
	"github.com/drivelane/drivelane/internal/funnel/storage"
)

// domainStoreAdapter exposes the storage contracts through the domain's
// persistence boundary, mapping records and sentinel errors both ways.
type domainStoreAdapter struct {
	store storage.Store
}

func newDomainStoreAdapter(store storage.Store) *domainStoreAdapter {
	return &domainStoreAdapter{store: store}
}

func (a *domainStoreAdapter) HasEngagementEvent(ctx context.Context, eventID string) (bool, error) {
	if a == nil || a.store == nil {
		return false, domain.ErrStoreNotConfigured
	}
	has, err := a.store.HasEngagementEvent(ctx, eventID)
	if err != nil {
		return false, mapStorageError(err)
	}
	return has, nil
}

func (a *domainStoreAdapter) PutEngagementEvent(ctx context.Context, event domain.EngagementEvent, recordedAt time.Time) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.PutEngagementEvent(ctx, storage.EngagementEventRecord{
		ID:         event.EventID,
		LeadID:     event.LeadID,
		CustomerID: event.CustomerID,
		SessionID:  event.SessionID,
		ActionKind: string(event.ActionKind),
		OccurredAt: event.OccurredAt,
		RecordedAt: recordedAt,
	}))
}

func (a *domainStoreAdapter) GetLeadProfile(ctx context.Context, leadID string) (domain.LeadProfile, error) {
	if a == nil || a.store == nil {
		return domain.LeadProfile{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetLeadProfile(ctx, leadID)
	if err != nil {
		return domain.LeadProfile{}, mapStorageError(err)
	}
	return toDomainProfile(record), nil
}

func (a *domainStoreAdapter) ListLeadProfilesByCustomer(ctx context.Context, customerID string) ([]domain.LeadProfile, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListLeadProfilesByCustomer(ctx, customerID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	profiles := make([]domain.LeadProfile, 0, len(records))
	for _, record := range records {
		profiles = append(profiles, toDomainProfile(record))
	}
	return profiles, nil
}

func (a *domainStoreAdapter) PutLeadProfile(ctx context.Context, profile domain.LeadProfile) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.PutLeadProfile(ctx, toStorageProfile(profile)))
}

func (a *domainStoreAdapter) MergeLeadProfiles(ctx context.Context, canonical domain.LeadProfile, mergedLeadID string) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.MergeLeadProfiles(ctx, toStorageProfile(canonical), mergedLeadID))
}

func (a *domainStoreAdapter) CreateEscalation(ctx context.Context, escalation domain.Escalation) (domain.Escalation, bool, error) {
	if a == nil || a.store == nil {
		return domain.Escalation{}, false, domain.ErrStoreNotConfigured
	}
	record, created, err := a.store.CreateEscalation(ctx, toStorageEscalation(escalation))
	if err != nil {
		return domain.Escalation{}, false, mapStorageError(err)
	}
	return toDomainEscalation(record), created, nil
}

func (a *domainStoreAdapter) GetEscalation(ctx context.Context, id string) (domain.Escalation, error) {
	if a == nil || a.store == nil {
		return domain.Escalation{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetEscalation(ctx, id)
	if err != nil {
		return domain.Escalation{}, mapStorageError(err)
	}
	return toDomainEscalation(record), nil
}

func (a *domainStoreAdapter) AcknowledgeEscalation(ctx context.Context, id string, acknowledgedAt time.Time) (domain.Escalation, error) {
	if a == nil || a.store == nil {
		return domain.Escalation{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.AcknowledgeEscalation(ctx, id, acknowledgedAt)
	if err != nil {
		return domain.Escalation{}, mapStorageError(err)
	}
	return toDomainEscalation(record), nil
}

func (a *domainStoreAdapter) ListEscalations(ctx context.Context, filter string, pageSize int, pageToken string) (domain.EscalationPage, error) {
	if a == nil || a.store == nil {
		return domain.EscalationPage{}, domain.ErrStoreNotConfigured
	}
	page, err := a.store.ListEscalations(ctx, filter, pageSize, pageToken)
	if err != nil {
		return domain.EscalationPage{}, mapStorageError(err)
	}
	out := domain.EscalationPage{
		Escalations:   make([]domain.Escalation, 0, len(page.Escalations)),
		NextPageToken: page.NextPageToken,
	}
	for _, record := range page.Escalations {
		out.Escalations = append(out.Escalations, toDomainEscalation(record))
	}
	return out, nil
}

func toDomainProfile(record storage.LeadProfileRecord) domain.LeadProfile {
	return domain.LeadProfile{
		LeadID:          record.LeadID,
		CustomerID:      record.CustomerID,
		SessionIDs:      record.SessionIDs,
		CumulativeScore: record.CumulativeScore,
		CurrentTier:     domain.Tier(record.CurrentTier),
		MergedInto:      record.MergedInto,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

func toStorageProfile(profile domain.LeadProfile) storage.LeadProfileRecord {
	return storage.LeadProfileRecord{
		LeadID:          profile.LeadID,
		CustomerID:      profile.CustomerID,
		SessionIDs:      profile.SessionIDs,
		CumulativeScore: profile.CumulativeScore,
		CurrentTier:     string(profile.CurrentTier),
		MergedInto:      profile.MergedInto,
		CreatedAt:       profile.CreatedAt,
		UpdatedAt:       profile.UpdatedAt,
	}
}

func toDomainEscalation(record storage.EscalationRecord) domain.Escalation {
	return domain.Escalation{
		ID:                record.ID,
		LeadID:            record.LeadID,
		TierFrom:          domain.Tier(record.TierFrom),
		TierTo:            domain.Tier(record.TierTo),
		TriggeringEventID: record.TriggeringEventID,
		CreatedAt:         record.CreatedAt,
		Acknowledged:      record.Acknowledged,
		AcknowledgedAt:    record.AcknowledgedAt,
	}
}

func toStorageEscalation(escalation domain.Escalation) storage.EscalationRecord {
	return storage.EscalationRecord{
		ID:                escalation.ID,
		LeadID:            escalation.LeadID,
		TierFrom:          string(escalation.TierFrom),
		TierTo:            string(escalation.TierTo),
		TriggeringEventID: escalation.TriggeringEventID,
		CreatedAt:         escalation.CreatedAt,
		Acknowledged:      escalation.Acknowledged,
		AcknowledgedAt:    escalation.AcknowledgedAt,
	}
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}
