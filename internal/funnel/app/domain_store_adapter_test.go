package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/drivelane/drivelane/internal/funnel/domain"
)

func TestFunnelThroughSQLiteStore(t *testing.T) {
	t.Parallel()

	application := openTempApp(t)
	svc := application.Service

	kinds := []domain.ActionKind{
		domain.ActionViewed,
		domain.ActionCompared,
		domain.ActionContactedDealer,
		domain.ActionCheckedAvailability,
	}
	var last domain.RecordEngagementResult
	for i, kind := range kinds {
		result, err := svc.RecordEngagement(context.Background(), domain.RecordEngagementInput{
			EventID:    fmt.Sprintf("evt-%d", i+1),
			LeadID:     "lead-1",
			CustomerID: "cust-1",
			SessionID:  "sess-1",
			ActionKind: kind,
		})
		if err != nil {
			t.Fatalf("record event %d: %v", i+1, err)
		}
		last = result
	}

	if last.Profile.CumulativeScore != 13 {
		t.Fatalf("score = %v, want 13", last.Profile.CumulativeScore)
	}
	if last.Escalation == nil || last.Escalation.TierTo != domain.TierWarm {
		t.Fatalf("expected warm escalation, got %+v", last.Escalation)
	}

	// The escalation is queryable immediately after the recording call.
	page, err := svc.GetEscalations(context.Background(), domain.GetEscalationsInput{
		Filter: `lead_id = "lead-1" AND acknowledged = false`,
	})
	if err != nil {
		t.Fatalf("get escalations: %v", err)
	}
	if len(page.Escalations) != 1 {
		t.Fatalf("open escalations = %d, want 1", len(page.Escalations))
	}

	acknowledged, err := svc.AcknowledgeEscalation(context.Background(), page.Escalations[0].ID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !acknowledged.Acknowledged {
		t.Fatalf("record not acknowledged: %+v", acknowledged)
	}

	fetched, err := svc.GetEscalation(context.Background(), acknowledged.ID)
	if err != nil {
		t.Fatalf("get escalation: %v", err)
	}
	if !fetched.Acknowledged || fetched.AcknowledgedAt == nil {
		t.Fatalf("fetched record lost acknowledgement: %+v", fetched)
	}

	if _, err := svc.GetEscalation(context.Background(), "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown get id err = %v, want domain.ErrNotFound", err)
	}
	if _, err := svc.AcknowledgeEscalation(context.Background(), "nonexistent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want domain.ErrNotFound", err)
	}
}

func TestConcurrentLeadsProgressIndependently(t *testing.T) {
	t.Parallel()

	application := openTempApp(t)
	svc := application.Service

	var group errgroup.Group
	for lead := range 4 {
		leadID := fmt.Sprintf("lead-%d", lead+1)
		group.Go(func() error {
			for i := range 3 {
				if _, err := svc.RecordEngagement(context.Background(), domain.RecordEngagementInput{
					EventID:    fmt.Sprintf("%s-evt-%d", leadID, i+1),
					LeadID:     leadID,
					ActionKind: domain.ActionCheckedAvailability,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent recording: %v", err)
	}

	for lead := range 4 {
		leadID := fmt.Sprintf("lead-%d", lead+1)
		profile, err := svc.GetLeadProfile(context.Background(), leadID)
		if err != nil {
			t.Fatalf("get %s: %v", leadID, err)
		}
		if profile.CumulativeScore != 15 || profile.CurrentTier != domain.TierWarm {
			t.Fatalf("%s = score %v tier %s, want 15 warm", leadID, profile.CumulativeScore, profile.CurrentTier)
		}
	}

	page, err := svc.GetEscalations(context.Background(), domain.GetEscalationsInput{Filter: "acknowledged = false"})
	if err != nil {
		t.Fatalf("get escalations: %v", err)
	}
	if len(page.Escalations) != 4 {
		t.Fatalf("open escalations = %d, want one per lead", len(page.Escalations))
	}
}

func openTempApp(t *testing.T) *App {
	t.Helper()
	application, err := New(filepath.Join(t.TempDir(), "funnel.db"))
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := application.Close(); closeErr != nil {
			t.Fatalf("close app: %v", closeErr)
		}
	})
	return application
}
