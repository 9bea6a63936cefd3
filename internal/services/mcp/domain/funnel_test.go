package domain

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drivelane/drivelane/internal/funnel/app"
	funnel "github.com/drivelane/drivelane/internal/funnel/domain"
)

func TestRecordEngagementHandlerEmitsEscalation(t *testing.T) {
	t.Parallel()

	svc := openTempService(t)
	handler := RecordEngagementHandler(svc)

	kinds := []string{"viewed", "compared", "contacted_dealer", "checked_availability"}
	var last RecordEngagementResult
	for i, kind := range kinds {
		_, result, err := handler(context.Background(), nil, RecordEngagementInput{
			EventID:    "evt-" + kind,
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

	if last.CumulativeScore != 13 || last.Tier != "warm" {
		t.Fatalf("result = score %v tier %q, want 13 warm", last.CumulativeScore, last.Tier)
	}
	if last.Escalation == nil || last.Escalation.TierTo != "warm" || last.Escalation.CreatedAt == "" {
		t.Fatalf("escalation payload = %+v", last.Escalation)
	}
}

func TestRecordEngagementHandlerRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	handler := RecordEngagementHandler(openTempService(t))
	_, _, err := handler(context.Background(), nil, RecordEngagementInput{
		EventID:    "evt-1",
		LeadID:     "lead-1",
		ActionKind: "haggled",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown action kind") {
		t.Fatalf("err = %v, want unknown action kind", err)
	}
}

func TestRecordEngagementHandlerFlagsReplay(t *testing.T) {
	t.Parallel()

	handler := RecordEngagementHandler(openTempService(t))
	input := RecordEngagementInput{
		EventID:    "evt-1",
		LeadID:     "lead-1",
		ActionKind: "reserved",
		OccurredAt: "2026-03-21T09:00:00Z",
	}
	if _, _, err := handler(context.Background(), nil, input); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	_, result, err := handler(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}
	if !result.Replayed {
		t.Fatal("expected replayed flag")
	}
	if result.CumulativeScore != 9 {
		t.Fatalf("replay changed score: %v", result.CumulativeScore)
	}
}

func TestGetAndAcknowledgeEscalationHandlers(t *testing.T) {
	t.Parallel()

	svc := openTempService(t)
	record := RecordEngagementHandler(svc)
	if _, _, err := record(context.Background(), nil, RecordEngagementInput{
		EventID:    "evt-1",
		LeadID:     "lead-1",
		ActionKind: "submitted_deposit",
	}); err != nil {
		t.Fatalf("record crossing: %v", err)
	}

	list := GetEscalationsHandler(svc)
	_, page, err := list(context.Background(), nil, GetEscalationsInput{
		Filter: `lead_id = "lead-1" AND acknowledged = false`,
	})
	if err != nil {
		t.Fatalf("get escalations: %v", err)
	}
	if len(page.Escalations) != 1 {
		t.Fatalf("escalations = %d, want 1", len(page.Escalations))
	}

	get := GetEscalationHandler(svc)
	_, fetched, err := get(context.Background(), nil, GetEscalationInput{
		EscalationID: page.Escalations[0].ID,
	})
	if err != nil {
		t.Fatalf("get escalation: %v", err)
	}
	if fetched.Escalation.ID != page.Escalations[0].ID || fetched.Escalation.TierTo != "warm" {
		t.Fatalf("fetched payload = %+v", fetched.Escalation)
	}
	if _, _, err := get(context.Background(), nil, GetEscalationInput{
		EscalationID: "nonexistent",
	}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unknown get id err = %v, want not found", err)
	}

	acknowledge := AcknowledgeEscalationHandler(svc)
	_, acked, err := acknowledge(context.Background(), nil, AcknowledgeEscalationInput{
		EscalationID: page.Escalations[0].ID,
	})
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !acked.Escalation.Acknowledged || acked.Escalation.AcknowledgedAt == "" {
		t.Fatalf("acknowledged payload = %+v", acked.Escalation)
	}

	if _, _, err := acknowledge(context.Background(), nil, AcknowledgeEscalationInput{
		EscalationID: "nonexistent",
	}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unknown id err = %v, want not found", err)
	}
}

func openTempService(t *testing.T) *funnel.Service {
	t.Helper()
	application, err := app.New(filepath.Join(t.TempDir(), "funnel.db"))
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := application.Close(); closeErr != nil {
			t.Fatalf("close app: %v", closeErr)
		}
	})
	return application.Service
}
