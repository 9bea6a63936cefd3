// Package domain defines the MCP tool surface for the vehicle-shopping
// assistant: engagement recording, escalation review, and guardrail
// evaluation.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	funnel "github.com/drivelane/drivelane/internal/funnel/domain"
)

// EscalationPayload is the wire shape of one escalation alert.
type EscalationPayload struct {
	ID                string `json:"id" jsonschema:"escalation identifier"`
	LeadID            string `json:"lead_id" jsonschema:"lead identifier"`
	TierFrom          string `json:"tier_from" jsonschema:"tier before the crossing (cold, warm, hot)"`
	TierTo            string `json:"tier_to" jsonschema:"tier after the crossing (cold, warm, hot)"`
	TriggeringEventID string `json:"triggering_event_id,omitempty" jsonschema:"event that caused the crossing"`
	CreatedAt         string `json:"created_at" jsonschema:"RFC3339 timestamp when the escalation was created"`
	Acknowledged      bool   `json:"acknowledged" jsonschema:"whether a salesperson acknowledged the alert"`
	AcknowledgedAt    string `json:"acknowledged_at,omitempty" jsonschema:"RFC3339 timestamp of the acknowledgement, if any"`
}

func toEscalationPayload(escalation funnel.Escalation) EscalationPayload {
	payload := EscalationPayload{
		ID:                escalation.ID,
		LeadID:            escalation.LeadID,
		TierFrom:          string(escalation.TierFrom),
		TierTo:            string(escalation.TierTo),
		TriggeringEventID: escalation.TriggeringEventID,
		CreatedAt:         escalation.CreatedAt.UTC().Format(time.RFC3339),
		Acknowledged:      escalation.Acknowledged,
	}
	if escalation.AcknowledgedAt != nil {
		payload.AcknowledgedAt = escalation.AcknowledgedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

// RecordEngagementInput represents the MCP tool input for recording one
// shopper engagement event.
type RecordEngagementInput struct {
	EventID    string `json:"event_id" jsonschema:"unique event identifier used for replay detection"`
	LeadID     string `json:"lead_id" jsonschema:"lead identifier"`
	CustomerID string `json:"customer_id,omitempty" jsonschema:"customer identity for cross-lead stitching"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"conversation session identifier"`
	ActionKind string `json:"action_kind" jsonschema:"engagement action: viewed, compared, contacted_dealer, checked_availability, ran_financing, scheduled_test_drive, reserved, submitted_deposit"`
	OccurredAt string `json:"occurred_at,omitempty" jsonschema:"RFC3339 timestamp of the action (defaults to now)"`
}

// RecordEngagementResult represents the MCP tool output after an event is
// applied to the lead's profile.
type RecordEngagementResult struct {
	LeadID          string             `json:"lead_id" jsonschema:"canonical lead identifier after stitching"`
	CumulativeScore float64            `json:"cumulative_score" jsonschema:"intent score after the event"`
	Tier            string             `json:"tier" jsonschema:"intent tier after the event (cold, warm, hot)"`
	Replayed        bool               `json:"replayed" jsonschema:"true when the event id was already recorded and ignored"`
	Escalation      *EscalationPayload `json:"escalation,omitempty" jsonschema:"escalation emitted by an upward tier crossing, if any"`
}

// RecordEngagementTool defines the MCP tool schema for recording engagement.
func RecordEngagementTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "record_engagement",
		Description: "Records one shopper engagement event, updates the lead's intent score, and emits an escalation when a tier threshold is crossed. Duplicate event ids are ignored.",
	}
}

// RecordEngagementHandler executes an engagement recording request.
func RecordEngagementHandler(svc *funnel.Service) mcp.ToolHandlerFor[RecordEngagementInput, RecordEngagementResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RecordEngagementInput) (*mcp.CallToolResult, RecordEngagementResult, error) {
		var occurredAt time.Time
		if input.OccurredAt != "" {
			parsed, err := time.Parse(time.RFC3339, input.OccurredAt)
			if err != nil {
				return nil, RecordEngagementResult{}, fmt.Errorf("parse occurred_at: %w", err)
			}
			occurredAt = parsed
		}

		recorded, err := svc.RecordEngagement(ctx, funnel.RecordEngagementInput{
			EventID:    input.EventID,
			LeadID:     input.LeadID,
			CustomerID: input.CustomerID,
			SessionID:  input.SessionID,
			ActionKind: funnel.ActionKind(input.ActionKind),
			OccurredAt: occurredAt,
		})
		if err != nil {
			return nil, RecordEngagementResult{}, fmt.Errorf("record engagement failed: %w", err)
		}

		result := RecordEngagementResult{
			LeadID:          recorded.Profile.LeadID,
			CumulativeScore: recorded.Profile.CumulativeScore,
			Tier:            string(recorded.Profile.CurrentTier),
			Replayed:        recorded.Replayed,
		}
		if recorded.Escalation != nil {
			payload := toEscalationPayload(*recorded.Escalation)
			result.Escalation = &payload
		}
		return nil, result, nil
	}
}

// GetEscalationsInput represents the MCP tool input for listing escalations.
type GetEscalationsInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter over lead_id, tier_to, acknowledged, created_at"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum escalations per page"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous page"`
}

// GetEscalationsResult represents one page of escalation alerts.
type GetEscalationsResult struct {
	Escalations   []EscalationPayload `json:"escalations" jsonschema:"escalations newest first"`
	NextPageToken string              `json:"next_page_token,omitempty" jsonschema:"token for the next page, empty on the last page"`
}

// GetEscalationsTool defines the MCP tool schema for listing escalations.
func GetEscalationsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_escalations",
		Description: "Lists lead escalation alerts newest first, filterable by lead, target tier, and acknowledgement state.",
	}
}

// GetEscalationsHandler executes an escalation listing request.
func GetEscalationsHandler(svc *funnel.Service) mcp.ToolHandlerFor[GetEscalationsInput, GetEscalationsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetEscalationsInput) (*mcp.CallToolResult, GetEscalationsResult, error) {
		page, err := svc.GetEscalations(ctx, funnel.GetEscalationsInput{
			Filter:    input.Filter,
			PageSize:  input.PageSize,
			PageToken: input.PageToken,
		})
		if err != nil {
			return nil, GetEscalationsResult{}, fmt.Errorf("get escalations failed: %w", err)
		}

		result := GetEscalationsResult{
			Escalations:   make([]EscalationPayload, 0, len(page.Escalations)),
			NextPageToken: page.NextPageToken,
		}
		for _, escalation := range page.Escalations {
			result.Escalations = append(result.Escalations, toEscalationPayload(escalation))
		}
		return nil, result, nil
	}
}

// GetEscalationInput represents the MCP tool input for fetching one
// escalation.
type GetEscalationInput struct {
	EscalationID string `json:"escalation_id" jsonschema:"escalation identifier"`
}

// GetEscalationResult represents the fetched escalation.
type GetEscalationResult struct {
	Escalation EscalationPayload `json:"escalation" jsonschema:"the escalation record"`
}

// GetEscalationTool defines the MCP tool schema for fetching one escalation.
func GetEscalationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_escalation",
		Description: "Fetches one escalation alert by id, including its acknowledgement state.",
	}
}

// GetEscalationHandler executes an escalation lookup request.
func GetEscalationHandler(svc *funnel.Service) mcp.ToolHandlerFor[GetEscalationInput, GetEscalationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetEscalationInput) (*mcp.CallToolResult, GetEscalationResult, error) {
		escalation, err := svc.GetEscalation(ctx, input.EscalationID)
		if err != nil {
			if errors.Is(err, funnel.ErrNotFound) {
				return nil, GetEscalationResult{}, fmt.Errorf("escalation %q not found", input.EscalationID)
			}
			return nil, GetEscalationResult{}, fmt.Errorf("get escalation failed: %w", err)
		}
		return nil, GetEscalationResult{Escalation: toEscalationPayload(escalation)}, nil
	}
}

// AcknowledgeEscalationInput represents the MCP tool input for acknowledging
// one escalation.
type AcknowledgeEscalationInput struct {
	EscalationID string `json:"escalation_id" jsonschema:"escalation identifier"`
}

// AcknowledgeEscalationResult represents the acknowledged escalation.
type AcknowledgeEscalationResult struct {
	Escalation EscalationPayload `json:"escalation" jsonschema:"the acknowledged escalation record"`
}

// AcknowledgeEscalationTool defines the MCP tool schema for acknowledging an
// escalation.
func AcknowledgeEscalationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "acknowledge_escalation",
		Description: "Marks one escalation alert as acknowledged. Acknowledging an already-acknowledged alert returns the current record.",
	}
}

// AcknowledgeEscalationHandler executes an escalation acknowledgement request.
func AcknowledgeEscalationHandler(svc *funnel.Service) mcp.ToolHandlerFor[AcknowledgeEscalationInput, AcknowledgeEscalationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AcknowledgeEscalationInput) (*mcp.CallToolResult, AcknowledgeEscalationResult, error) {
		escalation, err := svc.AcknowledgeEscalation(ctx, input.EscalationID)
		if err != nil {
			if errors.Is(err, funnel.ErrNotFound) {
				return nil, AcknowledgeEscalationResult{}, fmt.Errorf("escalation %q not found", input.EscalationID)
			}
			return nil, AcknowledgeEscalationResult{}, fmt.Errorf("acknowledge escalation failed: %w", err)
		}
		return nil, AcknowledgeEscalationResult{Escalation: toEscalationPayload(escalation)}, nil
	}
}
