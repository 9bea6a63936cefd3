// Package sqlite provides SQLite-backed persistence for lead funnel state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/drivelane/drivelane/internal/funnel/storage"
	"github.com/drivelane/drivelane/internal/funnel/storage/filter"
	"github.com/drivelane/drivelane/internal/funnel/storage/sqlite/migrations"
	"github.com/drivelane/drivelane/internal/platform/storage/cursor"
	sqlitemigrate "github.com/drivelane/drivelane/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for funnel state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a funnel SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutEngagementEvent inserts one immutable engagement event row.
func (s *Store) PutEngagementEvent(ctx context.Context, record storage.EngagementEventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeEventRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO engagement_events (
	id, lead_id, customer_id, session_id, action_kind, occurred_at, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.LeadID,
		normalized.CustomerID,
		normalized.SessionID,
		normalized.ActionKind,
		toMillis(normalized.OccurredAt),
		toMillis(normalized.RecordedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put engagement event: %w", err)
	}
	return nil
}

// HasEngagementEvent reports whether an event id was already recorded.
func (s *Store) HasEngagementEvent(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("event id is required")
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM engagement_events WHERE id = ?
`, eventID).Scan(&count); err != nil {
		return false, fmt.Errorf("check engagement event: %w", err)
	}
	return count > 0, nil
}

// GetLeadProfile returns one lead profile row.
func (s *Store) GetLeadProfile(ctx context.Context, leadID string) (storage.LeadProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LeadProfileRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LeadProfileRecord{}, fmt.Errorf("storage is not configured")
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return storage.LeadProfileRecord{}, fmt.Errorf("lead id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT lead_id, customer_id, session_ids_json, cumulative_score, current_tier, merged_into, created_at, updated_at
FROM lead_profiles
WHERE lead_id = ?
`, leadID)
	record, err := scanLeadProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LeadProfileRecord{}, storage.ErrNotFound
		}
		return storage.LeadProfileRecord{}, fmt.Errorf("get lead profile: %w", err)
	}
	return record, nil
}

// ListLeadProfilesByCustomer lists profiles for one customer oldest-first.
func (s *Store) ListLeadProfilesByCustomer(ctx context.Context, customerID string) ([]storage.LeadProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT lead_id, customer_id, session_ids_json, cumulative_score, current_tier, merged_into, created_at, updated_at
FROM lead_profiles
WHERE customer_id = ?
ORDER BY created_at ASC, lead_id ASC
`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list lead profiles: %w", err)
	}
	defer rows.Close()

	var records []storage.LeadProfileRecord
	for rows.Next() {
		record, err := scanLeadProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan lead profile row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead profile rows: %w", err)
	}
	return records, nil
}

// PutLeadProfile upserts one lead profile row.
func (s *Store) PutLeadProfile(ctx context.Context, record storage.LeadProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeLeadProfileRecord(record)
	if err != nil {
		return err
	}
	return putLeadProfileExec(ctx, s.sqlDB, normalized)
}

// MergeLeadProfiles atomically upserts the canonical profile, points the
// absorbed lead at it, and reassigns the absorbed lead's events.
func (s *Store) MergeLeadProfiles(ctx context.Context, canonical storage.LeadProfileRecord, mergedLeadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	mergedLeadID = strings.TrimSpace(mergedLeadID)
	if mergedLeadID == "" {
		return fmt.Errorf("merged lead id is required")
	}
	normalized, err := normalizeLeadProfileRecord(canonical)
	if err != nil {
		return err
	}
	if mergedLeadID == normalized.LeadID {
		return fmt.Errorf("lead cannot merge into itself")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lead merge write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback lead merge write: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := putLeadProfileExec(ctx, tx, normalized); err != nil {
		return rollbackWith(err)
	}
	result, err := tx.ExecContext(ctx, `
UPDATE lead_profiles
SET merged_into = ?, updated_at = ?
WHERE lead_id = ?
`, normalized.LeadID, toMillis(normalized.UpdatedAt), mergedLeadID)
	if err != nil {
		return rollbackWith(fmt.Errorf("mark lead merged: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rollbackWith(fmt.Errorf("mark lead merged rows affected: %w", err))
	}
	if affected == 0 {
		return rollbackWith(storage.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE engagement_events
SET lead_id = ?
WHERE lead_id = ?
`, normalized.LeadID, mergedLeadID); err != nil {
		return rollbackWith(fmt.Errorf("reassign merged lead events: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lead merge write: %w", err)
	}
	return nil
}

// CreateEscalation inserts one escalation row unless an unacknowledged
// escalation already exists for the same lead and target tier. The dedup is
// enforced by a partial unique index so racing crossings resolve to one row.
func (s *Store) CreateEscalation(ctx context.Context, record storage.EscalationRecord) (storage.EscalationRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.EscalationRecord{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EscalationRecord{}, false, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeEscalationRecord(record)
	if err != nil {
		return storage.EscalationRecord{}, false, err
	}

	var acknowledgedAt sql.NullInt64
	if normalized.AcknowledgedAt != nil {
		acknowledgedAt = sql.NullInt64{Int64: toMillis(*normalized.AcknowledgedAt), Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO escalations (
	id, lead_id, tier_from, tier_to, triggering_event_id, created_at, acknowledged, acknowledged_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.LeadID,
		normalized.TierFrom,
		normalized.TierTo,
		normalized.TriggeringEventID,
		toMillis(normalized.CreatedAt),
		boolToInt(normalized.Acknowledged),
		acknowledgedAt,
	)
	if err == nil {
		return normalized, true, nil
	}
	if !isUniqueConstraintError(err) {
		return storage.EscalationRecord{}, false, fmt.Errorf("create escalation: %w", err)
	}

	existing, lookupErr := s.getOpenEscalation(ctx, normalized.LeadID, normalized.TierTo)
	if lookupErr != nil {
		if errors.Is(lookupErr, storage.ErrNotFound) {
			// The open alert was acknowledged between insert and lookup.
			return storage.EscalationRecord{}, false, storage.ErrConflict
		}
		return storage.EscalationRecord{}, false, lookupErr
	}
	return existing, false, nil
}

// GetEscalation returns one escalation row.
func (s *Store) GetEscalation(ctx context.Context, id string) (storage.EscalationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EscalationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EscalationRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.EscalationRecord{}, fmt.Errorf("escalation id is required")
	}
	return s.getEscalationByID(ctx, id)
}

// AcknowledgeEscalation marks one escalation row acknowledged. Acknowledging
// an already-acknowledged row is a no-op returning the current record.
func (s *Store) AcknowledgeEscalation(ctx context.Context, id string, acknowledgedAt time.Time) (storage.EscalationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EscalationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EscalationRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.EscalationRecord{}, fmt.Errorf("escalation id is required")
	}
	if acknowledgedAt.IsZero() {
		return storage.EscalationRecord{}, fmt.Errorf("acknowledged at is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE escalations
SET acknowledged = 1, acknowledged_at = ?
WHERE id = ? AND acknowledged = 0
`, toMillis(acknowledgedAt.UTC()), id); err != nil {
		return storage.EscalationRecord{}, fmt.Errorf("acknowledge escalation: %w", err)
	}
	return s.getEscalationByID(ctx, id)
}

// ListEscalations lists escalations newest-first with cursor pagination. The
// filter string supports lead_id, tier_from, tier_to, acknowledged, and
// created_at fields.
func (s *Store) ListEscalations(ctx context.Context, filterStr string, pageSize int, pageToken string) (storage.EscalationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.EscalationPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EscalationPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.EscalationPage{}, fmt.Errorf("page size must be greater than zero")
	}
	filterStr = strings.TrimSpace(filterStr)
	pageToken = strings.TrimSpace(pageToken)

	condition, err := filter.ParseEscalationFilter(filterStr)
	if err != nil {
		return storage.EscalationPage{}, fmt.Errorf("parse escalation filter: %w", err)
	}

	var clauses []string
	var params []any
	if condition.Clause != "" {
		clauses = append(clauses, condition.Clause)
		params = append(params, condition.Params...)
	}
	if pageToken != "" {
		c, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.EscalationPage{}, fmt.Errorf("invalid page token: %w", err)
		}
		if err := cursor.ValidateFilterHash(c, filterStr); err != nil {
			return storage.EscalationPage{}, fmt.Errorf("invalid page token: %w", err)
		}
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		params = append(params, c.CreatedAtMillis, c.CreatedAtMillis, c.ID)
	}

	query := `
SELECT id, lead_id, tier_from, tier_to, triggering_event_id, created_at, acknowledged, acknowledged_at
FROM escalations
`
	if len(clauses) > 0 {
		query += "WHERE " + strings.Join(clauses, " AND ") + "\n"
	}
	query += "ORDER BY created_at DESC, id DESC\nLIMIT ?"
	params = append(params, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return storage.EscalationPage{}, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	page := storage.EscalationPage{
		Escalations: make([]storage.EscalationRecord, 0, pageSize),
	}
	for rows.Next() {
		record, err := scanEscalation(rows.Scan)
		if err != nil {
			return storage.EscalationPage{}, fmt.Errorf("scan escalation row: %w", err)
		}
		page.Escalations = append(page.Escalations, record)
	}
	if err := rows.Err(); err != nil {
		return storage.EscalationPage{}, fmt.Errorf("iterate escalation rows: %w", err)
	}
	if len(page.Escalations) > pageSize {
		page.Escalations = page.Escalations[:pageSize]
		last := page.Escalations[pageSize-1]
		token, err := cursor.Encode(cursor.NewNextPageCursor(toMillis(last.CreatedAt), last.ID, filterStr))
		if err != nil {
			return storage.EscalationPage{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (s *Store) getOpenEscalation(ctx context.Context, leadID string, tierTo string) (storage.EscalationRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, lead_id, tier_from, tier_to, triggering_event_id, created_at, acknowledged, acknowledged_at
FROM escalations
WHERE lead_id = ? AND tier_to = ? AND acknowledged = 0
`, leadID, tierTo)
	record, err := scanEscalation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EscalationRecord{}, storage.ErrNotFound
		}
		return storage.EscalationRecord{}, fmt.Errorf("get open escalation: %w", err)
	}
	return record, nil
}

func (s *Store) getEscalationByID(ctx context.Context, id string) (storage.EscalationRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, lead_id, tier_from, tier_to, triggering_event_id, created_at, acknowledged, acknowledged_at
FROM escalations
WHERE id = ?
`, id)
	record, err := scanEscalation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EscalationRecord{}, storage.ErrNotFound
		}
		return storage.EscalationRecord{}, fmt.Errorf("get escalation by id: %w", err)
	}
	return record, nil
}

type scanner func(dest ...any) error

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func normalizeEventRecord(record storage.EngagementEventRecord) (storage.EngagementEventRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.LeadID = strings.TrimSpace(record.LeadID)
	record.CustomerID = strings.TrimSpace(record.CustomerID)
	record.SessionID = strings.TrimSpace(record.SessionID)
	record.ActionKind = strings.TrimSpace(record.ActionKind)
	if record.ID == "" {
		return storage.EngagementEventRecord{}, fmt.Errorf("event id is required")
	}
	if record.LeadID == "" {
		return storage.EngagementEventRecord{}, fmt.Errorf("lead id is required")
	}
	if record.ActionKind == "" {
		return storage.EngagementEventRecord{}, fmt.Errorf("action kind is required")
	}
	if record.OccurredAt.IsZero() {
		return storage.EngagementEventRecord{}, fmt.Errorf("occurred_at is required")
	}
	if record.RecordedAt.IsZero() {
		return storage.EngagementEventRecord{}, fmt.Errorf("recorded_at is required")
	}
	record.OccurredAt = record.OccurredAt.UTC()
	record.RecordedAt = record.RecordedAt.UTC()
	return record, nil
}

func normalizeLeadProfileRecord(record storage.LeadProfileRecord) (storage.LeadProfileRecord, error) {
	record.LeadID = strings.TrimSpace(record.LeadID)
	record.CustomerID = strings.TrimSpace(record.CustomerID)
	record.CurrentTier = strings.TrimSpace(record.CurrentTier)
	record.MergedInto = strings.TrimSpace(record.MergedInto)
	if record.LeadID == "" {
		return storage.LeadProfileRecord{}, fmt.Errorf("lead id is required")
	}
	if record.CurrentTier == "" {
		return storage.LeadProfileRecord{}, fmt.Errorf("current tier is required")
	}
	if record.CumulativeScore < 0 {
		return storage.LeadProfileRecord{}, fmt.Errorf("cumulative score must not be negative")
	}
	if record.CreatedAt.IsZero() {
		return storage.LeadProfileRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.LeadProfileRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeEscalationRecord(record storage.EscalationRecord) (storage.EscalationRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.LeadID = strings.TrimSpace(record.LeadID)
	record.TierFrom = strings.TrimSpace(record.TierFrom)
	record.TierTo = strings.TrimSpace(record.TierTo)
	record.TriggeringEventID = strings.TrimSpace(record.TriggeringEventID)
	if record.ID == "" {
		return storage.EscalationRecord{}, fmt.Errorf("escalation id is required")
	}
	if record.LeadID == "" {
		return storage.EscalationRecord{}, fmt.Errorf("lead id is required")
	}
	if record.TierFrom == "" || record.TierTo == "" {
		return storage.EscalationRecord{}, fmt.Errorf("tier crossing is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.EscalationRecord{}, fmt.Errorf("created_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	if record.AcknowledgedAt != nil {
		acknowledgedAt := record.AcknowledgedAt.UTC()
		record.AcknowledgedAt = &acknowledgedAt
	}
	return record, nil
}

func putLeadProfileExec(ctx context.Context, execer sqlExecer, record storage.LeadProfileRecord) error {
	sessionsJSON, err := json.Marshal(record.SessionIDs)
	if err != nil {
		return fmt.Errorf("marshal session ids: %w", err)
	}
	if record.SessionIDs == nil {
		sessionsJSON = []byte("[]")
	}

	_, err = execer.ExecContext(ctx, `
INSERT INTO lead_profiles (
	lead_id, customer_id, session_ids_json, cumulative_score, current_tier, merged_into, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(lead_id) DO UPDATE SET
	customer_id = excluded.customer_id,
	session_ids_json = excluded.session_ids_json,
	cumulative_score = excluded.cumulative_score,
	current_tier = excluded.current_tier,
	merged_into = excluded.merged_into,
	updated_at = excluded.updated_at
`,
		record.LeadID,
		record.CustomerID,
		string(sessionsJSON),
		record.CumulativeScore,
		record.CurrentTier,
		record.MergedInto,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put lead profile: %w", err)
	}
	return nil
}

func scanLeadProfile(scan scanner) (storage.LeadProfileRecord, error) {
	var record storage.LeadProfileRecord
	var sessionsJSON string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.LeadID,
		&record.CustomerID,
		&sessionsJSON,
		&record.CumulativeScore,
		&record.CurrentTier,
		&record.MergedInto,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.LeadProfileRecord{}, err
	}
	if sessionsJSON != "" && sessionsJSON != "[]" {
		if err := json.Unmarshal([]byte(sessionsJSON), &record.SessionIDs); err != nil {
			return storage.LeadProfileRecord{}, fmt.Errorf("unmarshal session ids: %w", err)
		}
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanEscalation(scan scanner) (storage.EscalationRecord, error) {
	var record storage.EscalationRecord
	var createdAt int64
	var acknowledged int
	var acknowledgedAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.LeadID,
		&record.TierFrom,
		&record.TierTo,
		&record.TriggeringEventID,
		&createdAt,
		&acknowledged,
		&acknowledgedAt,
	); err != nil {
		return storage.EscalationRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.Acknowledged = acknowledged != 0
	if acknowledgedAt.Valid {
		value := fromMillis(acknowledgedAt.Int64)
		record.AcknowledgedAt = &value
	}
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}
