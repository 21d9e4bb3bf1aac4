// ABOUTME: Database operations for the events table
// ABOUTME: Upsert-by-external-id and delete primitives used by sync reconciliation
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthfam/hearth/models"
)

// UpsertEventByExternalID inserts or updates an event keyed by
// (calendar_source_id, external_id). The event's ID is only used on insert;
// updates keep the existing row id.
func UpsertEventByExternalID(ctx context.Context, q DBTX, ev *models.Event) error {
	if ev.ExternalID == nil || *ev.ExternalID == "" {
		return fmt.Errorf("event has no external id")
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO events
			(id, calendar_source_id, external_id, title, description, location,
			 starts_at, ends_at, all_day, recurrence_rule, raw_payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(calendar_source_id, external_id) WHERE external_id IS NOT NULL DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			all_day = excluded.all_day,
			recurrence_rule = excluded.recurrence_rule,
			raw_payload = excluded.raw_payload,
			updated_at = CURRENT_TIMESTAMP
	`, ev.ID, ev.SourceID, *ev.ExternalID, ev.Title, ev.Description, ev.Location,
		ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.AllDay, nullStringPtr(ev.RecurrenceRule), ev.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// DeleteEventByExternalID removes the event matching a provider cancellation.
// Returns false when no matching row existed (already gone is fine).
func DeleteEventByExternalID(ctx context.Context, q DBTX, sourceID, externalID string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM events WHERE calendar_source_id = ? AND external_id = ?
	`, sourceID, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertEvent stores a locally-originated event (display-created, mirrored
// after the provider write is acknowledged).
func InsertEvent(ctx context.Context, q DBTX, ev *models.Event) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO events
			(id, calendar_source_id, external_id, title, description, location,
			 starts_at, ends_at, all_day, recurrence_rule, raw_payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, ev.ID, ev.SourceID, nullStringPtr(ev.ExternalID), ev.Title, ev.Description, ev.Location,
		ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.AllDay, nullStringPtr(ev.RecurrenceRule), ev.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// CountEventsBySource returns the number of events held for a source.
func CountEventsBySource(ctx context.Context, q DBTX, sourceID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE calendar_source_id = ?
	`, sourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ListEventsByHousehold returns events from all enabled sources of a
// household overlapping [from, to), ordered by start time. Feeds the kiosk
// display and the ICS export.
func ListEventsByHousehold(ctx context.Context, q DBTX, householdID string, from, to time.Time) ([]*models.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.calendar_source_id, e.external_id, e.title, e.description, e.location,
		       e.starts_at, e.ends_at, e.all_day, e.recurrence_rule, e.raw_payload,
		       e.created_at, e.updated_at
		FROM events e
		JOIN calendar_sources cs ON cs.id = e.calendar_source_id
		WHERE cs.household_id = ? AND cs.enabled = 1
		  AND e.ends_at >= ? AND e.starts_at < ?
		ORDER BY e.starts_at
	`, householdID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetEventByExternalID fetches one event by its provider id within a source.
func GetEventByExternalID(ctx context.Context, q DBTX, sourceID, externalID string) (*models.Event, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, calendar_source_id, external_id, title, description, location,
		       starts_at, ends_at, all_day, recurrence_rule, raw_payload, created_at, updated_at
		FROM events WHERE calendar_source_id = ? AND external_id = ?
	`, sourceID, externalID)
	return scanEvent(row)
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var externalID, recurrenceRule sql.NullString

	err := row.Scan(&ev.ID, &ev.SourceID, &externalID, &ev.Title, &ev.Description, &ev.Location,
		&ev.StartsAt, &ev.EndsAt, &ev.AllDay, &recurrenceRule, &ev.RawPayload,
		&ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if externalID.Valid {
		ev.ExternalID = &externalID.String
	}
	if recurrenceRule.Valid {
		ev.RecurrenceRule = &recurrenceRule.String
	}
	return &ev, nil
}
