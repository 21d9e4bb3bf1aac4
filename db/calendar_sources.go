// ABOUTME: Database operations for the calendar_sources table
// ABOUTME: Manages connected remote calendars, their encrypted tokens, and sync cursors
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthfam/hearth/models"
)

// CreateCalendarSource inserts a new calendar source row. Token fields are
// expected to already be vault ciphertext.
func CreateCalendarSource(ctx context.Context, q DBTX, src *models.CalendarSource) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO calendar_sources
			(id, household_id, provider, external_id, name, color, enabled, access_token, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, src.ID, src.HouseholdID, src.Provider, src.ExternalID, src.Name,
		nullString(src.Color), src.Enabled, src.AccessToken, nullStringPtr(src.RefreshToken))
	if err != nil {
		return fmt.Errorf("failed to create calendar source: %w", err)
	}
	return nil
}

// GetCalendarSource fetches one calendar source by id.
func GetCalendarSource(ctx context.Context, q DBTX, id string) (*models.CalendarSource, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, household_id, provider, external_id, name, color, enabled,
		       access_token, refresh_token, sync_token, last_synced_at, created_at, updated_at
		FROM calendar_sources WHERE id = ?
	`, id)
	return scanCalendarSource(row)
}

// GetCalendarSourceByExternalID finds a source by its provider calendar id
// within a household, used to avoid duplicate rows on repeated OAuth flows.
func GetCalendarSourceByExternalID(ctx context.Context, q DBTX, householdID, provider, externalID string) (*models.CalendarSource, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, household_id, provider, external_id, name, color, enabled,
		       access_token, refresh_token, sync_token, last_synced_at, created_at, updated_at
		FROM calendar_sources WHERE household_id = ? AND provider = ? AND external_id = ?
	`, householdID, provider, externalID)
	return scanCalendarSource(row)
}

// ListCalendarSources returns all sources belonging to a household.
func ListCalendarSources(ctx context.Context, q DBTX, householdID string) ([]*models.CalendarSource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, household_id, provider, external_id, name, color, enabled,
		       access_token, refresh_token, sync_token, last_synced_at, created_at, updated_at
		FROM calendar_sources WHERE household_id = ? ORDER BY name
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectCalendarSources(rows)
}

// ListEnabledCalendarSources returns every enabled source that has a refresh
// token, i.e. everything eligible for unattended sync and push channels.
func ListEnabledCalendarSources(ctx context.Context, q DBTX) ([]*models.CalendarSource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, household_id, provider, external_id, name, color, enabled,
		       access_token, refresh_token, sync_token, last_synced_at, created_at, updated_at
		FROM calendar_sources
		WHERE enabled = 1 AND refresh_token IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled calendar sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectCalendarSources(rows)
}

// ListStaleCalendarSources returns enabled sources never synced or last
// synced before the cutoff. Sources without a refresh token cannot be synced
// unattended and are excluded.
func ListStaleCalendarSources(ctx context.Context, q DBTX, cutoff time.Time) ([]*models.CalendarSource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, household_id, provider, external_id, name, color, enabled,
		       access_token, refresh_token, sync_token, last_synced_at, created_at, updated_at
		FROM calendar_sources
		WHERE enabled = 1
		  AND refresh_token IS NOT NULL
		  AND (last_synced_at IS NULL OR last_synced_at < ?)
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calendar sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectCalendarSources(rows)
}

// UpdateCalendarSourceTokens replaces the stored (encrypted) token material,
// used after a refresh-token rotation.
func UpdateCalendarSourceTokens(ctx context.Context, q DBTX, id, accessToken string, refreshToken *string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE calendar_sources
		SET access_token = ?, refresh_token = COALESCE(?, refresh_token), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, accessToken, nullStringPtr(refreshToken), id)
	if err != nil {
		return fmt.Errorf("failed to update calendar source tokens: %w", err)
	}
	return nil
}

// UpdateCalendarSourceSyncState stores the new sync cursor and advances
// last_synced_at. Called even when a sync produced zero changes, so
// staleness-based scheduling moves on.
func UpdateCalendarSourceSyncState(ctx context.Context, q DBTX, id, syncToken string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE calendar_sources
		SET sync_token = ?, last_synced_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, syncToken, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

// SetCalendarSourceEnabled toggles automated sync for a source.
func SetCalendarSourceEnabled(ctx context.Context, q DBTX, id string, enabled bool) error {
	res, err := q.ExecContext(ctx, `
		UPDATE calendar_sources SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update calendar source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCalendarSourceDisconnected disables a source and clears its cursor.
// Used when the provider reports the refresh token revoked: the source needs
// user re-authorization, and the next sync after reconnect must be full.
func MarkCalendarSourceDisconnected(ctx context.Context, q DBTX, id string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE calendar_sources
		SET enabled = 0, sync_token = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark calendar source disconnected: %w", err)
	}
	return nil
}

// DeleteCalendarSource removes a source. Events and webhook channel rows
// cascade via foreign keys.
func DeleteCalendarSource(ctx context.Context, q DBTX, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM calendar_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete calendar source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalendarSource(row rowScanner) (*models.CalendarSource, error) {
	var src models.CalendarSource
	var color, refreshToken, syncToken sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(&src.ID, &src.HouseholdID, &src.Provider, &src.ExternalID, &src.Name,
		&color, &src.Enabled, &src.AccessToken, &refreshToken, &syncToken,
		&lastSyncedAt, &src.CreatedAt, &src.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan calendar source: %w", err)
	}

	if color.Valid {
		src.Color = color.String
	}
	if refreshToken.Valid {
		src.RefreshToken = &refreshToken.String
	}
	if syncToken.Valid {
		src.SyncToken = &syncToken.String
	}
	if lastSyncedAt.Valid {
		src.LastSyncedAt = &lastSyncedAt.Time
	}

	return &src, nil
}

func collectCalendarSources(rows *sql.Rows) ([]*models.CalendarSource, error) {
	var out []*models.CalendarSource
	for rows.Next() {
		src, err := scanCalendarSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
