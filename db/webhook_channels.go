// ABOUTME: Database operations for the webhook_channels table
// ABOUTME: Tracks provider push-notification subscriptions and their expirations
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthfam/hearth/models"
)

// InsertWebhookChannel records a newly registered provider channel.
func InsertWebhookChannel(ctx context.Context, q DBTX, ch *models.WebhookChannel) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO webhook_channels (id, calendar_source_id, channel_id, resource_id, expiration, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, ch.ID, ch.SourceID, ch.ChannelID, ch.ResourceID, ch.Expiration.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert webhook channel: %w", err)
	}
	return nil
}

// DeleteWebhookChannel removes a channel row by its locally generated channel id.
func DeleteWebhookChannel(ctx context.Context, q DBTX, channelID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM webhook_channels WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook channel: %w", err)
	}
	return nil
}

// GetWebhookChannelByChannelID resolves an incoming push notification to its
// channel row (and from there to the owning calendar source).
func GetWebhookChannelByChannelID(ctx context.Context, q DBTX, channelID string) (*models.WebhookChannel, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, calendar_source_id, channel_id, resource_id, expiration, created_at
		FROM webhook_channels WHERE channel_id = ?
	`, channelID)
	return scanWebhookChannel(row)
}

// ListWebhookChannelsBySource returns all channels registered for a source.
func ListWebhookChannelsBySource(ctx context.Context, q DBTX, sourceID string) ([]*models.WebhookChannel, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, calendar_source_id, channel_id, resource_id, expiration, created_at
		FROM webhook_channels WHERE calendar_source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook channels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectWebhookChannels(rows)
}

// ListWebhookChannelsExpiringBefore returns channels whose provider-assigned
// expiration falls before the cutoff, the renewal candidates.
func ListWebhookChannelsExpiringBefore(ctx context.Context, q DBTX, cutoff time.Time) ([]*models.WebhookChannel, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, calendar_source_id, channel_id, resource_id, expiration, created_at
		FROM webhook_channels WHERE expiration < ?
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring webhook channels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectWebhookChannels(rows)
}

func scanWebhookChannel(row rowScanner) (*models.WebhookChannel, error) {
	var ch models.WebhookChannel
	err := row.Scan(&ch.ID, &ch.SourceID, &ch.ChannelID, &ch.ResourceID, &ch.Expiration, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook channel: %w", err)
	}
	return &ch, nil
}

func collectWebhookChannels(rows *sql.Rows) ([]*models.WebhookChannel, error) {
	var out []*models.WebhookChannel
	for rows.Next() {
		ch, err := scanWebhookChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
