// ABOUTME: Webhook channel manager for provider push notifications
// ABOUTME: Registers, renews, and tears down notification channels so changes arrive without polling
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/vault"
)

// renewalHorizon is how far ahead of a channel's expiration it gets replaced.
const renewalHorizon = 24 * time.Hour

// ChannelManager owns the lifecycle of provider push-notification channels.
type ChannelManager struct {
	db          *sql.DB
	vault       *vault.Vault
	provider    ProviderClient
	callbackURL string
	logger      *slog.Logger
	apiOpts     []option.ClientOption
}

// NewChannelManager creates a channel manager delivering notifications to
// callbackURL.
func NewChannelManager(database *sql.DB, v *vault.Vault, provider ProviderClient, callbackURL string, logger *slog.Logger, opts ...option.ClientOption) *ChannelManager {
	return &ChannelManager{db: database, vault: v, provider: provider, callbackURL: callbackURL, logger: logger, apiOpts: opts}
}

// Register creates a new push channel against the source's event feed and
// persists the provider-assigned resource id and expiration.
func (m *ChannelManager) Register(ctx context.Context, src *models.CalendarSource) (*models.WebhookChannel, error) {
	svc, err := serviceFor(ctx, m.db, m.vault, m.provider, src, m.apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", src.ID, err)
	}

	channelID := uuid.NewString()
	req := &calendar.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: m.callbackURL,
	}

	got, err := svc.Events.Watch(src.ExternalID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar %s: failed to register webhook channel: %w", src.ID, err)
	}

	ch := &models.WebhookChannel{
		ID:         models.NewID(),
		SourceID:   src.ID,
		ChannelID:  channelID,
		ResourceID: got.ResourceId,
		Expiration: time.UnixMilli(got.Expiration).UTC(),
	}
	if err := db.InsertWebhookChannel(ctx, m.db, ch); err != nil {
		return nil, fmt.Errorf("calendar %s: %w", src.ID, err)
	}

	m.logger.Info("webhook channel registered",
		"source_id", src.ID, "channel_id", channelID, "expiration", ch.Expiration)
	return ch, nil
}

// Stop deregisters a channel with the provider and removes the local row.
// "Already gone" responses from the provider are fine; the local row is
// deleted regardless.
func (m *ChannelManager) Stop(ctx context.Context, src *models.CalendarSource, channelID, resourceID string) error {
	svc, err := serviceFor(ctx, m.db, m.vault, m.provider, src, m.apiOpts...)
	if err == nil {
		stopErr := svc.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
		if stopErr != nil && !isGone(stopErr) {
			m.logger.Warn("failed to stop webhook channel with provider",
				"source_id", src.ID, "channel_id", channelID, "error", stopErr)
		}
	} else {
		m.logger.Warn("skipping provider channel stop, no usable token",
			"source_id", src.ID, "channel_id", channelID, "error", err)
	}

	return db.DeleteWebhookChannel(ctx, m.db, channelID)
}

// StopAll tears down every channel of a source, used during calendar
// disconnection. Failures are logged and never block the caller: deleting the
// calendar source is not contingent on provider-side cleanup.
func (m *ChannelManager) StopAll(ctx context.Context, src *models.CalendarSource) {
	channels, err := db.ListWebhookChannelsBySource(ctx, m.db, src.ID)
	if err != nil {
		m.logger.Error("failed to list webhook channels for teardown", "source_id", src.ID, "error", err)
		return
	}

	for _, ch := range channels {
		if err := m.Stop(ctx, src, ch.ChannelID, ch.ResourceID); err != nil {
			m.logger.Warn("webhook channel teardown failed",
				"source_id", src.ID, "channel_id", ch.ChannelID, "error", err)
		}
	}
}

// RenewalSummary aggregates one renewal pass.
type RenewalSummary struct {
	Renewed int `json:"renewed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

/// RenewExpiring replaces channels expiring within the renewal horizon:
// stop-then-register per channel. If the register half fails after a
// successful stop, the channel is simply absent and a later pass re-creates
// it, so renewal never duplicates channels. Channels owned by disabled or
// token-less sources are deleted instead of renewed. Enabled sources with no
// channel at all get one registered, which is what heals the failure case.
func (m *ChannelManager) RenewExpiring(ctx context.Context) RenewalSummary {
	var summary RenewalSummary

	expiring, err := db.ListWebhookChannelsExpiringBefore(ctx, m.db, time.Now().Add(renewalHorizon))
	if err != nil {
		m.logger.Error("failed to list expiring webhook channels", "error", err)
		summary.Failed++
		return summary
	}

	for _, ch := range expiring {
		src, err := db.GetCalendarSource(ctx, m.db, ch.SourceID)
		if err != nil {
			// Orphaned row; drop it.
			_ = db.DeleteWebhookChannel(ctx, m.db, ch.ChannelID)
			summary.Skipped++
			continue
		}

		if !src.Enabled || src.RefreshToken == nil {
			if err := m.Stop(ctx, src, ch.ChannelID, ch.ResourceID); err != nil {
				m.logger.Warn("failed to drop channel of inactive source",
					"source_id", src.ID, "channel_id", ch.ChannelID, "error", err)
			}
			summary.Skipped++
			continue
		}

		if err := m.Stop(ctx, src, ch.ChannelID, ch.ResourceID); err != nil {
			m.logger.Warn("renewal stop failed", "source_id", src.ID, "channel_id", ch.ChannelID, "error", err)
			summary.Failed++
			continue
		}
		if _, err := m.Register(ctx, src); err != nil {
			m.logger.Error("renewal registration failed", "source_id", src.ID, "error", err)
			summary.Failed++
			continue
		}
		summary.Renewed++
	}

	// Re-create channels for enabled sources left without one (e.g. after a
	// failed renewal on a previous pass).
	healed, failed := m.registerMissing(ctx)
	summary.Renewed += healed
	summary.Failed += failed

	return summary
}

func (m *ChannelManager) registerMissing(ctx context.Context) (renewed, failed int) {
	sources, err := db.ListEnabledCalendarSources(ctx, m.db)
	if err != nil {
		m.logger.Error("failed to list sources for channel healing", "error", err)
		return 0, 1
	}

	for _, src := range sources {
		channels, err := db.ListWebhookChannelsBySource(ctx, m.db, src.ID)
		if err != nil || len(channels) > 0 {
			continue
		}
		if _, err := m.Register(ctx, src); err != nil {
			m.logger.Error("channel healing registration failed", "source_id", src.ID, "error", err)
			failed++
			continue
		}
		renewed++
	}
	return renewed, failed
}

// isGone reports provider responses meaning the channel no longer exists.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
