// ABOUTME: Tests for calendar source routes, cron endpoints, and the webhook receiver
// ABOUTME: Includes the per-source rate limit budget and the sync-state acknowledgement path
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/gcal"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/sync"
)

func TestOnDemandSyncSucceeds(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)

	rec := f.do("POST", "/api/calendars/"+src.ID+"/sync", user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result sync.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.EventsUpserted)
	assert.Equal(t, []string{src.ID}, f.syncer.calls())
}

func TestOnDemandSyncRateLimit(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)

	for i := 1; i <= 5; i++ {
		rec := f.do("POST", "/api/calendars/"+src.ID+"/sync", user.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within budget", i)
	}
	rec := f.do("POST", "/api/calendars/"+src.ID+"/sync", user.ID, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "sixth request in the window is rejected")

	// Another calendar keeps its own budget.
	other := f.seedSource(t, user.HouseholdID, true)
	rec = f.do("POST", "/api/calendars/"+other.ID+"/sync", user.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOnDemandSyncErrorTaxonomy(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	stranger := f.seedUser(t) // separate household

	enabled := f.seedSource(t, user.HouseholdID, true)
	disabled := f.seedSource(t, user.HouseholdID, false)

	tests := []struct {
		name   string
		target string
		user   string
		want   int
	}{
		{"anonymous", "/api/calendars/" + enabled.ID + "/sync", "", http.StatusUnauthorized},
		{"unknown user", "/api/calendars/" + enabled.ID + "/sync", "nobody", http.StatusUnauthorized},
		{"unknown calendar", "/api/calendars/missing/sync", user.ID, http.StatusNotFound},
		{"other household", "/api/calendars/" + enabled.ID + "/sync", stranger.ID, http.StatusNotFound},
		{"disabled calendar", "/api/calendars/" + disabled.ID + "/sync", user.ID, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do("POST", tt.target, tt.user, nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Empty(t, f.syncer.calls(), "no failed request reached the engine")
}

func TestOnDemandSyncRevokedMapsToUnauthorized(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)
	f.syncer.result = sync.Result{Err: fmt.Errorf("refresh: %w", gcal.ErrTokenRevoked)}

	rec := f.do("POST", "/api/calendars/"+src.ID+"/sync", user.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListCalendarsScopedToHousehold(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	stranger := f.seedUser(t)
	f.seedSource(t, user.HouseholdID, true)
	f.seedSource(t, stranger.HouseholdID, true)

	rec := f.do("GET", "/api/calendars", user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sources []models.CalendarSource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, user.HouseholdID, sources[0].HouseholdID)
	assert.NotContains(t, rec.Body.String(), "access_token", "token material never leaves the API")
}

func TestUpdateCalendarTogglesChannels(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, false)

	rec := f.do("PATCH", "/api/calendars/"+src.ID, user.ID, strings.NewReader(`{"enabled":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{src.ID}, f.channels.registered, "enabling registers a webhook channel")

	stored, err := db.GetCalendarSource(context.Background(), f.db, src.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	rec = f.do("PATCH", "/api/calendars/"+src.ID, user.ID, strings.NewReader(`{"enabled":false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{src.ID}, f.channels.stopped, "disabling tears channels down")

	rec = f.do("PATCH", "/api/calendars/"+src.ID, user.ID, strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCalendarStopsChannels(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)

	rec := f.do("DELETE", "/api/calendars/"+src.ID, user.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{src.ID}, f.channels.stopped)

	_, err := db.GetCalendarSource(context.Background(), f.db, src.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCronEndpointsRequireBearerSecret(t *testing.T) {
	f := newFixture(t)
	f.syncer.summary = sync.Summary{CalendarsSynced: 3, TotalEventsUpserted: 7}
	f.channels.renewal = sync.RenewalSummary{Renewed: 2, Skipped: 1}

	for _, target := range []string{"/api/cron/sync", "/api/cron/renew-channels"} {
		rec := f.do("POST", target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s without secret", target)

		req := httptest.NewRequest("POST", target, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s with wrong secret", target)
	}

	req := httptest.NewRequest("POST", "/api/cron/sync", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"calendars_synced":3,"total_events_upserted":7,"total_events_deleted":0,"failures":0}`, rec.Body.String())

	req = httptest.NewRequest("POST", "/api/cron/renew-channels", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"renewed":2,"failed":0,"skipped":1}`, rec.Body.String())
}

func webhookRequest(channelID, state string) *http.Request {
	req := httptest.NewRequest("POST", "/webhooks/google-calendar", nil)
	if channelID != "" {
		req.Header.Set("X-Goog-Channel-ID", channelID)
	}
	if state != "" {
		req.Header.Set("X-Goog-Resource-State", state)
	}
	req.Header.Set("X-Goog-Resource-ID", "resource-1")
	return req
}

func TestWebhookSyncStateAcknowledgedWithoutSyncing(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)
	ch := &models.WebhookChannel{
		ID: models.NewID(), SourceID: src.ID, ChannelID: "chan-1", ResourceID: "res-1",
	}
	require.NoError(t, db.InsertWebhookChannel(context.Background(), f.db, ch))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, webhookRequest("chan-1", "sync"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.queue.enqueued(), "verification ping never dispatches work")
	assert.Empty(t, f.syncer.calls())
}

func TestWebhookMissingHeaders(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, webhookRequest("", "exists"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, webhookRequest("chan-1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownChannelAcknowledged(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, webhookRequest("never-registered", "exists"))

	assert.Equal(t, http.StatusOK, rec.Code, "unknown channels never bounce back to the provider")
	assert.Empty(t, f.queue.enqueued())
}

func TestWebhookEnqueuesSyncJob(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)
	require.NoError(t, db.InsertWebhookChannel(context.Background(), f.db, &models.WebhookChannel{
		ID: models.NewID(), SourceID: src.ID, ChannelID: "chan-1", ResourceID: "res-1",
	}))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, webhookRequest("chan-1", "exists"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{src.ID}, f.queue.enqueued())
}
