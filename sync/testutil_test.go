// ABOUTME: Shared test fixtures for the sync package
// ABOUTME: Provides a fake Google Calendar API server, a fake provider client, and DB seeding helpers
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/vault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New("test-secret")
	require.NoError(t, err)
	return v
}

func seedSource(t *testing.T, database *sql.DB, v *vault.Vault, externalID string) *models.CalendarSource {
	t.Helper()
	ctx := context.Background()

	h := &models.Household{ID: models.NewID(), Name: "Test House"}
	require.NoError(t, db.CreateHousehold(ctx, database, h))

	encAccess, err := v.Encrypt("access-token")
	require.NoError(t, err)
	encRefresh, err := v.Encrypt("refresh-token")
	require.NoError(t, err)

	src := &models.CalendarSource{
		ID:           models.NewID(),
		HouseholdID:  h.ID,
		Provider:     models.ProviderGoogle,
		ExternalID:   externalID,
		Name:         "Family",
		Enabled:      true,
		AccessToken:  encAccess,
		RefreshToken: &encRefresh,
	}
	require.NoError(t, db.CreateCalendarSource(ctx, database, src))

	got, err := db.GetCalendarSource(ctx, database, src.ID)
	require.NoError(t, err)
	return got
}

// fakeProvider satisfies ProviderClient against a local fake API server.
type fakeProvider struct {
	endpoint string

	// rotate simulates a token refresh: ValidToken reports rotated=true with
	// this access token.
	rotate string

	// fail makes ValidToken return this error.
	fail error
}

func (f *fakeProvider) ValidToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error) {
	if f.fail != nil {
		return nil, false, f.fail
	}
	if f.rotate != "" {
		return &oauth2.Token{AccessToken: f.rotate, RefreshToken: tok.RefreshToken, Expiry: time.Now().Add(time.Hour)}, true, nil
	}
	return &oauth2.Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: time.Now().Add(time.Hour)}, false, nil
}

func (f *fakeProvider) Service(ctx context.Context, tok *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error) {
	return calendar.NewService(ctx,
		option.WithoutAuthentication(),
		option.WithEndpoint(f.endpoint),
	)
}

// fakeCalendarAPI serves a minimal slice of the Calendar v3 surface: paginated
// event listing with sync tokens, watch, and channel stop.
type fakeCalendarAPI struct {
	mu gosync.Mutex

	// fullPages are served when no syncToken is supplied, keyed by pageToken
	// ("" is the first page).
	fullPages map[string]*calendar.Events

	// incrementalPages are served per presented syncToken.
	incrementalPages map[string]*calendar.Events

	// rejectedTokens get a 410 Gone, forcing full-resync fallback.
	rejectedTokens map[string]bool

	listCalls      int
	watchCalls     int
	stopCalls      int
	stopStatus     int
	watchChannelID string
}

func newFakeCalendarAPI() *fakeCalendarAPI {
	return &fakeCalendarAPI{
		fullPages:        map[string]*calendar.Events{},
		incrementalPages: map[string]*calendar.Events{},
		rejectedTokens:   map[string]bool{},
		stopStatus:       http.StatusOK,
	}
}

func (f *fakeCalendarAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/events/watch"):
		f.watchCalls++
		var req calendar.Channel
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.watchChannelID = req.Id
		writeJSON(w, &calendar.Channel{
			Id:         req.Id,
			ResourceId: "resource-" + req.Id,
			Expiration: time.Now().Add(7 * 24 * time.Hour).UnixMilli(),
		})

	case strings.HasSuffix(r.URL.Path, "/channels/stop"):
		f.stopCalls++
		if f.stopStatus != http.StatusOK {
			http.Error(w, `{"error":{"code":404,"message":"Channel not found"}}`, f.stopStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case strings.Contains(r.URL.Path, "/events"):
		f.listCalls++
		q := r.URL.Query()
		if st := q.Get("syncToken"); st != "" {
			if f.rejectedTokens[st] {
				http.Error(w, `{"error":{"code":410,"message":"Sync token is no longer valid"}}`, http.StatusGone)
				return
			}
			page, ok := f.incrementalPages[st]
			if !ok {
				page = &calendar.Events{NextSyncToken: st}
			}
			writeJSON(w, page)
			return
		}
		page, ok := f.fullPages[q.Get("pageToken")]
		if !ok {
			page = &calendar.Events{NextSyncToken: "cursor-initial"}
		}
		writeJSON(w, page)

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func apiEvent(id, summary string, start time.Time) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Summary: summary,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
	}
}

func cancelledEvent(id string) *calendar.Event {
	return &calendar.Event{Id: id, Status: "cancelled"}
}
