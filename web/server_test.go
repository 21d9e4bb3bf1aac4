// ABOUTME: Shared test fixture for the HTTP layer
// ABOUTME: Collaborator fakes record calls; the database, vault, and chore service are real
package web

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/chores"
	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/sync"
	"github.com/hearthfam/hearth/vault"
)

type fixture struct {
	t        *testing.T
	db       *sql.DB
	vault    *vault.Vault
	syncer   *fakeSyncer
	channels *fakeChannels
	queue    *fakeQueue
	oauth    *fakeOAuth
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	v, err := vault.New("test-secret")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		t:        t,
		db:       database,
		vault:    v,
		syncer:   &fakeSyncer{result: sync.Result{Success: true, EventsUpserted: 2}},
		channels: &fakeChannels{},
		queue:    &fakeQueue{},
		oauth:    &fakeOAuth{},
	}

	srv := NewServer(Options{
		DB:         database,
		Vault:      v,
		OAuth:      f.oauth,
		Syncer:     f.syncer,
		Channels:   f.channels,
		Queue:      f.queue,
		Limiter:    sync.NewWindowLimiter(5, time.Minute),
		Chores:     chores.NewService(database, logger),
		CronSecret: "cron-secret",
		StaleAfter: 5 * time.Minute,
		Logger:     logger,
	})
	f.handler = srv.Handler()
	return f
}

func (f *fixture) seedUser(t *testing.T) *models.User {
	t.Helper()
	ctx := context.Background()
	h := &models.Household{ID: models.NewID(), Name: "Test House"}
	require.NoError(t, db.CreateHousehold(ctx, f.db, h))
	u := &models.User{ID: models.NewID(), HouseholdID: h.ID, Name: "Robin", Email: "robin@example.com"}
	require.NoError(t, db.CreateUser(ctx, f.db, u))
	return u
}

func (f *fixture) seedSource(t *testing.T, householdID string, enabled bool) *models.CalendarSource {
	t.Helper()
	access, err := f.vault.Encrypt("access-token")
	require.NoError(t, err)
	refresh, err := f.vault.Encrypt("refresh-token")
	require.NoError(t, err)

	src := &models.CalendarSource{
		ID:           models.NewID(),
		HouseholdID:  householdID,
		Provider:     models.ProviderGoogle,
		ExternalID:   "remote-" + models.NewID(),
		Name:         "Family",
		Enabled:      enabled,
		AccessToken:  access,
		RefreshToken: &refresh,
	}
	require.NoError(t, db.CreateCalendarSource(context.Background(), f.db, src))
	return src
}

// do runs a request through the handler as the given user ("" for anonymous).
func (f *fixture) do(method, target, userID string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req.Header.Set("X-Hearth-User", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type fakeSyncer struct {
	mu      gosync.Mutex
	synced  []string
	result  sync.Result
	summary sync.Summary
}

func (f *fakeSyncer) SyncSource(ctx context.Context, src *models.CalendarSource) sync.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, src.ID)
	return f.result
}

func (f *fakeSyncer) SyncStale(ctx context.Context, threshold time.Duration) sync.Summary {
	return f.summary
}

func (f *fakeSyncer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synced...)
}

type fakeChannels struct {
	mu          gosync.Mutex
	registered  []string
	stopped     []string
	renewal     sync.RenewalSummary
	registerErr error
}

func (f *fakeChannels) Register(ctx context.Context, src *models.CalendarSource) (*models.WebhookChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, src.ID)
	return &models.WebhookChannel{ID: models.NewID(), SourceID: src.ID}, nil
}

func (f *fakeChannels) StopAll(ctx context.Context, src *models.CalendarSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, src.ID)
}

func (f *fakeChannels) RenewExpiring(ctx context.Context) sync.RenewalSummary {
	return f.renewal
}

type fakeQueue struct {
	mu   gosync.Mutex
	jobs []string
}

func (f *fakeQueue) Enqueue(sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, sourceID)
	return nil
}

func (f *fakeQueue) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.jobs...)
}

// fakeOAuth stands in for the gcal client. Service builds a real calendar
// client against endpoint, so callback tests can serve a fake calendar list.
type fakeOAuth struct {
	exchangeTok *oauth2.Token
	exchangeErr error
	endpoint    string
}

func (f *fakeOAuth) AuthURL(state string, scopes ...string) string {
	return "https://accounts.example/consent?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeTok, nil
}

func (f *fakeOAuth) Service(ctx context.Context, tok *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error) {
	return calendar.NewService(ctx,
		option.WithoutAuthentication(), option.WithEndpoint(f.endpoint))
}
