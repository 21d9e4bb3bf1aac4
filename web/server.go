// ABOUTME: HTTP server exposing the sync, OAuth, webhook, and chore surfaces
// ABOUTME: Identity arrives as X-Hearth-User; household ownership is enforced on every route
package web

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"github.com/hearthfam/hearth/chores"
	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/sync"
	"github.com/hearthfam/hearth/vault"
)

// oauthStateTTL bounds how long an issued consent state stays redeemable.
const oauthStateTTL = 10 * time.Minute

// Syncer is the orchestrator surface the HTTP layer needs.
type Syncer interface {
	SyncSource(ctx context.Context, src *models.CalendarSource) sync.Result
	SyncStale(ctx context.Context, threshold time.Duration) sync.Summary
}

// ChannelRegistrar manages provider push channels for calendar sources.
type ChannelRegistrar interface {
	Register(ctx context.Context, src *models.CalendarSource) (*models.WebhookChannel, error)
	StopAll(ctx context.Context, src *models.CalendarSource)
	RenewExpiring(ctx context.Context) sync.RenewalSummary
}

// JobQueue accepts sync jobs dispatched by the webhook receiver.
type JobQueue interface {
	Enqueue(sourceID string) error
}

// Options carries the server's collaborators.
type Options struct {
	DB       *sql.DB
	Vault    *vault.Vault
	OAuth    OAuthProvider
	Syncer   Syncer
	Channels ChannelRegistrar
	Queue    JobQueue
	Limiter  sync.RateLimiter
	Chores   *chores.Service

	// CronSecret authorizes the /api/cron endpoints.
	CronSecret string

	// StaleAfter is forwarded to SyncStale on the cron endpoint.
	StaleAfter time.Duration

	Logger *slog.Logger
}

type Server struct {
	db         *sql.DB
	vault      *vault.Vault
	oauth      OAuthProvider
	syncer     Syncer
	channels   ChannelRegistrar
	queue      JobQueue
	limiter    sync.RateLimiter
	chores     *chores.Service
	cronSecret string
	staleAfter time.Duration
	logger     *slog.Logger

	// states holds issued OAuth consent states until redeemed or expired.
	statesMu gosync.Mutex
	states   map[string]time.Time
}

func NewServer(opts Options) *Server {
	return &Server{
		db:         opts.DB,
		vault:      opts.Vault,
		oauth:      opts.OAuth,
		syncer:     opts.Syncer,
		channels:   opts.Channels,
		queue:      opts.Queue,
		limiter:    opts.Limiter,
		chores:     opts.Chores,
		cronSecret: opts.CronSecret,
		staleAfter: opts.StaleAfter,
		logger:     opts.Logger,
		states:     make(map[string]time.Time),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Calendar sources
	mux.HandleFunc("GET /api/calendars", s.handleListCalendars)
	mux.HandleFunc("PATCH /api/calendars/{id}", s.handleUpdateCalendar)
	mux.HandleFunc("DELETE /api/calendars/{id}", s.handleDeleteCalendar)
	mux.HandleFunc("POST /api/calendars/{id}/sync", s.handleSyncCalendar)

	// Cron entry points (also runnable in-process via serve mode)
	mux.HandleFunc("POST /api/cron/sync", s.handleCronSync)
	mux.HandleFunc("POST /api/cron/renew-channels", s.handleCronRenewChannels)

	// Provider push notifications
	mux.HandleFunc("POST /webhooks/google-calendar", s.handleWebhook)

	// OAuth consent flow
	mux.HandleFunc("GET /oauth/google/start", s.handleOAuthStart)
	mux.HandleFunc("GET /oauth/google/callback", s.handleOAuthCallback)

	// Chores
	mux.HandleFunc("GET /api/chores", s.handleListChores)
	mux.HandleFunc("POST /api/chores", s.handleCreateChore)
	mux.HandleFunc("GET /api/chores/assignments", s.handleListAssignments)
	mux.HandleFunc("POST /api/chores/assignments", s.handleCreateAssignment)
	mux.HandleFunc("POST /api/assignments/{id}/complete", s.handleCompleteAssignment)
	mux.HandleFunc("GET /api/recurrence/preview", s.handleRecurrencePreview)

	// Kiosk display feed
	mux.HandleFunc("GET /display/{householdID}/calendar.ics", s.handleDisplayICS)

	return mux
}

// currentUser resolves the X-Hearth-User header against the users table. The
// upstream auth provider terminates real sessions; this trusts its header.
func (s *Server) currentUser(r *http.Request) (*models.User, error) {
	userID := r.Header.Get("X-Hearth-User")
	if userID == "" {
		return nil, errors.New("missing X-Hearth-User header")
	}
	user, err := db.GetUser(r.Context(), s.db, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// requireCron checks the bearer secret on cron endpoints.
func (s *Server) requireCron(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

// issueState records a consent state for later redemption.
func (s *Server) issueState(state string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states[state] = time.Now().Add(oauthStateTTL)
}

// redeemState consumes a previously issued state. Each state is single-use.
func (s *Server) redeemState(state string) bool {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	expiry, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(expiry)
}

// decodeJSON reads a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
