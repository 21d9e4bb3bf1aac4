// ABOUTME: Calendar source routes: listing, enable/disable, deletion, and syncs
// ABOUTME: On-demand sync is rate limited per source; cron endpoints aggregate across sources
package web

import (
	"errors"
	"net/http"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/gcal"
	"github.com/hearthfam/hearth/models"
)

// ownedSource loads a calendar source and verifies it belongs to the user's
// household. A source in someone else's household reads as not found.
func (s *Server) ownedSource(r *http.Request, householdID, sourceID string) (*models.CalendarSource, int, error) {
	src, err := db.GetCalendarSource(r.Context(), s.db, sourceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, http.StatusNotFound, errors.New("calendar not found")
		}
		return nil, http.StatusInternalServerError, err
	}
	if src.HouseholdID != householdID {
		return nil, http.StatusNotFound, errors.New("calendar not found")
	}
	return src, 0, nil
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sources, err := db.ListCalendarSources(r.Context(), s.db, user.HouseholdID)
	if err != nil {
		s.logger.Error("failed to list calendar sources", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Enabled == nil {
		errorJSON(w, http.StatusBadRequest, "body must carry an enabled flag")
		return
	}

	src, status, err := s.ownedSource(r, user.HouseholdID, r.PathValue("id"))
	if err != nil {
		errorJSON(w, status, err.Error())
		return
	}

	ctx := r.Context()
	if err := db.SetCalendarSourceEnabled(ctx, s.db, src.ID, *body.Enabled); err != nil {
		s.logger.Error("failed to update calendar source", "source_id", src.ID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	src.Enabled = *body.Enabled

	if *body.Enabled {
		// Registration failure is not fatal: the renewal pass heals enabled
		// sources that have no channel.
		if _, err := s.channels.Register(ctx, src); err != nil {
			s.logger.Warn("failed to register webhook channel", "source_id", src.ID, "error", err)
		}
	} else {
		s.channels.StopAll(ctx, src)
	}

	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	src, status, err := s.ownedSource(r, user.HouseholdID, r.PathValue("id"))
	if err != nil {
		errorJSON(w, status, err.Error())
		return
	}

	ctx := r.Context()
	s.channels.StopAll(ctx, src)
	if err := db.DeleteCalendarSource(ctx, s.db, src.ID); err != nil {
		s.logger.Error("failed to delete calendar source", "source_id", src.ID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	if !s.limiter.Allow(sourceID) {
		errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded for this calendar")
		return
	}

	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	src, status, err := s.ownedSource(r, user.HouseholdID, sourceID)
	if err != nil {
		errorJSON(w, status, err.Error())
		return
	}
	if !src.Enabled {
		errorJSON(w, http.StatusBadRequest, "calendar is disabled")
		return
	}

	result := s.syncer.SyncSource(r.Context(), src)
	if result.Err != nil {
		s.logger.Error("on-demand sync failed", "source_id", src.ID, "error", result.Err)
		if errors.Is(result.Err, gcal.ErrTokenRevoked) {
			errorJSON(w, http.StatusUnauthorized, "calendar authorization revoked, reconnect required")
			return
		}
		errorJSON(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCronSync(w http.ResponseWriter, r *http.Request) {
	if !s.requireCron(r) {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary := s.syncer.SyncStale(r.Context(), s.staleAfter)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCronRenewChannels(w http.ResponseWriter, r *http.Request) {
	if !s.requireCron(r) {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary := s.channels.RenewExpiring(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

// handleWebhook receives provider push notifications. Anything past header
// validation is acknowledged with 200 so the provider never enters a retry
// storm; real work goes through the durable queue.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-ID")
	resourceState := r.Header.Get("X-Goog-Resource-State")
	if channelID == "" || resourceState == "" {
		errorJSON(w, http.StatusBadRequest, "missing notification headers")
		return
	}

	// "sync" is the provider verifying reachability after channel creation.
	if resourceState == "sync" {
		s.logger.Info("webhook channel verified", "channel_id", channelID)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	ch, err := db.GetWebhookChannelByChannelID(ctx, s.db, channelID)
	if err != nil {
		s.logger.Warn("notification for unknown channel", "channel_id", channelID)
		w.WriteHeader(http.StatusOK)
		return
	}

	src, err := db.GetCalendarSource(ctx, s.db, ch.SourceID)
	if err != nil || src.RefreshToken == nil {
		s.logger.Warn("notification for source without usable tokens",
			"channel_id", channelID, "source_id", ch.SourceID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.queue.Enqueue(src.ID); err != nil {
		s.logger.Error("failed to enqueue sync job", "source_id", src.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
