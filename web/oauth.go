// ABOUTME: Google OAuth consent flow: initiation redirect and callback handling
// ABOUTME: Callback persists encrypted tokens and creates one disabled source per remote calendar
package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/gcal"
	"github.com/hearthfam/hearth/models"
)

// settingsPath is where the consent flow lands, tagged with the outcome.
const settingsPath = "/settings/calendars"

// OAuthProvider is the gcal client surface the consent flow needs.
type OAuthProvider interface {
	AuthURL(state string, scopes ...string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Service(ctx context.Context, tok *oauth2.Token, opts ...option.ClientOption) (*calendar.Service, error)
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	state, err := gcal.GenerateState(user.ID)
	if err != nil {
		s.logger.Error("failed to generate oauth state", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.issueState(state)

	http.Redirect(w, r, s.oauth.AuthURL(state), http.StatusFound)
}

// handleOAuthCallback finishes the consent flow. Every failure branch lands
// back on the settings page with an error tag instead of a bare error page.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	redirectErr := func(tag string) {
		http.Redirect(w, r, settingsPath+"?error="+url.QueryEscape(tag), http.StatusFound)
	}

	q := r.URL.Query()
	if q.Get("error") != "" {
		s.logger.Info("oauth consent denied", "error", q.Get("error"))
		redirectErr("access_denied")
		return
	}

	state := q.Get("state")
	if !s.redeemState(state) {
		redirectErr("invalid_state")
		return
	}
	userID, err := gcal.ParseState(state)
	if err != nil {
		redirectErr("invalid_state")
		return
	}

	ctx := r.Context()
	user, err := db.GetUser(ctx, s.db, userID)
	if err != nil {
		redirectErr("no_household")
		return
	}

	tok, err := s.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		if errors.Is(err, gcal.ErrNoRefreshToken) {
			redirectErr("no_refresh_token")
			return
		}
		s.logger.Error("oauth code exchange failed", "error", err)
		redirectErr("exchange_failed")
		return
	}

	created, err := s.importCalendarList(ctx, user, tok)
	if err != nil {
		s.logger.Error("failed to import calendar list", "user_id", user.ID, "error", err)
		redirectErr("provider_error")
		return
	}

	http.Redirect(w, r, settingsPath+"?connected="+strconv.Itoa(created), http.StatusFound)
}

// importCalendarList stores the user's remote calendars as disabled sources
// carrying the encrypted token material. Already-known calendars are skipped;
// the user enables the ones the household wants on the settings page.
func (s *Server) importCalendarList(ctx context.Context, user *models.User, tok *oauth2.Token) (int, error) {
	access, err := s.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return 0, err
	}
	refresh, err := s.vault.Encrypt(tok.RefreshToken)
	if err != nil {
		return 0, err
	}

	svc, err := s.oauth.Service(ctx, tok)
	if err != nil {
		return 0, err
	}
	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, item := range list.Items {
		_, err := db.GetCalendarSourceByExternalID(ctx, s.db, user.HouseholdID, models.ProviderGoogle, item.Id)
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return created, err
		}

		src := &models.CalendarSource{
			ID:           models.NewID(),
			HouseholdID:  user.HouseholdID,
			Provider:     models.ProviderGoogle,
			ExternalID:   item.Id,
			Name:         item.Summary,
			Color:        item.BackgroundColor,
			Enabled:      false,
			AccessToken:  access,
			RefreshToken: &refresh,
		}
		if err := db.CreateCalendarSource(ctx, s.db, src); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
