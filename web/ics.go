// ABOUTME: Kiosk display feed serving a household's merged events as ICS
// ABOUTME: Fetched by the wall display without a session; household id is the capability
package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hearthfam/hearth/db"
)

// feedLookback/feedLookahead bound the merged feed window around now.
const (
	feedLookback  = 7 * 24 * time.Hour
	feedLookahead = 90 * 24 * time.Hour
)

func (s *Server) handleDisplayICS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	householdID := r.PathValue("householdID")

	household, err := db.GetHousehold(ctx, s.db, householdID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "household not found")
			return
		}
		s.logger.Error("failed to load household", "household_id", householdID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	events, err := db.ListEventsByHousehold(ctx, s.db, household.ID, now.Add(-feedLookback), now.Add(feedLookahead))
	if err != nil {
		s.logger.Error("failed to list events for feed", "household_id", householdID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//Hearth//Calendar Feed//EN")
	cal.SetXWRCalName(household.Name)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@hearth")
		ve.SetDtStampTime(ev.UpdatedAt.UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.AllDay {
			ve.SetAllDayStartAt(ev.StartsAt)
			ve.SetAllDayEndAt(ev.EndsAt)
		} else {
			ve.SetStartAt(ev.StartsAt.UTC())
			ve.SetEndAt(ev.EndsAt.UTC())
		}
		if ev.RecurrenceRule != nil {
			ve.AddRrule(strings.TrimPrefix(*ev.RecurrenceRule, "RRULE:"))
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		s.logger.Warn("failed to write feed", "error", err)
	}
}
