// ABOUTME: Tests for the kiosk ICS feed
// ABOUTME: Verifies household scoping, text escaping, and all-day DATE values
package web

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
)

func seedEvent(t *testing.T, f *fixture, sourceID string, ev models.Event) {
	t.Helper()
	ev.ID = models.NewID()
	ev.SourceID = sourceID
	require.NoError(t, db.InsertEvent(context.Background(), f.db, &ev))
}

func TestDisplayFeedServesHouseholdEvents(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, true)

	tomorrow := time.Now().Add(24 * time.Hour).UTC()
	ext1, ext2 := "evt-1", "evt-2"
	seedEvent(t, f, src.ID, models.Event{
		ExternalID: &ext1,
		Title:      "Dinner, then movie",
		Location:   "Home",
		StartsAt:   tomorrow,
		EndsAt:     tomorrow.Add(2 * time.Hour),
	})
	allDay := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.UTC)
	seedEvent(t, f, src.ID, models.Event{
		ExternalID: &ext2,
		Title:      "School holiday",
		StartsAt:   allDay,
		EndsAt:     allDay.Add(24 * time.Hour),
		AllDay:     true,
	})

	rec := f.do("GET", "/display/"+user.HouseholdID+"/calendar.ics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, `Dinner\, then movie`, "commas in summaries are escaped")
	assert.Contains(t, body, "VALUE=DATE", "all-day events use DATE values")

	// The feed round-trips through the same ICS library.
	cal, err := ical.ParseCalendar(strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, cal.Events(), 2)
}

func TestDisplayFeedSkipsDisabledSources(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	src := f.seedSource(t, user.HouseholdID, false)

	ext := "evt-1"
	now := time.Now().UTC()
	seedEvent(t, f, src.ID, models.Event{
		ExternalID: &ext, Title: "Hidden", StartsAt: now, EndsAt: now.Add(time.Hour),
	})

	rec := f.do("GET", "/display/"+user.HouseholdID+"/calendar.ics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Hidden")
}

func TestDisplayFeedUnknownHousehold(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/display/nobody/calendar.ics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
