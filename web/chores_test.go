// ABOUTME: Tests for chore routes and the recurrence preview endpoint
// ABOUTME: Exercises assignment creation with generated rules and completion rollover
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthfam/hearth/models"
)

func createChore(t *testing.T, f *fixture, userID, title string) *models.Chore {
	t.Helper()
	body := fmt.Sprintf(`{"title":%q}`, title)
	rec := f.do("POST", "/api/chores", userID, strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var chore models.Chore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chore))
	return &chore
}

func TestCreateChoreValidation(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)

	rec := f.do("POST", "/api/chores", user.ID, strings.NewReader(`{"title":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/api/chores", "", strings.NewReader(`{"title":"Dishes"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	chore := createChore(t, f, user.ID, "Dishes")
	assert.Equal(t, user.HouseholdID, chore.HouseholdID)
}

func TestCreateAssignmentWithRecurrence(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	chore := createChore(t, f, user.ID, "Take out trash")

	body := fmt.Sprintf(`{
		"chore_id": %q,
		"assigned_to": %q,
		"due_date": "2026-08-24",
		"recurrence": {"type": "weekly", "weekday": 0}
	}`, chore.ID, user.ID)
	rec := f.do("POST", "/api/chores/assignments", user.ID, strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var a models.ChoreAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	require.NotNil(t, a.RecurrenceRule)
	assert.Contains(t, *a.RecurrenceRule, "FREQ=WEEKLY")
	assert.Contains(t, *a.RecurrenceRule, "BYDAY=MO")
}

func TestCreateAssignmentRejectsForeignChore(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	stranger := f.seedUser(t)
	chore := createChore(t, f, stranger.ID, "Their chore")

	body := fmt.Sprintf(`{"chore_id": %q, "due_date": "2026-08-24"}`, chore.ID)
	rec := f.do("POST", "/api/chores/assignments", user.ID, strings.NewReader(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteAssignmentRoute(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)
	chore := createChore(t, f, user.ID, "Water plants")

	body := fmt.Sprintf(`{
		"chore_id": %q,
		"assigned_to": %q,
		"due_date": "2026-08-24",
		"recurrence": {"type": "weekly", "weekday": 0}
	}`, chore.ID, user.ID)
	rec := f.do("POST", "/api/chores/assignments", user.ID, strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	var a models.ChoreAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))

	rec = f.do("POST", "/api/assignments/"+a.ID+"/complete", user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Completed models.ChoreAssignment  `json:"completed"`
		Next      *models.ChoreAssignment `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Completed.CompletedAt)
	require.NotNil(t, result.Next, "weekly chore rolls over")
	assert.Nil(t, result.Next.CompletedAt)
	assert.Equal(t, time.Monday, result.Next.DueDate.Weekday())
	assert.True(t, result.Next.DueDate.After(time.Now().Add(-24*time.Hour)),
		"successor is due at the next occurrence after completion")

	// Completing twice conflicts instead of spawning another successor.
	rec = f.do("POST", "/api/assignments/"+a.ID+"/complete", user.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Strangers cannot see, let alone complete, the assignment.
	stranger := f.seedUser(t)
	rec = f.do("POST", "/api/assignments/"+a.ID+"/complete", stranger.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecurrencePreview(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t)

	rule := "DTSTART:20260817T090000Z\nRRULE:FREQ=DAILY"
	rec := f.do("GET", "/api/recurrence/preview?rule="+url.QueryEscape(rule)+"&count=3", user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rule        string      `json:"rule"`
		Description string      `json:"description"`
		Occurrences []time.Time `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "daily", body.Description)
	require.Len(t, body.Occurrences, 3)
	for i := 1; i < len(body.Occurrences); i++ {
		assert.True(t, body.Occurrences[i].After(body.Occurrences[i-1]))
	}

	rec = f.do("GET", "/api/recurrence/preview", user.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "rule is required")

	rec = f.do("GET", "/api/recurrence/preview?rule=x&count=1000", user.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "count is capped")
}
