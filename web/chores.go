// ABOUTME: Chore and assignment routes plus the recurrence preview endpoint
// ABOUTME: Assignments carry generated RRULE strings; completion spawns the next occurrence
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hearthfam/hearth/chores"
	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/recurrence"
)

// previewMax caps how many occurrences the preview endpoint computes.
const previewMax = 30

func (s *Server) handleListChores(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := db.ListChores(r.Context(), s.db, user.HouseholdID)
	if err != nil {
		s.logger.Error("failed to list chores", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateChore(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.Title) == "" {
		errorJSON(w, http.StatusBadRequest, "title is required")
		return
	}

	chore := &models.Chore{
		ID:          models.NewID(),
		HouseholdID: user.HouseholdID,
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
	}
	if err := db.CreateChore(r.Context(), s.db, chore); err != nil {
		s.logger.Error("failed to create chore", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, chore)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := db.ListChoreAssignments(r.Context(), s.db, user.HouseholdID)
	if err != nil {
		s.logger.Error("failed to list chore assignments", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		ChoreID    string                   `json:"chore_id"`
		AssignedTo *string                  `json:"assigned_to"`
		DueDate    string                   `json:"due_date"`
		Recurrence *models.RecurrenceConfig `json:"recurrence"`
	}
	if err := decodeJSON(r, &body); err != nil || body.ChoreID == "" {
		errorJSON(w, http.StatusBadRequest, "chore_id is required")
		return
	}
	due, err := time.Parse("2006-01-02", body.DueDate)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}

	ctx := r.Context()
	chore, err := db.GetChore(ctx, s.db, body.ChoreID)
	if err != nil || chore.HouseholdID != user.HouseholdID {
		errorJSON(w, http.StatusNotFound, "chore not found")
		return
	}

	assignment := &models.ChoreAssignment{
		ID:         models.NewID(),
		ChoreID:    chore.ID,
		AssignedTo: body.AssignedTo,
		DueDate:    due,
	}
	if body.Recurrence != nil && body.Recurrence.Type != models.RecurrenceNone {
		rule := recurrence.Generate(*body.Recurrence, due)
		if rule == "" {
			errorJSON(w, http.StatusBadRequest, "invalid recurrence config")
			return
		}
		assignment.RecurrenceRule = &rule
	}

	if err := db.CreateChoreAssignment(ctx, s.db, assignment); err != nil {
		s.logger.Error("failed to create chore assignment", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (s *Server) handleCompleteAssignment(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := r.Context()
	assignmentID := r.PathValue("id")

	// Ownership runs through the chore's household.
	assignment, err := db.GetChoreAssignment(ctx, s.db, assignmentID)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "assignment not found")
		return
	}
	chore, err := db.GetChore(ctx, s.db, assignment.ChoreID)
	if err != nil || chore.HouseholdID != user.HouseholdID {
		errorJSON(w, http.StatusNotFound, "assignment not found")
		return
	}

	completed, next, err := s.chores.Complete(ctx, assignmentID, user.ID, time.Now())
	if err != nil {
		if errors.Is(err, chores.ErrAlreadyCompleted) {
			errorJSON(w, http.StatusConflict, "assignment already completed")
			return
		}
		s.logger.Error("failed to complete assignment", "assignment_id", assignmentID, "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"completed": completed,
		"next":      next,
	})
}

func (s *Server) handleRecurrencePreview(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentUser(r); err != nil {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rule := r.URL.Query().Get("rule")
	if rule == "" {
		errorJSON(w, http.StatusBadRequest, "rule is required")
		return
	}

	count := 5
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > previewMax {
			errorJSON(w, http.StatusBadRequest, "count must be between 1 and 30")
			return
		}
		count = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rule":        rule,
		"description": recurrence.Describe(rule),
		"occurrences": recurrence.NextN(rule, time.Now(), count),
	})
}
