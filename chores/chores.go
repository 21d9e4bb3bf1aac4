// ABOUTME: Chore completion service wiring the recurrence engine to assignment rows
// ABOUTME: Completing a recurring assignment spawns exactly one successor at the next occurrence
package chores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/recurrence"
)

// ErrAlreadyCompleted means the assignment was completed earlier; no second
// successor is created.
var ErrAlreadyCompleted = errors.New("assignment already completed")

// Service owns chore assignment lifecycle logic. The recurrence engine stays
// pure; all row creation happens here.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewService creates a chore service.
func NewService(database *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: database, logger: logger}
}

// Complete marks an assignment done by userID at the given time. When the
// assignment carries a recurrence rule, exactly one successor assignment is
// created in the same transaction: same chore, same assignee, due at the next
// occurrence strictly after the completion time. The completion update is
// guarded so a repeated call returns ErrAlreadyCompleted instead of spawning
// another successor.
func (s *Service) Complete(ctx context.Context, assignmentID, userID string, at time.Time) (*models.ChoreAssignment, *models.ChoreAssignment, error) {
	var completed, successor *models.ChoreAssignment

	err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		a, err := db.GetChoreAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}

		done, err := db.MarkChoreAssignmentCompleted(ctx, tx, assignmentID, userID, at)
		if err != nil {
			return err
		}
		if !done {
			return ErrAlreadyCompleted
		}

		completedAt := at.UTC()
		a.CompletedAt = &completedAt
		a.CompletedBy = &userID
		completed = a

		if a.RecurrenceRule == nil {
			return nil
		}

		next, ok := recurrence.Next(*a.RecurrenceRule, at)
		if !ok {
			s.logger.Warn("recurring assignment has no next occurrence",
				"assignment_id", a.ID, "rule", *a.RecurrenceRule)
			return nil
		}

		successor = &models.ChoreAssignment{
			ID:             models.NewID(),
			ChoreID:        a.ChoreID,
			AssignedTo:     a.AssignedTo,
			DueDate:        truncateToDate(next),
			RecurrenceRule: a.RecurrenceRule,
		}
		return db.CreateChoreAssignment(ctx, tx, successor)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to complete assignment %s: %w", assignmentID, err)
	}

	return completed, successor, nil
}

// Preview returns the next count due dates a recurrence rule would produce
// after the given date, for UI display.
func (s *Service) Preview(rule string, after time.Time, count int) []time.Time {
	dates := recurrence.NextN(rule, after, count)
	for i := range dates {
		dates[i] = truncateToDate(dates[i])
	}
	return dates
}

// truncateToDate drops the time-of-day portion; due dates are calendar dates.
func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
