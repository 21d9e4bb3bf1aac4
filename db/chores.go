// ABOUTME: Database operations for chores and chore_assignments tables
// ABOUTME: Assignment rows are immutable history; completion only fills completed_at/completed_by
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthfam/hearth/models"
)

// CreateChore inserts a new chore.
func CreateChore(ctx context.Context, q DBTX, c *models.Chore) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chores (id, household_id, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, c.ID, c.HouseholdID, c.Title, c.Description)
	if err != nil {
		return fmt.Errorf("failed to create chore: %w", err)
	}
	return nil
}

// GetChore fetches one chore by id.
func GetChore(ctx context.Context, q DBTX, id string) (*models.Chore, error) {
	var c models.Chore
	err := q.QueryRowContext(ctx, `
		SELECT id, household_id, title, description, created_at, updated_at
		FROM chores WHERE id = ?
	`, id).Scan(&c.ID, &c.HouseholdID, &c.Title, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chore: %w", err)
	}
	return &c, nil
}

// ListChores returns all chores for a household.
func ListChores(ctx context.Context, q DBTX, householdID string) ([]*models.Chore, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, household_id, title, description, created_at, updated_at
		FROM chores WHERE household_id = ? ORDER BY title
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Chore
	for rows.Next() {
		var c models.Chore
		if err := rows.Scan(&c.ID, &c.HouseholdID, &c.Title, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chore: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CreateChoreAssignment inserts one concrete due-date occurrence.
func CreateChoreAssignment(ctx context.Context, q DBTX, a *models.ChoreAssignment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chore_assignments
			(id, chore_id, assigned_to, due_date, recurrence_rule, completed_at, completed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, a.ID, a.ChoreID, nullStringPtr(a.AssignedTo), a.DueDate.UTC(),
		nullStringPtr(a.RecurrenceRule), nullTimePtr(a.CompletedAt), nullStringPtr(a.CompletedBy))
	if err != nil {
		return fmt.Errorf("failed to create chore assignment: %w", err)
	}
	return nil
}

// GetChoreAssignment fetches one assignment by id.
func GetChoreAssignment(ctx context.Context, q DBTX, id string) (*models.ChoreAssignment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, chore_id, assigned_to, due_date, recurrence_rule, completed_at, completed_by, created_at, updated_at
		FROM chore_assignments WHERE id = ?
	`, id)
	return scanChoreAssignment(row)
}

// ListChoreAssignments returns assignments for all chores of a household,
// open ones first, then by due date.
func ListChoreAssignments(ctx context.Context, q DBTX, householdID string) ([]*models.ChoreAssignment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.chore_id, a.assigned_to, a.due_date, a.recurrence_rule,
		       a.completed_at, a.completed_by, a.created_at, a.updated_at
		FROM chore_assignments a
		JOIN chores c ON c.id = a.chore_id
		WHERE c.household_id = ?
		ORDER BY a.completed_at IS NOT NULL, a.due_date
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chore assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ChoreAssignment
	for rows.Next() {
		a, err := scanChoreAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkChoreAssignmentCompleted fills completed_at/completed_by, but only on a
// still-open assignment. Returns false when the row was already completed or
// missing, so callers never spawn a second successor.
func MarkChoreAssignmentCompleted(ctx context.Context, q DBTX, id, userID string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE chore_assignments
		SET completed_at = ?, completed_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND completed_at IS NULL
	`, at.UTC(), userID, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete chore assignment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanChoreAssignment(row rowScanner) (*models.ChoreAssignment, error) {
	var a models.ChoreAssignment
	var assignedTo, recurrenceRule, completedBy sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&a.ID, &a.ChoreID, &assignedTo, &a.DueDate, &recurrenceRule,
		&completedAt, &completedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chore assignment: %w", err)
	}

	if assignedTo.Valid {
		a.AssignedTo = &assignedTo.String
	}
	if recurrenceRule.Valid {
		a.RecurrenceRule = &recurrenceRule.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if completedBy.Valid {
		a.CompletedBy = &completedBy.String
	}
	return &a, nil
}
