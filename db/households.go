// ABOUTME: Database operations for households and users tables
// ABOUTME: Households are the tenancy boundary; users resolve request identity to a household
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthfam/hearth/models"
)

// CreateHousehold inserts a new household.
func CreateHousehold(ctx context.Context, q DBTX, h *models.Household) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO households (id, name, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, h.ID, h.Name)
	if err != nil {
		return fmt.Errorf("failed to create household: %w", err)
	}
	return nil
}

// GetHousehold fetches one household by id.
func GetHousehold(ctx context.Context, q DBTX, id string) (*models.Household, error) {
	var h models.Household
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM households WHERE id = ?
	`, id).Scan(&h.ID, &h.Name, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get household: %w", err)
	}
	return &h, nil
}

// CreateUser inserts a new household member.
func CreateUser(ctx context.Context, q DBTX, u *models.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, household_id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, u.ID, u.HouseholdID, u.Name, nullString(u.Email))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser fetches one user by id.
func GetUser(ctx context.Context, q DBTX, id string) (*models.User, error) {
	var u models.User
	var email sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, household_id, name, email, created_at, updated_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.HouseholdID, &u.Name, &email, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if email.Valid {
		u.Email = email.String
	}
	return &u, nil
}
