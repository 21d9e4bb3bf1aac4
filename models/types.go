// ABOUTME: Data models for household entities
// ABOUTME: Defines CalendarSource, Event, WebhookChannel, Chore, and ChoreAssignment structs
package models

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProviderGoogle is the only calendar provider currently supported.
const ProviderGoogle = "google"

type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"household_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CalendarSource is one connected remote calendar, scoped to a household.
// AccessToken and RefreshToken are stored encrypted (vault ciphertext, not
// raw OAuth material). A nil SyncToken means the next sync is a full fetch.
type CalendarSource struct {
	ID           string     `json:"id"`
	HouseholdID  string     `json:"household_id"`
	Provider     string     `json:"provider"`
	ExternalID   string     `json:"external_id"`
	Name         string     `json:"name"`
	Color        string     `json:"color,omitempty"`
	Enabled      bool       `json:"enabled"`
	AccessToken  string     `json:"-"`
	RefreshToken *string    `json:"-"`
	SyncToken    *string    `json:"-"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event is a materialized occurrence/series imported from a calendar source.
// ExternalID is nil only for locally-originated events not yet acknowledged
// by the provider; when present it is unique per calendar source.
type Event struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"calendar_source_id"`
	ExternalID     *string   `json:"external_id,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	AllDay         bool      `json:"all_day"`
	RecurrenceRule *string   `json:"recurrence_rule,omitempty"`
	RawPayload     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WebhookChannel is a provider push-notification subscription. ChannelID is
// generated locally; ResourceID and Expiration come back from the provider.
type WebhookChannel struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"calendar_source_id"`
	ChannelID  string    `json:"channel_id"`
	ResourceID string    `json:"resource_id"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"created_at"`
}

type Chore struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"household_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChoreAssignment is one concrete due-date occurrence of a chore. Completing
// an assignment that carries a recurrence rule spawns exactly one successor
// dated at the next occurrence after the completion time.
type ChoreAssignment struct {
	ID             string     `json:"id"`
	ChoreID        string     `json:"chore_id"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	DueDate        time.Time  `json:"due_date"` // calendar date, time part zero
	RecurrenceRule *string    `json:"recurrence_rule,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    *string    `json:"completed_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RecurrenceType enumerates the structured recurrence intents the UI offers.
type RecurrenceType string

const (
	RecurrenceNone     RecurrenceType = "none"
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
)

// RecurrenceConfig is the transient structured form of a recurrence rule.
// Weekday uses 0=Monday..6=Sunday, matching the RRULE encoding rather than
// time.Weekday's 0=Sunday convention.
type RecurrenceConfig struct {
	Type       RecurrenceType `json:"type"`
	Weekday    *int           `json:"weekday,omitempty"`
	DayOfMonth *int           `json:"day_of_month,omitempty"`
}

// NewID generates a new ULID string for row identifiers.
func NewID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
