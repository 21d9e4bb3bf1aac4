// ABOUTME: Incremental sync engine for calendar sources
// ABOUTME: Fetches deltas via sync tokens with full-resync fallback, reconciling local events in one transaction
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/models"
	"github.com/hearthfam/hearth/vault"
)

const (
	maxResults = 250 // Google Calendar API max per page

	// fullSyncMonths bounds the initial (cursor-less) fetch window.
	fullSyncMonths = 6
)

// Result reports one sync attempt. Counts are filled in even when Err is set,
// so observability survives late failures.
type Result struct {
	Success        bool   `json:"success"`
	EventsUpserted int    `json:"events_upserted"`
	EventsDeleted  int    `json:"events_deleted"`
	NewSyncToken   string `json:"-"`
	Err            error  `json:"-"`
}

// Engine reconciles remote calendar changes against local event storage.
type Engine struct {
	db       *sql.DB
	vault    *vault.Vault
	provider ProviderClient
	logger   *slog.Logger
	apiOpts  []option.ClientOption
}

// NewEngine creates a sync engine. Extra API options (endpoint overrides) are
// forwarded to every service construction.
func NewEngine(database *sql.DB, v *vault.Vault, provider ProviderClient, logger *slog.Logger, opts ...option.ClientOption) *Engine {
	return &Engine{db: database, vault: v, provider: provider, logger: logger, apiOpts: opts}
}

// SyncSource runs one sync pass for a calendar source. A source with a sync
// cursor gets an incremental fetch; a stale/rejected cursor falls back to a
// full listing. Reconciliation and the cursor update commit atomically: on
// any failure the previous cursor stays valid for retry.
func (e *Engine) SyncSource(ctx context.Context, src *models.CalendarSource) Result {
	svc, err := serviceFor(ctx, e.db, e.vault, e.provider, src, e.apiOpts...)
	if err != nil {
		return Result{Err: fmt.Errorf("calendar %s: %w", src.ID, err)}
	}

	upserts, deletions, newToken, err := e.fetchChanges(ctx, svc, src)
	result := Result{EventsUpserted: len(upserts), EventsDeleted: len(deletions)}
	if err != nil {
		result.Err = fmt.Errorf("calendar %s: %w", src.ID, err)
		return result
	}

	// The provider omits the next cursor only in edge cases; keep the old one
	// so incremental sync continues, but still advance last_synced_at.
	if newToken == "" && src.SyncToken != nil {
		newToken = *src.SyncToken
	}

	result.EventsUpserted = 0
	result.EventsDeleted = 0
	err = db.WithTx(ctx, e.db, func(ctx context.Context, tx db.DBTX) error {
		for _, externalID := range deletions {
			removed, err := db.DeleteEventByExternalID(ctx, tx, src.ID, externalID)
			if err != nil {
				return err
			}
			if removed {
				result.EventsDeleted++
			}
		}
		for i := range upserts {
			if err := db.UpsertEventByExternalID(ctx, tx, &upserts[i]); err != nil {
				return err
			}
			result.EventsUpserted++
		}
		return db.UpdateCalendarSourceSyncState(ctx, tx, src.ID, newToken, time.Now())
	})
	if err != nil {
		result.Err = fmt.Errorf("calendar %s: failed to apply changes: %w", src.ID, err)
		return result
	}

	result.Success = true
	result.NewSyncToken = newToken
	src.SyncToken = &newToken

	e.logger.Info("calendar synced",
		"source_id", src.ID,
		"upserted", result.EventsUpserted,
		"deleted", result.EventsDeleted,
	)
	return result
}

// fetchChanges pages through the remote event feed and stages the resulting
// upserts and deletions without touching storage.
func (e *Engine) fetchChanges(ctx context.Context, svc *calendar.Service, src *models.CalendarSource) (upserts []models.Event, deletions []string, nextSyncToken string, err error) {
	incremental := src.SyncToken != nil && *src.SyncToken != ""

	newCall := func(useCursor bool) *calendar.EventsListCall {
		call := svc.Events.List(src.ExternalID).MaxResults(maxResults)
		if useCursor {
			call = call.SyncToken(*src.SyncToken)
		} else {
			call = call.TimeMin(time.Now().AddDate(0, -fullSyncMonths, 0).Format(time.RFC3339))
		}
		return call
	}

	call := newCall(incremental)
	pageToken := ""

	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Context(ctx).Do()
		if err != nil {
			// 410 Gone: the provider invalidated our cursor. Start over with
			// a full listing and drop anything staged so far.
			if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 410 && incremental {
				e.logger.Warn("sync token rejected, falling back to full sync", "source_id", src.ID)
				incremental = false
				upserts = upserts[:0]
				deletions = deletions[:0]
				call = newCall(false)
				pageToken = ""
				continue
			}
			return upserts, deletions, "", fmt.Errorf("failed to fetch events: %w", err)
		}

		for _, item := range events.Items {
			if item == nil || item.Id == "" {
				continue
			}
			if item.Status == "cancelled" {
				deletions = append(deletions, item.Id)
				continue
			}
			ev, ok := eventFromAPI(src.ID, item)
			if !ok {
				continue
			}
			upserts = append(upserts, ev)
		}

		pageToken = events.NextPageToken
		if pageToken == "" {
			return upserts, deletions, events.NextSyncToken, nil
		}
	}
}

// eventFromAPI converts a provider event into the local model. Events without
// a usable start time are skipped.
func eventFromAPI(sourceID string, item *calendar.Event) (models.Event, bool) {
	start, allDay, ok := parseEventTime(item.Start)
	if !ok {
		return models.Event{}, false
	}
	end, _, ok := parseEventTime(item.End)
	if !ok {
		end = start
	}

	externalID := item.Id
	ev := models.Event{
		ID:          models.NewID(),
		SourceID:    sourceID,
		ExternalID:  &externalID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		StartsAt:    start,
		EndsAt:      end,
		AllDay:      allDay,
	}

	if rule := rruleFromRecurrence(item.Recurrence); rule != "" {
		ev.RecurrenceRule = &rule
	}

	if raw, err := json.Marshal(item); err == nil {
		ev.RawPayload = string(raw)
	}

	return ev, true
}

func parseEventTime(edt *calendar.EventDateTime) (time.Time, bool, bool) {
	if edt == nil {
		return time.Time{}, false, false
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t.UTC(), false, true
	}
	return time.Time{}, false, false
}

// rruleFromRecurrence extracts the RRULE line from a provider recurrence
// property set (which may also carry EXDATE/RDATE lines).
func rruleFromRecurrence(recurrence []string) string {
	for _, line := range recurrence {
		if strings.HasPrefix(line, "RRULE:") {
			return line
		}
	}
	return ""
}
