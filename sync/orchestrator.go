// ABOUTME: Sync orchestrator deciding which calendar sources sync and when
// ABOUTME: Fans out stale-source syncs concurrently with per-source isolation and single-flight dedup
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/gcal"
	"github.com/hearthfam/hearth/models"
)

// Summary aggregates one scheduled sync pass across sources.
type Summary struct {
	CalendarsSynced     int `json:"calendars_synced"`
	TotalEventsUpserted int `json:"total_events_upserted"`
	TotalEventsDeleted  int `json:"total_events_deleted"`
	Failures            int `json:"failures"`
}

// Orchestrator drives the sync engine from its three entry points: on-demand
// requests, the staleness cron, and webhook-triggered jobs.
type Orchestrator struct {
	db     *sql.DB
	engine *Engine
	logger *slog.Logger

	// group collapses concurrent syncs of the same source (webhook-triggered
	// and cron-triggered work share one in-flight call instead of racing on
	// the cursor).
	group singleflight.Group
}

// NewOrchestrator creates an orchestrator around a sync engine.
func NewOrchestrator(database *sql.DB, engine *Engine, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{db: database, engine: engine, logger: logger}
}

// SyncSource runs (or joins) the single in-flight sync for a source. A
// revoked refresh token transitions the source to disconnected instead of
// being retried.
func (o *Orchestrator) SyncSource(ctx context.Context, src *models.CalendarSource) Result {
	v, _, _ := o.group.Do(src.ID, func() (any, error) {
		result := o.syncIsolated(ctx, src)

		if result.Err != nil && errors.Is(result.Err, gcal.ErrTokenRevoked) {
			o.logger.Warn("refresh token revoked, marking source disconnected", "source_id", src.ID)
			if err := db.MarkCalendarSourceDisconnected(ctx, o.db, src.ID); err != nil {
				o.logger.Error("failed to mark source disconnected", "source_id", src.ID, "error", err)
			}
		}
		return result, nil
	})
	return v.(Result)
}

// SyncSourceByID loads a source and syncs it; used by webhook-triggered jobs.
func (o *Orchestrator) SyncSourceByID(ctx context.Context, sourceID string) Result {
	src, err := db.GetCalendarSource(ctx, o.db, sourceID)
	if err != nil {
		return Result{Err: fmt.Errorf("calendar %s: %w", sourceID, err)}
	}
	if !src.Enabled {
		return Result{Err: fmt.Errorf("calendar %s: source is disabled", sourceID)}
	}
	return o.SyncSource(ctx, src)
}

// SyncStale syncs every enabled source whose last sync is missing or older
// than threshold, all concurrently. One source's failure never affects its
// siblings: each runs isolated, and panics become failure results.
func (o *Orchestrator) SyncStale(ctx context.Context, threshold time.Duration) Summary {
	var summary Summary

	stale, err := db.ListStaleCalendarSources(ctx, o.db, time.Now().Add(-threshold))
	if err != nil {
		o.logger.Error("failed to list stale sources", "error", err)
		summary.Failures++
		return summary
	}
	if len(stale) == 0 {
		return summary
	}

	results := make(chan Result, len(stale))
	for _, src := range stale {
		go func(src *models.CalendarSource) {
			results <- o.SyncSource(ctx, src)
		}(src)
	}

	for range stale {
		result := <-results
		summary.TotalEventsUpserted += result.EventsUpserted
		summary.TotalEventsDeleted += result.EventsDeleted
		if result.Err != nil {
			o.logger.Error("scheduled sync failed", "error", result.Err)
			summary.Failures++
			continue
		}
		summary.CalendarsSynced++
	}

	return summary
}

// syncIsolated converts an engine panic into a failure result so a bad source
// cannot take down a whole cron pass.
func (o *Orchestrator) syncIsolated(ctx context.Context, src *models.CalendarSource) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			result = Result{Err: fmt.Errorf("calendar %s: sync panicked: %v", src.ID, p)}
		}
	}()
	return o.engine.SyncSource(ctx, src)
}
