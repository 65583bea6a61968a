// Package retention periodically deletes transcripts whose most recent
// activity is older than the configured period.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
	"botpipe/pkg/transcript"
)

// Options configures the sweeper.
type Options struct {
	// Enabled turns the scheduler on. Off by default so a configured
	// period alone never deletes anything.
	Enabled bool
	// ChannelID scopes the sweep; transcripts on other channels are
	// untouched.
	ChannelID string
	// Cron is the schedule expression; empty means daily at 02:00.
	Cron string
	// Period is the retention window. Zero disables deletion.
	Period time.Duration
}

// Start launches the scheduler. It returns a cancel func that stops the
// scheduler goroutine.
func Start(ctx context.Context, store transcript.Store, opts Options) (context.CancelFunc, error) {
	if !opts.Enabled || opts.Period <= 0 {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	cronExpr := opts.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", opts.Period.String(), "channel", opts.ChannelID)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, store, opts, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick and sleeps until it, running
// one sweep per tick.
func runScheduler(ctx context.Context, store transcript.Store, opts Options, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, store, opts); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Exported so tests and admin triggers
// can invoke it on demand.
func RunOnce(ctx context.Context, store transcript.Store, opts Options) error {
	if opts.Period <= 0 {
		return fmt.Errorf("retention period not configured")
	}
	cutoff := time.Now().UTC().Add(-opts.Period)
	var swept, deleted int

	token := ""
	for {
		page, err := store.ListTranscripts(ctx, opts.ChannelID, token)
		if err != nil {
			return fmt.Errorf("list transcripts: %w", err)
		}
		for _, info := range page.Items {
			swept++
			last, err := latestTimestamp(ctx, store, info)
			if err != nil {
				logger.Warn("retention_scan_failed", "conversation", info.Conversation, "error", err)
				continue
			}
			if last.IsZero() || !last.Before(cutoff) {
				continue
			}
			if err := store.DeleteTranscript(ctx, info.ChannelID, info.Conversation); err != nil {
				logger.Warn("retention_delete_failed", "conversation", info.Conversation, "error", err)
				continue
			}
			deleted++
			logger.Info("retention_transcript_deleted", "channel", info.ChannelID, "conversation", info.Conversation, "last_activity", last)
		}
		if page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}
	logger.Info("retention_run_complete", "swept", swept, "deleted", deleted)
	return nil
}

// latestTimestamp pages to the end of a transcript and returns the
// timestamp of its newest record.
func latestTimestamp(ctx context.Context, store transcript.Store, info models.TranscriptInfo) (time.Time, error) {
	var last time.Time
	token := ""
	for {
		page, err := store.ListActivities(ctx, info.ChannelID, info.Conversation, token, time.Time{})
		if err != nil {
			return time.Time{}, err
		}
		for _, rec := range page.Items {
			if rec.Timestamp.After(last) {
				last = rec.Timestamp
			}
		}
		if page.ContinuationToken == "" {
			return last, nil
		}
		token = page.ContinuationToken
	}
}
