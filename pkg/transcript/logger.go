package transcript

import (
	"context"
	"time"

	"botpipe/pkg/logger"
	"botpipe/pkg/metrics"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
)

// Logger is the pipeline middleware that mirrors every inbound and
// outbound activity into a transcript store.
//
// The inbound record is appended before the continuation runs, so within
// one turn it strictly precedes all outbound records. Outbound records
// are appended only after the transport call succeeds, in the order the
// operations were issued. Store failures never abort the turn; they are
// reported through the diagnostic log.
type Logger struct {
	store Store
}

// NewLogger builds the transcript-logging middleware over store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// OnTurn implements pipeline.Middleware.
func (l *Logger) OnTurn(ctx context.Context, tc *pipeline.TurnContext, next pipeline.Handler) error {
	if tc.Activity != nil {
		l.log(ctx, tc.Activity.Clone())
	}

	tc.OnSendActivities(func(ctx context.Context, tc *pipeline.TurnContext, acts []*models.Activity, next pipeline.SendHandler) ([]models.ResourceResponse, error) {
		resps, err := next(ctx, acts)
		if err != nil {
			return resps, err
		}
		// ids and timestamps are assigned by the terminal step, so the
		// clones logged here carry them.
		for _, a := range acts {
			l.log(ctx, a.Clone())
		}
		return resps, nil
	})

	tc.OnUpdateActivity(func(ctx context.Context, tc *pipeline.TurnContext, act *models.Activity, next pipeline.UpdateHandler) (models.ResourceResponse, error) {
		resp, err := next(ctx, act)
		if err != nil {
			return resp, err
		}
		rec := act.Clone()
		rec.Type = models.ActivityMessageUpdate
		l.log(ctx, rec)
		return resp, nil
	})

	tc.OnDeleteActivity(func(ctx context.Context, tc *pipeline.TurnContext, id string, next pipeline.DeleteHandler) error {
		if err := next(ctx, id); err != nil {
			return err
		}
		l.log(ctx, &models.Activity{
			ID:           id,
			Type:         models.ActivityMessageDelete,
			ChannelID:    tc.Ref.ChannelID,
			Conversation: tc.Ref.Conversation,
			From:         tc.Ref.Bot,
			Recipient:    tc.Ref.User,
			Timestamp:    time.Now().UTC(),
		})
		return nil
	})

	return next(ctx, tc)
}

// log appends one record best-effort.
func (l *Logger) log(ctx context.Context, act *models.Activity) {
	if err := l.store.LogActivity(ctx, act); err != nil {
		metrics.TranscriptLogFailures.Inc()
		logger.Warn("transcript_log_failed",
			"channel", act.ChannelID, "conversation", act.Conversation,
			"type", string(act.Type), "error", err)
		return
	}
	metrics.ActivitiesLogged.WithLabelValues(string(act.Type)).Inc()
}
