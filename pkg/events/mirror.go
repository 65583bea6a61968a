package events

import (
	"context"
	"time"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
)

// Mirror is a pipeline middleware that publishes every inbound activity
// and every successful outbound operation as an event. Publishing is
// best-effort: broker failures are logged and never abort the turn.
type Mirror struct {
	pub Publisher
}

// NewMirror builds the event-mirroring middleware over pub.
func NewMirror(pub Publisher) *Mirror {
	return &Mirror{pub: pub}
}

// OnTurn implements pipeline.Middleware.
func (m *Mirror) OnTurn(ctx context.Context, tc *pipeline.TurnContext, next pipeline.Handler) error {
	if tc.Activity != nil {
		m.publish(ctx, "inbound", tc.Activity.Clone())
	}

	tc.OnSendActivities(func(ctx context.Context, tc *pipeline.TurnContext, acts []*models.Activity, next pipeline.SendHandler) ([]models.ResourceResponse, error) {
		resps, err := next(ctx, acts)
		if err != nil {
			return resps, err
		}
		for _, a := range acts {
			m.publish(ctx, "send", a.Clone())
		}
		return resps, nil
	})

	tc.OnUpdateActivity(func(ctx context.Context, tc *pipeline.TurnContext, act *models.Activity, next pipeline.UpdateHandler) (models.ResourceResponse, error) {
		resp, err := next(ctx, act)
		if err != nil {
			return resp, err
		}
		m.publish(ctx, "update", act.Clone())
		return resp, nil
	})

	tc.OnDeleteActivity(func(ctx context.Context, tc *pipeline.TurnContext, id string, next pipeline.DeleteHandler) error {
		if err := next(ctx, id); err != nil {
			return err
		}
		m.publish(ctx, "delete", &models.Activity{
			ID:           id,
			Type:         models.ActivityMessageDelete,
			ChannelID:    tc.Ref.ChannelID,
			Conversation: tc.Ref.Conversation,
			Timestamp:    time.Now().UTC(),
		})
		return nil
	})

	return next(ctx, tc)
}

func (m *Mirror) publish(ctx context.Context, kind string, act *models.Activity) {
	env := Envelope{
		CorrelationID: act.Conversation,
		Kind:          kind,
		Activity:      act,
	}
	key := "activity." + kind + "." + act.ChannelID
	if err := m.pub.Publish(ctx, key, env); err != nil {
		logger.Warn("activity_event_publish_failed", "key", key, "error", err)
	}
}
