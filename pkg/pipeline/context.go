package pipeline

import (
	"context"
	"fmt"
	"time"

	"botpipe/pkg/models"
)

// SendHandler is the continuation of a send hook: the next hook, or the
// terminal transport send if none remain.
type SendHandler func(ctx context.Context, acts []*models.Activity) ([]models.ResourceResponse, error)

// SendHook intercepts outbound sends. It may transform the batch before
// forwarding and must invoke next unless it intends to suppress the send.
type SendHook func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error)

// UpdateHandler is the continuation of an update hook.
type UpdateHandler func(ctx context.Context, act *models.Activity) (models.ResourceResponse, error)

// UpdateHook intercepts outbound updates.
type UpdateHook func(ctx context.Context, tc *TurnContext, act *models.Activity, next UpdateHandler) (models.ResourceResponse, error)

// DeleteHandler is the continuation of a delete hook.
type DeleteHandler func(ctx context.Context, id string) error

// DeleteHook intercepts outbound deletes.
type DeleteHook func(ctx context.Context, tc *TurnContext, id string, next DeleteHandler) error

// TurnContext is the per-turn state passed through the middleware chain.
// One instance exists per inbound activity; it is owned by that turn's
// pipeline invocation and is never shared across turns, so no locking
// happens inside it.
type TurnContext struct {
	// Activity is the inbound activity that started the turn.
	Activity *models.Activity
	// Ref is the conversation identity snapshot used for routing.
	Ref models.ConversationReference

	adapter   *Adapter
	turnStart time.Time
	responded bool

	sendHooks   []SendHook
	updateHooks []UpdateHook
	deleteHooks []DeleteHook

	values map[string]any
}

// NewTurnContext builds a context for one turn. Callers normally go
// through Adapter.ProcessActivity instead.
func NewTurnContext(a *Adapter, act *models.Activity, ref models.ConversationReference) *TurnContext {
	return &TurnContext{
		Activity:  act,
		Ref:       ref,
		adapter:   a,
		turnStart: time.Now().UTC(),
	}
}

// Responded reports whether the turn has sent at least one activity.
func (tc *TurnContext) Responded() bool { return tc.responded }

// Set stores a turn-scoped value under key. Middleware use it to hand
// state to later stages of the same turn.
func (tc *TurnContext) Set(key string, v any) {
	if tc.values == nil {
		tc.values = make(map[string]any)
	}
	tc.values[key] = v
}

// Get returns the turn-scoped value stored under key, if any.
func (tc *TurnContext) Get(key string) (any, bool) {
	v, ok := tc.values[key]
	return v, ok
}

// OnSendActivities registers a send hook. Hooks run in registration
// order; a hook registered during a send applies to subsequent sends of
// the same turn, not the one in flight.
func (tc *TurnContext) OnSendActivities(h SendHook) {
	tc.sendHooks = append(tc.sendHooks, h)
}

// OnUpdateActivity registers an update hook.
func (tc *TurnContext) OnUpdateActivity(h UpdateHook) {
	tc.updateHooks = append(tc.updateHooks, h)
}

// OnDeleteActivity registers a delete hook.
func (tc *TurnContext) OnDeleteActivity(h DeleteHook) {
	tc.deleteHooks = append(tc.deleteHooks, h)
}

// SendActivities runs the batch through the send hooks in registration
// order and then the terminal transport. Activities lacking an id when
// they reach the terminal step receive a channel-assigned id and a
// timestamp no earlier than turn start before the call returns, so hooks
// running after their continuation observe assigned ids.
func (tc *TurnContext) SendActivities(ctx context.Context, acts ...*models.Activity) ([]models.ResourceResponse, error) {
	if len(acts) == 0 {
		return nil, fmt.Errorf("send requires at least one activity")
	}
	for _, a := range acts {
		tc.stampOutbound(a)
	}
	terminal := func(ctx context.Context, acts []*models.Activity) ([]models.ResourceResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resps, err := tc.adapter.transport.Send(ctx, tc.Ref, acts)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		for i, a := range acts {
			if i < len(resps) && a.ID == "" {
				a.ID = resps[i].ID
			}
			if a.Timestamp.IsZero() {
				a.Timestamp = now
			}
		}
		tc.responded = true
		return resps, nil
	}
	h := SendHandler(terminal)
	hooks := tc.sendHooks
	for i := len(hooks) - 1; i >= 0; i-- {
		hook, next := hooks[i], h
		h = func(ctx context.Context, acts []*models.Activity) ([]models.ResourceResponse, error) {
			return hook(ctx, tc, acts, next)
		}
	}
	return h(ctx, acts)
}

// SendActivity sends a single activity.
func (tc *TurnContext) SendActivity(ctx context.Context, act *models.Activity) (models.ResourceResponse, error) {
	resps, err := tc.SendActivities(ctx, act)
	if err != nil {
		return models.ResourceResponse{}, err
	}
	if len(resps) == 0 {
		return models.ResourceResponse{}, nil
	}
	return resps[0], nil
}

// SendMessage sends a plain text message activity.
func (tc *TurnContext) SendMessage(ctx context.Context, text string) (models.ResourceResponse, error) {
	return tc.SendActivity(ctx, &models.Activity{Type: models.ActivityMessage, Text: text})
}

// SendTyping sends a typing indicator.
func (tc *TurnContext) SendTyping(ctx context.Context) error {
	_, err := tc.SendActivity(ctx, &models.Activity{Type: models.ActivityTyping})
	return err
}

// UpdateActivity replaces a previously sent activity identified by
// act.ID. The target must already exist in the conversation; unknown ids
// surface ErrNotFound from the terminal step.
func (tc *TurnContext) UpdateActivity(ctx context.Context, act *models.Activity) (models.ResourceResponse, error) {
	if act == nil || act.ID == "" {
		return models.ResourceResponse{}, fmt.Errorf("update requires an activity id")
	}
	tc.stampOutbound(act)
	if act.Type == "" || act.Type == models.ActivityMessage {
		act.Type = models.ActivityMessageUpdate
	}
	terminal := func(ctx context.Context, act *models.Activity) (models.ResourceResponse, error) {
		if err := ctx.Err(); err != nil {
			return models.ResourceResponse{}, err
		}
		resp, err := tc.adapter.transport.Update(ctx, tc.Ref, act)
		if err != nil {
			return models.ResourceResponse{}, err
		}
		if act.Timestamp.IsZero() {
			act.Timestamp = time.Now().UTC()
		}
		return resp, nil
	}
	h := UpdateHandler(terminal)
	hooks := tc.updateHooks
	for i := len(hooks) - 1; i >= 0; i-- {
		hook, next := hooks[i], h
		h = func(ctx context.Context, act *models.Activity) (models.ResourceResponse, error) {
			return hook(ctx, tc, act, next)
		}
	}
	return h(ctx, act)
}

// DeleteActivity removes a previously sent activity by id. Unknown ids
// surface ErrNotFound from the terminal step.
func (tc *TurnContext) DeleteActivity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete requires an activity id")
	}
	terminal := func(ctx context.Context, id string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tc.adapter.transport.Delete(ctx, tc.Ref, id)
	}
	h := DeleteHandler(terminal)
	hooks := tc.deleteHooks
	for i := len(hooks) - 1; i >= 0; i-- {
		hook, next := hooks[i], h
		h = func(ctx context.Context, id string) error {
			return hook(ctx, tc, id, next)
		}
	}
	return h(ctx, id)
}

// stampOutbound fills routing fields from the conversation reference so
// callers can send bare activities.
func (tc *TurnContext) stampOutbound(a *models.Activity) {
	if a.ChannelID == "" {
		a.ChannelID = tc.Ref.ChannelID
	}
	if a.Conversation == "" {
		a.Conversation = tc.Ref.Conversation
	}
	if a.From.ID == "" {
		a.From = tc.Ref.Bot
	}
	if a.Recipient.ID == "" {
		a.Recipient = tc.Ref.User
	}
}
