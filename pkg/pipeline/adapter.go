package pipeline

import (
	"context"
	"fmt"
	"time"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
)

// Transport is the terminal step of every outbound operation: the real
// channel connector behind the hook chains. Errors are surfaced
// unmodified to the caller of the outbound operation.
type Transport interface {
	Send(ctx context.Context, ref models.ConversationReference, acts []*models.Activity) ([]models.ResourceResponse, error)
	Update(ctx context.Context, ref models.ConversationReference, act *models.Activity) (models.ResourceResponse, error)
	Delete(ctx context.Context, ref models.ConversationReference, id string) error
}

// TurnErrorHandler intercepts an error escaping the middleware chain. Its
// return value replaces the turn's error; returning nil marks the turn
// handled.
type TurnErrorHandler func(ctx context.Context, tc *TurnContext, err error) error

// Adapter owns the middleware chain and the transport, and drives one
// pipeline invocation per inbound activity. Multiple turns may run
// concurrently; each gets its own TurnContext.
type Adapter struct {
	chain       *Chain
	transport   Transport
	onTurnError TurnErrorHandler
}

// NewAdapter builds an adapter over the given transport with an initially
// empty chain.
func NewAdapter(t Transport) *Adapter {
	return &Adapter{chain: NewChain(), transport: t}
}

// Use appends middleware to the adapter's chain, in order.
func (a *Adapter) Use(mw ...Middleware) *Adapter {
	a.chain.Use(mw...)
	return a
}

// OnTurnError installs a global turn-error handler.
func (a *Adapter) OnTurnError(fn TurnErrorHandler) *Adapter {
	a.onTurnError = fn
	return a
}

// ProcessActivity runs one turn: it builds the turn context for the
// inbound activity, stamps a timestamp on first observation, and executes
// the chain down to handler. An error from the chain aborts the turn and
// reaches the installed turn-error handler, if any.
func (a *Adapter) ProcessActivity(ctx context.Context, act *models.Activity, handler Handler) error {
	if act == nil {
		return fmt.Errorf("process requires an activity")
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = time.Now().UTC()
	}
	tc := NewTurnContext(a, act, act.Reference())
	err := a.chain.Run(ctx, tc, handler)
	if err != nil && a.onTurnError != nil {
		logger.Warn("turn_error_intercepted", "channel", act.ChannelID, "conversation", act.Conversation, "error", err)
		return a.onTurnError(ctx, tc, err)
	}
	return err
}

// ContinueConversation re-enters a conversation outside an inbound turn,
// e.g. to proactively update or delete a previously sent activity. The
// synthetic event activity carries the reference's routing fields, and
// the chain runs as for a normal turn.
func (a *Adapter) ContinueConversation(ctx context.Context, ref models.ConversationReference, handler Handler) error {
	act := &models.Activity{
		Type:         models.ActivityEvent,
		ChannelID:    ref.ChannelID,
		Conversation: ref.Conversation,
		From:         ref.Bot,
		Recipient:    ref.User,
		Timestamp:    time.Now().UTC(),
		Value:        "continueConversation",
	}
	tc := NewTurnContext(a, act, ref)
	err := a.chain.Run(ctx, tc, handler)
	if err != nil && a.onTurnError != nil {
		return a.onTurnError(ctx, tc, err)
	}
	return err
}
