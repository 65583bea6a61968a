package connector

import (
	"context"
	"fmt"
	"sync"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
	"botpipe/pkg/utils"
)

// Loopback is an in-process transport for local runs and tests. It
// assigns ids itself and tracks which ids exist per conversation so
// updates and deletes of unknown targets fail with ErrNotFound, like a
// real channel would.
type Loopback struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{} // conversation -> ids
}

// NewLoopback returns an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{seen: make(map[string]map[string]struct{})}
}

func (l *Loopback) remember(conversation, id string) {
	ids, ok := l.seen[conversation]
	if !ok {
		ids = make(map[string]struct{})
		l.seen[conversation] = ids
	}
	ids[id] = struct{}{}
}

func (l *Loopback) known(conversation, id string) bool {
	_, ok := l.seen[conversation][id]
	return ok
}

// Send implements pipeline.Transport.
func (l *Loopback) Send(ctx context.Context, ref models.ConversationReference, acts []*models.Activity) ([]models.ResourceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ResourceResponse, 0, len(acts))
	for _, a := range acts {
		id := a.ID
		if id == "" {
			id = utils.GenID()
		}
		l.remember(ref.Conversation, id)
		logger.Debug("loopback_send", "conversation", ref.Conversation, "id", id, "type", string(a.Type), "text", a.Text)
		out = append(out, models.ResourceResponse{ID: id})
	}
	return out, nil
}

// Update implements pipeline.Transport.
func (l *Loopback) Update(ctx context.Context, ref models.ConversationReference, act *models.Activity) (models.ResourceResponse, error) {
	if err := ctx.Err(); err != nil {
		return models.ResourceResponse{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.known(ref.Conversation, act.ID) {
		return models.ResourceResponse{}, fmt.Errorf("activity %s: %w", act.ID, pipeline.ErrNotFound)
	}
	logger.Debug("loopback_update", "conversation", ref.Conversation, "id", act.ID)
	return models.ResourceResponse{ID: act.ID}, nil
}

// Delete implements pipeline.Transport.
func (l *Loopback) Delete(ctx context.Context, ref models.ConversationReference, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.known(ref.Conversation, id) {
		return fmt.Errorf("activity %s: %w", id, pipeline.ErrNotFound)
	}
	delete(l.seen[ref.Conversation], id)
	logger.Debug("loopback_delete", "conversation", ref.Conversation, "id", id)
	return nil
}
