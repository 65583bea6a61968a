package app

import (
	"context"
	"strings"
	"sync"

	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
)

// EchoBot is the demo turn handler: it acknowledges each message with a
// typing indicator followed by an echo reply, and supports editing or
// removing its previous reply via the "update" and "deleteIt" commands.
type EchoBot struct {
	mu sync.Mutex
	// last reply id per conversation, for update/delete commands
	lastID map[string]string
}

// NewEchoBot returns a bot with no conversation memory.
func NewEchoBot() *EchoBot {
	return &EchoBot{lastID: make(map[string]string)}
}

func (b *EchoBot) last(conversation string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastID[conversation]
}

func (b *EchoBot) setLast(conversation, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID[conversation] = id
}

// Handle is the pipeline.Handler run at the bottom of the chain.
func (b *EchoBot) Handle(ctx context.Context, tc *pipeline.TurnContext) error {
	act := tc.Activity
	if act == nil || act.Type != models.ActivityMessage {
		return nil
	}
	conv := tc.Ref.Conversation

	switch {
	case act.Text == "deleteIt":
		id := b.last(conv)
		if id == "" {
			_, err := tc.SendMessage(ctx, "nothing to delete")
			return err
		}
		if err := tc.DeleteActivity(ctx, id); err != nil {
			return err
		}
		b.setLast(conv, "")
		return nil

	case strings.HasPrefix(act.Text, "update "):
		id := b.last(conv)
		if id == "" {
			_, err := tc.SendMessage(ctx, "nothing to update")
			return err
		}
		_, err := tc.UpdateActivity(ctx, &models.Activity{
			ID:   id,
			Type: models.ActivityMessageUpdate,
			Text: strings.TrimPrefix(act.Text, "update "),
		})
		return err

	default:
		if err := tc.SendTyping(ctx); err != nil {
			return err
		}
		resp, err := tc.SendMessage(ctx, "echo:"+act.Text)
		if err != nil {
			return err
		}
		b.setLast(conv, resp.ID)
		return nil
	}
}
