package app

import (
	"context"
	"testing"
	"time"

	"botpipe/pkg/connector"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
	"botpipe/pkg/transcript"
)

func newEchoHarness() (*pipeline.Adapter, *EchoBot, *transcript.MemoryStore) {
	store := transcript.NewMemoryStore()
	adapter := pipeline.NewAdapter(connector.NewLoopback()).Use(transcript.NewLogger(store))
	return adapter, NewEchoBot(), store
}

func say(t *testing.T, a *pipeline.Adapter, bot *EchoBot, conv, text string) {
	t.Helper()
	act := models.NewMessage("webchat", conv, text)
	act.From = models.ChannelAccount{ID: "user-1"}
	if err := a.ProcessActivity(context.Background(), act, bot.Handle); err != nil {
		t.Fatalf("turn %q: %v", text, err)
	}
}

func records(t *testing.T, s transcript.Store, conv string) []*models.Activity {
	t.Helper()
	var out []*models.Activity
	token := ""
	for {
		page, err := s.ListActivities(context.Background(), "webchat", conv, token, time.Time{})
		if err != nil {
			t.Fatalf("ListActivities: %v", err)
		}
		out = append(out, page.Items...)
		if page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}
	return out
}

func TestEchoBotReplies(t *testing.T) {
	a, bot, store := newEchoHarness()
	say(t, a, bot, "c1", "hello")

	recs := records(t, store, "c1")
	if len(recs) != 3 {
		t.Fatalf("transcript has %d rows, want 3", len(recs))
	}
	if recs[1].Type != models.ActivityTyping {
		t.Fatalf("row 1 type = %s, want typing", recs[1].Type)
	}
	if recs[2].Text != "echo:hello" {
		t.Fatalf("reply text = %q", recs[2].Text)
	}
}

func TestEchoBotUpdateCommand(t *testing.T) {
	a, bot, store := newEchoHarness()
	say(t, a, bot, "c1", "hello")
	say(t, a, bot, "c1", "update corrected")

	recs := records(t, store, "c1")
	last := recs[len(recs)-1]
	if last.Type != models.ActivityMessageUpdate || last.Text != "corrected" {
		t.Fatalf("last row = %+v, want messageUpdate 'corrected'", last)
	}
	// the update row correlates with the original echo reply
	var echoID string
	for _, rec := range recs {
		if rec.Text == "echo:hello" {
			echoID = rec.ID
		}
	}
	if echoID == "" || last.ID != echoID {
		t.Fatalf("update row id %q does not match echo reply id %q", last.ID, echoID)
	}
}

func TestEchoBotDeleteCommand(t *testing.T) {
	a, bot, store := newEchoHarness()
	say(t, a, bot, "c1", "hello")
	say(t, a, bot, "c1", "deleteIt")

	recs := records(t, store, "c1")
	last := recs[len(recs)-1]
	if last.Type != models.ActivityMessageDelete {
		t.Fatalf("last row type = %s, want messageDelete", last.Type)
	}

	// a second delete has nothing left to target
	say(t, a, bot, "c1", "deleteIt")
	recs = records(t, store, "c1")
	if got := recs[len(recs)-1].Text; got != "nothing to delete" {
		t.Fatalf("second delete reply = %q", got)
	}
}

func TestEchoBotConversationsAreIndependent(t *testing.T) {
	a, bot, store := newEchoHarness()
	say(t, a, bot, "c1", "hello")
	// no prior reply exists in c2, so update has no target there
	say(t, a, bot, "c2", "update nope")

	recs := records(t, store, "c2")
	if got := recs[len(recs)-1].Text; got != "nothing to update" {
		t.Fatalf("cross-conversation update reply = %q", got)
	}
	for _, rec := range records(t, store, "c1") {
		if rec.Type == models.ActivityMessageUpdate {
			t.Fatalf("update leaked into c1")
		}
	}
}

func TestEchoBotIgnoresNonMessages(t *testing.T) {
	a, bot, store := newEchoHarness()
	act := &models.Activity{Type: models.ActivityEvent, ChannelID: "webchat", Conversation: "c1", Value: "ping"}
	if err := a.ProcessActivity(context.Background(), act, bot.Handle); err != nil {
		t.Fatalf("event turn: %v", err)
	}
	recs := records(t, store, "c1")
	if len(recs) != 1 {
		t.Fatalf("non-message turn produced %d rows, want 1 (inbound only)", len(recs))
	}
}
