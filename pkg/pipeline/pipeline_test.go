package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"botpipe/pkg/models"
)

// fakeTransport records terminal calls and can be primed to fail.
type fakeTransport struct {
	sent    [][]*models.Activity
	updated []*models.Activity
	deleted []string
	nextID  int
	fail    error
}

func (f *fakeTransport) Send(ctx context.Context, ref models.ConversationReference, acts []*models.Activity) ([]models.ResourceResponse, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	batch := make([]*models.Activity, len(acts))
	copy(batch, acts)
	f.sent = append(f.sent, batch)
	out := make([]models.ResourceResponse, 0, len(acts))
	for range acts {
		f.nextID++
		out = append(out, models.ResourceResponse{ID: fmt.Sprintf("id-%d", f.nextID)})
	}
	return out, nil
}

func (f *fakeTransport) Update(ctx context.Context, ref models.ConversationReference, act *models.Activity) (models.ResourceResponse, error) {
	if f.fail != nil {
		return models.ResourceResponse{}, f.fail
	}
	f.updated = append(f.updated, act)
	return models.ResourceResponse{ID: act.ID}, nil
}

func (f *fakeTransport) Delete(ctx context.Context, ref models.ConversationReference, id string) error {
	if f.fail != nil {
		return f.fail
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func inbound(conv, text string) *models.Activity {
	return models.NewMessage("test", conv, text)
}

func TestChainOrdering(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Handler) error {
			trace = append(trace, name+":in")
			err := next(ctx, tc)
			trace = append(trace, name+":out")
			return err
		})
	}
	a := NewAdapter(&fakeTransport{}).Use(mw("m1"), mw("m2"), mw("m3"))
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		trace = append(trace, "terminal")
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	want := "m1:in,m2:in,m3:in,terminal,m3:out,m2:out,m1:out"
	if got := strings.Join(trace, ","); got != want {
		t.Fatalf("trace = %s, want %s", got, want)
	}
}

func TestChainShortCircuit(t *testing.T) {
	ran := false
	a := NewAdapter(&fakeTransport{}).Use(
		MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Handler) error {
			return nil // decline to call next
		}),
	)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	if ran {
		t.Fatalf("terminal handler ran despite short-circuit")
	}
}

func TestChainErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var after []string
	a := NewAdapter(&fakeTransport{}).Use(
		MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Handler) error {
			err := next(ctx, tc)
			after = append(after, "m1")
			return err
		}),
		MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Handler) error {
			return boom
		}),
	)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		t.Fatalf("terminal handler should not run")
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	// m1 still observes the error on the way out.
	if len(after) != 1 {
		t.Fatalf("upstream middleware did not unwind: %v", after)
	}
}

func TestOnTurnErrorIntercepts(t *testing.T) {
	boom := errors.New("boom")
	var seen error
	a := NewAdapter(&fakeTransport{}).OnTurnError(func(ctx context.Context, tc *TurnContext, err error) error {
		seen = err
		return nil
	})
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		return boom
	})
	if err != nil {
		t.Fatalf("handled turn error should not propagate, got %v", err)
	}
	if !errors.Is(seen, boom) {
		t.Fatalf("turn-error handler saw %v, want %v", seen, boom)
	}
}

func TestSendAssignsIDsAndStampsRouting(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	in := inbound("c1", "hi")
	in.From = models.ChannelAccount{ID: "user-1"}
	in.Recipient = models.ChannelAccount{ID: "bot-1"}
	err := a.ProcessActivity(context.Background(), in, func(ctx context.Context, tc *TurnContext) error {
		resps, err := tc.SendActivities(ctx,
			&models.Activity{Type: models.ActivityMessage, Text: "one"},
			&models.Activity{Type: models.ActivityMessage, Text: "two"},
		)
		if err != nil {
			return err
		}
		if len(resps) != 2 || resps[0].ID != "id-1" || resps[1].ID != "id-2" {
			t.Fatalf("unexpected responses: %+v", resps)
		}
		if !tc.Responded() {
			t.Fatalf("Responded() = false after send")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	batch := ft.sent[0]
	for i, act := range batch {
		if act.ID == "" {
			t.Fatalf("activity %d missing assigned id", i)
		}
		if act.Timestamp.IsZero() {
			t.Fatalf("activity %d missing timestamp", i)
		}
		if act.ChannelID != "test" || act.Conversation != "c1" {
			t.Fatalf("activity %d routing not stamped: %+v", i, act)
		}
		// replies go from the bot back to the user
		if act.From.ID != "bot-1" || act.Recipient.ID != "user-1" {
			t.Fatalf("activity %d participants not stamped: %+v", i, act)
		}
	}
}

func TestSendHooksRunInOrderAndSeeAssignedIDs(t *testing.T) {
	var trace []string
	a := NewAdapter(&fakeTransport{})
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error) {
			if acts[0].ID != "" {
				t.Fatalf("hook h1 saw id %q before terminal", acts[0].ID)
			}
			trace = append(trace, "h1:in")
			resps, err := next(ctx, acts)
			if acts[0].ID == "" {
				t.Fatalf("hook h1 did not observe assigned id after continuation")
			}
			trace = append(trace, "h1:out")
			return resps, err
		})
		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error) {
			trace = append(trace, "h2:in")
			resps, err := next(ctx, acts)
			trace = append(trace, "h2:out")
			return resps, err
		})
		_, err := tc.SendMessage(ctx, "hello")
		return err
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	want := "h1:in,h2:in,h2:out,h1:out"
	if got := strings.Join(trace, ","); got != want {
		t.Fatalf("hook trace = %s, want %s", got, want)
	}
}

func TestSendHookMayTransformBatch(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error) {
			// first hook sees the raw text, before any transformation
			if acts[0].Text != "quiet" {
				t.Fatalf("h1 saw %q before its continuation", acts[0].Text)
			}
			resps, err := next(ctx, acts)
			// and the downstream hook's transformation after it
			if acts[0].Text != "QUIET" {
				t.Fatalf("h1 saw %q after its continuation", acts[0].Text)
			}
			return resps, err
		})
		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error) {
			for _, act := range acts {
				act.Text = strings.ToUpper(act.Text)
			}
			return next(ctx, acts)
		})
		_, err := tc.SendMessage(ctx, "quiet")
		return err
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	if got := ft.sent[0][0].Text; got != "QUIET" {
		t.Fatalf("transport saw %q, want transformed text", got)
	}
}

func TestSendHookMaySuppress(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		tc.OnSendActivities(func(ctx context.Context, tc *TurnContext, acts []*models.Activity, next SendHandler) ([]models.ResourceResponse, error) {
			return nil, nil // swallow without forwarding
		})
		if _, err := tc.SendMessage(ctx, "dropped"); err != nil {
			return err
		}
		if tc.Responded() {
			t.Fatalf("suppressed send must not mark the turn responded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("transport received %d batches, want 0", len(ft.sent))
	}
}

func TestSendEmptyBatchRejected(t *testing.T) {
	a := NewAdapter(&fakeTransport{})
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		_, err := tc.SendActivities(ctx)
		return err
	})
	if err == nil {
		t.Fatalf("empty batch should fail")
	}
}

func TestSendTransportErrorPropagates(t *testing.T) {
	boom := errors.New("channel down")
	a := NewAdapter(&fakeTransport{fail: boom})
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		_, err := tc.SendMessage(ctx, "hello")
		if tc.Responded() {
			t.Fatalf("failed send must not mark responded")
		}
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestSendCancelledContext(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := tc.SendMessage(cctx, "late")
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("cancelled send reached the transport")
	}
}

func TestUpdateCoercesTypeAndRequiresID(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		if _, err := tc.UpdateActivity(ctx, &models.Activity{Text: "no id"}); err == nil {
			t.Fatalf("update without id should fail")
		}
		_, err := tc.UpdateActivity(ctx, &models.Activity{ID: "a1", Type: models.ActivityMessage, Text: "edited"})
		return err
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	if len(ft.updated) != 1 {
		t.Fatalf("transport saw %d updates, want 1", len(ft.updated))
	}
	if got := ft.updated[0].Type; got != models.ActivityMessageUpdate {
		t.Fatalf("update type = %s, want %s", got, models.ActivityMessageUpdate)
	}
}

func TestDeleteHookComposition(t *testing.T) {
	ft := &fakeTransport{}
	var hookID string
	a := NewAdapter(ft)
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		tc.OnDeleteActivity(func(ctx context.Context, tc *TurnContext, id string, next DeleteHandler) error {
			hookID = id
			return next(ctx, id)
		})
		if err := tc.DeleteActivity(ctx, ""); err == nil {
			t.Fatalf("delete without id should fail")
		}
		return tc.DeleteActivity(ctx, "a7")
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
	if hookID != "a7" {
		t.Fatalf("hook saw id %q, want a7", hookID)
	}
	if len(ft.deleted) != 1 || ft.deleted[0] != "a7" {
		t.Fatalf("transport deletions = %v", ft.deleted)
	}
}

func TestProcessActivityStampsTimestamp(t *testing.T) {
	a := NewAdapter(&fakeTransport{})
	in := inbound("c1", "hi")
	err := a.ProcessActivity(context.Background(), in, func(ctx context.Context, tc *TurnContext) error {
		if tc.Activity.Timestamp.IsZero() {
			t.Fatalf("inbound timestamp not stamped")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
}

func TestContinueConversation(t *testing.T) {
	ft := &fakeTransport{}
	a := NewAdapter(ft)
	ref := models.ConversationReference{
		ChannelID:    "test",
		Conversation: "c9",
		User:         models.ChannelAccount{ID: "user-1"},
		Bot:          models.ChannelAccount{ID: "bot-1"},
	}
	err := a.ContinueConversation(context.Background(), ref, func(ctx context.Context, tc *TurnContext) error {
		if tc.Activity.Type != models.ActivityEvent {
			t.Fatalf("synthetic activity type = %s", tc.Activity.Type)
		}
		if tc.Ref.Conversation != "c9" {
			t.Fatalf("ref conversation = %s", tc.Ref.Conversation)
		}
		_, err := tc.SendMessage(ctx, "proactive")
		return err
	})
	if err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if got := ft.sent[0][0].Conversation; got != "c9" {
		t.Fatalf("proactive send routed to %q, want c9", got)
	}
}

func TestTurnValues(t *testing.T) {
	a := NewAdapter(&fakeTransport{})
	err := a.ProcessActivity(context.Background(), inbound("c1", "hi"), func(ctx context.Context, tc *TurnContext) error {
		if _, ok := tc.Get("missing"); ok {
			t.Fatalf("Get on empty context returned ok")
		}
		tc.Set("lang", "nl")
		v, ok := tc.Get("lang")
		if !ok || v.(string) != "nl" {
			t.Fatalf("Get(lang) = %v, %v", v, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
}
