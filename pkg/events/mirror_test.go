package events

import (
	"context"
	"errors"
	"testing"

	"botpipe/pkg/connector"
	"botpipe/pkg/models"
	"botpipe/pkg/pipeline"
)

// capturePublisher records published envelopes in order.
type capturePublisher struct {
	keys []string
	envs []Envelope
	fail error
}

func (p *capturePublisher) Publish(ctx context.Context, key string, env Envelope) error {
	if p.fail != nil {
		return p.fail
	}
	p.keys = append(p.keys, key)
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func runTurn(t *testing.T, pub Publisher, handler pipeline.Handler) {
	t.Helper()
	a := pipeline.NewAdapter(connector.NewLoopback()).Use(NewMirror(pub))
	act := models.NewMessage("webchat", "c1", "hi")
	if err := a.ProcessActivity(context.Background(), act, handler); err != nil {
		t.Fatalf("ProcessActivity: %v", err)
	}
}

func TestMirrorPublishesTurnEvents(t *testing.T) {
	pub := &capturePublisher{}
	runTurn(t, pub, func(ctx context.Context, tc *pipeline.TurnContext) error {
		resp, err := tc.SendMessage(ctx, "reply")
		if err != nil {
			return err
		}
		if _, err := tc.UpdateActivity(ctx, &models.Activity{ID: resp.ID, Text: "reply v2"}); err != nil {
			return err
		}
		return tc.DeleteActivity(ctx, resp.ID)
	})

	wantKeys := []string{
		"activity.inbound.webchat",
		"activity.send.webchat",
		"activity.update.webchat",
		"activity.delete.webchat",
	}
	if len(pub.keys) != len(wantKeys) {
		t.Fatalf("published %d events, want %d: %v", len(pub.keys), len(wantKeys), pub.keys)
	}
	for i, want := range wantKeys {
		if pub.keys[i] != want {
			t.Fatalf("event %d key = %s, want %s", i, pub.keys[i], want)
		}
	}
	for i, env := range pub.envs {
		if env.CorrelationID != "c1" {
			t.Fatalf("event %d correlation = %q, want c1", i, env.CorrelationID)
		}
		if env.Activity == nil {
			t.Fatalf("event %d missing activity", i)
		}
	}
	if pub.envs[0].Activity.Text != "hi" {
		t.Fatalf("inbound event text = %q", pub.envs[0].Activity.Text)
	}
	if pub.envs[3].Activity.Type != models.ActivityMessageDelete {
		t.Fatalf("delete event type = %s", pub.envs[3].Activity.Type)
	}
}

func TestMirrorSkipsFailedOperations(t *testing.T) {
	pub := &capturePublisher{}
	runTurn(t, pub, func(ctx context.Context, tc *pipeline.TurnContext) error {
		// unknown target, so the terminal fails and no event is emitted
		if err := tc.DeleteActivity(ctx, "never-sent"); !errors.Is(err, pipeline.ErrNotFound) {
			t.Fatalf("delete err = %v, want ErrNotFound", err)
		}
		return nil
	})
	if len(pub.keys) != 1 || pub.keys[0] != "activity.inbound.webchat" {
		t.Fatalf("published keys = %v, want inbound only", pub.keys)
	}
}

func TestMirrorBrokerFailureDoesNotAbortTurn(t *testing.T) {
	pub := &capturePublisher{fail: errors.New("broker gone")}
	runTurn(t, pub, func(ctx context.Context, tc *pipeline.TurnContext) error {
		_, err := tc.SendMessage(ctx, "still delivered")
		return err
	})
}
