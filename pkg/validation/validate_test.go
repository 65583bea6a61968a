package validation

import (
	"strings"
	"testing"

	"botpipe/pkg/models"
)

func TestValidateActivity(t *testing.T) {
	cases := []struct {
		name    string
		act     *models.Activity
		wantErr string
	}{
		{"nil activity", nil, "activity is nil"},
		{"valid message", &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Conversation: "c1", Text: "hi"}, ""},
		{"valid typing", &models.Activity{Type: models.ActivityTyping, ChannelID: "web", Conversation: "c1"}, ""},
		{"missing type", &models.Activity{ChannelID: "web", Conversation: "c1"}, "type is required"},
		{"unknown type", &models.Activity{Type: "carouselCard", ChannelID: "web", Conversation: "c1"}, "unknown activity type"},
		{"missing channel", &models.Activity{Type: models.ActivityMessage, Conversation: "c1", Text: "hi"}, "channel_id is required"},
		{"missing conversation", &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Text: "hi"}, "conversation is required"},
		{"message without text", &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Conversation: "c1"}, "text is required"},
		{"update without id", &models.Activity{Type: models.ActivityMessageUpdate, ChannelID: "web", Conversation: "c1"}, "id is required"},
		{"delete without id", &models.Activity{Type: models.ActivityMessageDelete, ChannelID: "web", Conversation: "c1"}, "id is required"},
	}
	for _, tc := range cases {
		err := ValidateActivity(tc.act)
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error = %v, want substring %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestValidateActivityRules(t *testing.T) {
	defer SetRules(Rules{})

	SetRules(Rules{MaxTextLen: 5})
	long := &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Conversation: "c1", Text: "toolongtext"}
	if err := ValidateActivity(long); err == nil || !strings.Contains(err.Error(), "exceeds max length") {
		t.Fatalf("long text error = %v", err)
	}
	short := &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Conversation: "c1", Text: "ok"}
	if err := ValidateActivity(short); err != nil {
		t.Fatalf("short text: %v", err)
	}

	SetRules(Rules{RequireFrom: true})
	anon := &models.Activity{Type: models.ActivityMessage, ChannelID: "web", Conversation: "c1", Text: "hi"}
	if err := ValidateActivity(anon); err == nil || !strings.Contains(err.Error(), "from.id is required") {
		t.Fatalf("anonymous message error = %v", err)
	}
	anon.From = models.ChannelAccount{ID: "u1"}
	if err := ValidateActivity(anon); err != nil {
		t.Fatalf("identified message: %v", err)
	}

	// collected errors are reported together
	SetRules(Rules{})
	bad := &models.Activity{Type: models.ActivityMessage}
	err := ValidateActivity(bad)
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"channel_id", "conversation", "text"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err.Error(), want)
		}
	}
}
