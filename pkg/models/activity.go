package models

import "time"

// ActivityType tags the kind of conversational activity.
type ActivityType string

const (
	ActivityMessage           ActivityType = "message"
	ActivityTyping            ActivityType = "typing"
	ActivityMessageUpdate     ActivityType = "messageUpdate"
	ActivityMessageDelete     ActivityType = "messageDelete"
	ActivityEvent             ActivityType = "event"
	ActivityEndOfConversation ActivityType = "endOfConversation"
)

// KnownType reports whether t is one of the activity kinds the pipeline
// understands.
func KnownType(t ActivityType) bool {
	switch t {
	case ActivityMessage, ActivityTyping, ActivityMessageUpdate,
		ActivityMessageDelete, ActivityEvent, ActivityEndOfConversation:
		return true
	}
	return false
}

// ChannelAccount identifies a participant (user or bot) on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Activity is the unit of conversational data exchanged during a turn.
//
// ID is assigned by the channel (or the store for locally produced
// records) and is unique within a conversation. A messageUpdate or
// messageDelete activity carries the ID of the activity it targets; this
// is how transcript readers correlate edits to originals.
type Activity struct {
	ID           string         `json:"id,omitempty"`
	Type         ActivityType   `json:"type"`
	Timestamp    time.Time      `json:"timestamp,omitempty"`
	ChannelID    string         `json:"channel_id"`
	Conversation string         `json:"conversation"`
	From         ChannelAccount `json:"from,omitempty"`
	Recipient    ChannelAccount `json:"recipient,omitempty"`
	Text         string         `json:"text,omitempty"`
	// ReplyToID references the activity this one replies to, if any.
	ReplyToID string `json:"reply_to_id,omitempty"`
	// Value carries kind-specific payload for event activities.
	Value any `json:"value,omitempty"`
}

// Clone returns a shallow copy of the activity. Transcript and event
// mirrors log clones so later hook mutations cannot alter stored rows.
func (a *Activity) Clone() *Activity {
	cp := *a
	return &cp
}

// Reference extracts a conversation reference snapshot from the activity,
// suitable for proactive re-targeting of updates and deletes.
func (a *Activity) Reference() ConversationReference {
	return ConversationReference{
		ChannelID:    a.ChannelID,
		Conversation: a.Conversation,
		User:         a.From,
		Bot:          a.Recipient,
	}
}

// NewMessage builds a message activity for the given conversation.
func NewMessage(channelID, conversation, text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		ChannelID:    channelID,
		Conversation: conversation,
		Text:         text,
	}
}

// ConversationReference is a channel/conversation identity snapshot. It is
// opaque to the pipeline core beyond routing and correlation.
type ConversationReference struct {
	ChannelID    string         `json:"channel_id"`
	Conversation string         `json:"conversation"`
	ServiceURL   string         `json:"service_url,omitempty"`
	User         ChannelAccount `json:"user,omitempty"`
	Bot          ChannelAccount `json:"bot,omitempty"`
}

// ResourceResponse describes the outcome of a terminal send or update: at
// minimum the id the channel assigned to the activity.
type ResourceResponse struct {
	ID string `json:"id"`
}
