package utils

import "github.com/google/uuid"

// GenID returns a fresh activity id. IDs are unique within a conversation;
// uuids keep them unique globally, which proactive re-targeting relies on.
func GenID() string {
	return uuid.NewString()
}

// GenConversationID returns a fresh conversation id.
func GenConversationID() string {
	return "conv-" + uuid.NewString()
}
