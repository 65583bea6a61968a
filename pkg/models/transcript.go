package models

// TranscriptInfo summarizes one stored conversation transcript.
type TranscriptInfo struct {
	ChannelID    string `json:"channel_id"`
	Conversation string `json:"conversation"`
	// Count is the number of records appended so far.
	Count int `json:"count"`
}
