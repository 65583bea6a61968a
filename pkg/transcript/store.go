// Package transcript records every activity that passes through a
// conversation into a durable, paginated, append-only log.
package transcript

import (
	"context"
	"errors"
	"time"

	"botpipe/pkg/models"
)

// PageSize is the maximum number of records a store returns per page.
const PageSize = 20

// ErrBadToken marks a continuation token the store cannot parse or that
// belongs to a different listing.
var ErrBadToken = errors.New("invalid continuation token")

// PagedActivities is one forward page of transcript records, oldest
// first. ContinuationToken is opaque; it is empty when no further pages
// exist.
type PagedActivities struct {
	Items             []*models.Activity `json:"items"`
	ContinuationToken string             `json:"continuation_token,omitempty"`
}

// PagedTranscripts is one forward page of conversation summaries.
type PagedTranscripts struct {
	Items             []models.TranscriptInfo `json:"items"`
	ContinuationToken string                  `json:"continuation_token,omitempty"`
}

// Store is the pluggable transcript backend.
//
// The log is append-only: update- and delete-kind records are inserted as
// their own rows, never merged into the original, and current state of an
// activity is reconstructible only by scanning for the latest record
// sharing its id. Implementations must serialize appends for the same
// conversation while letting different conversations proceed
// independently.
type Store interface {
	// LogActivity appends one record. The store assigns an id and
	// timestamp when the activity lacks them. Callers must not log the
	// same send twice; exact-duplicate idempotency is not guaranteed.
	LogActivity(ctx context.Context, act *models.Activity) error

	// ListActivities returns a page of records for a conversation in
	// insertion order. An empty token starts from the beginning. Records
	// with a timestamp strictly before start are filtered out when start
	// is non-zero.
	ListActivities(ctx context.Context, channelID, conversation, token string, start time.Time) (PagedActivities, error)

	// ListTranscripts enumerates distinct conversations for a channel.
	ListTranscripts(ctx context.Context, channelID, token string) (PagedTranscripts, error)

	// DeleteTranscript removes all records for a conversation. Deleting a
	// missing conversation succeeds; subsequent reads return empty pages.
	DeleteTranscript(ctx context.Context, channelID, conversation string) error
}
