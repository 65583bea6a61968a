package pipeline

import "errors"

// ErrNotFound marks an update or delete whose target id does not exist in
// the conversation. Transports wrap it so callers can distinguish
// "already deleted or never existed" from a transport outage.
var ErrNotFound = errors.New("activity not found")
