package validation

import (
	"errors"
	"fmt"
	"strings"

	"botpipe/pkg/models"
)

// Rules configures activity validation. Zero values disable a check.
type Rules struct {
	// MaxTextLen bounds the text field of message-kind activities.
	MaxTextLen int
	// RequireFrom demands a sender account on inbound message activities.
	RequireFrom bool
}

var rules Rules

// SetRules installs the process-wide validation rules.
func SetRules(r Rules) { rules = r }

// ValidateActivity checks the shape of an activity arriving at the
// pipeline boundary. Outbound activities produced in-process are trusted
// and not re-validated.
func ValidateActivity(a *models.Activity) error {
	if a == nil {
		return errors.New("activity is nil")
	}
	var errs []string
	if a.Type == "" {
		errs = append(errs, "type is required")
	} else if !models.KnownType(a.Type) {
		errs = append(errs, fmt.Sprintf("unknown activity type: %s", a.Type))
	}
	if a.ChannelID == "" {
		errs = append(errs, "channel_id is required")
	}
	if a.Conversation == "" {
		errs = append(errs, "conversation is required")
	}
	switch a.Type {
	case models.ActivityMessage:
		if a.Text == "" {
			errs = append(errs, "text is required for message activities")
		}
		if rules.MaxTextLen > 0 && len(a.Text) > rules.MaxTextLen {
			errs = append(errs, fmt.Sprintf("text exceeds max length: %d > %d", len(a.Text), rules.MaxTextLen))
		}
		if rules.RequireFrom && a.From.ID == "" {
			errs = append(errs, "from.id is required")
		}
	case models.ActivityMessageUpdate:
		if a.ID == "" {
			errs = append(errs, "id is required for messageUpdate activities")
		}
	case models.ActivityMessageDelete:
		if a.ID == "" {
			errs = append(errs, "id is required for messageDelete activities")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
