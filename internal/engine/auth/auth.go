package auth

import (
	"errors"
	"fmt"
	"strings"
)

var ErrActorRequired = errors.New("actor_id required")

// ForbiddenError indicates the actor may not perform an action on a record
// owned by someone else.
type ForbiddenError struct {
	Action  string
	OwnerID string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s is reserved to inspector %s", e.Action, e.OwnerID)
}

// RequireOwner allows an action only for the inspector owning the record.
// One inspector edits one checklist at a time; others read it.
func RequireOwner(ownerID, actorID, action string) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrActorRequired
	}
	if ownerID != "" && ownerID != actorID {
		return ForbiddenError{Action: action, OwnerID: ownerID}
	}
	return nil
}
