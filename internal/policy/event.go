// Package policy decides per-object access for authenticated users.
package policy

import (
	"net/http"

	"wbpmisueso/internal/models"
)

type Action string

const (
	ActionRead    Action = "read"
	ActionReplace Action = "replace"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

// Safe reports whether the action never mutates state.
func (a Action) Safe() bool {
	return a == ActionRead
}

// ActionForMethod maps an HTTP method onto the action it performs.
func ActionForMethod(method string) Action {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	case http.MethodPut:
		return ActionReplace
	case http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		// POST and anything unknown is treated as a write
		return ActionUpdate
	}
}

// CanAccessEvent: any authenticated user may read; only the creator may write.
// Callers reject unauthenticated requests before asking.
func CanAccessEvent(user *models.User, event *models.Event, action Action) bool {
	if user == nil || event == nil {
		return false
	}
	if action.Safe() {
		return true
	}
	return MayMutateEvent(user, event)
}

func MayMutateEvent(user *models.User, event *models.Event) bool {
	if user == nil || event == nil || user.ID == 0 {
		return false
	}
	return event.CreatedByUser(user.ID)
}
