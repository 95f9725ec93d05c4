package action

import (
	"errors"
	"fmt"

	"github.com/aretw0/botfactory/pkg/domain"
)

var (
	// ErrUnknownAction is returned for an action whose tag is not recognized.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidParams is returned when an action's params do not decode or are incomplete.
	ErrInvalidParams = errors.New("invalid action params")
	// ErrNotConfigured is returned when an action needs a collaborator the engine lacks.
	ErrNotConfigured = errors.New("action dependency not configured")
)

// Error is the failure of one action.
type Error struct {
	Kind domain.ActionKind
	Tag  string
	Err  error
}

func (e *Error) Error() string {
	name := string(e.Kind)
	if name == "" {
		name = e.Tag
	}
	return fmt.Sprintf("action %s failed: %v", name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
