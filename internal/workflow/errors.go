package workflow

import "errors"

// Sentinel errors for the operator-facing operations. The HTTP layer maps
// these onto status codes with errors.Is.
var (
	// ErrNotFound means the referenced item, comment or response does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the resource exists but belongs to another
	// operator.
	ErrUnauthorized = errors.New("not authorized")

	// ErrValidation means the request payload failed a precondition, such
	// as an empty edited text or an unknown post kind.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means the operation is not legal in the draft's current
	// lifecycle state, such as publishing an already published response.
	ErrConflict = errors.New("conflict with current state")

	// ErrRemote means the remote platform call failed and the local state
	// was left unchanged.
	ErrRemote = errors.New("remote platform call failed")
)
