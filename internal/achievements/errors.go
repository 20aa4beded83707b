package achievements

import "errors"

// Definition loading error types.
var (
	ErrMissingID        = errors.New("achievement definition missing id")
	ErrDuplicateID      = errors.New("duplicate achievement id")
	ErrUnknownCondition = errors.New("unknown achievement condition")
	ErrInvalidThreshold = errors.New("invalid achievement threshold")
	ErrEmptyDefinitions = errors.New("achievement definition file contains no achievements")
)
