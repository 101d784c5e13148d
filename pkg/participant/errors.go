package participant

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("participant not found")
	ErrGone             = errors.New("participant has been deleted")
	ErrConflict         = errors.New("a participant with this email already exists")
	ErrAlreadyDeleted   = errors.New("participant has already been deleted")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError carries the itemized field failures of a rejected payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Fields[0].Field, e.Fields[0].Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s failed: %w: %v", op, ErrStoreUnavailable, err)
}
