package stage

import (
	"errors"
	"fmt"
)

var (
	// ErrPermission is returned before any mutation or network send when the
	// caller lacks rights for the operation.
	ErrPermission = errors.New("permission denied")

	// ErrValidation wraps every rejection of untrusted or partial data.
	ErrValidation = errors.New("invalid stage object")

	ErrUnregisteredType = fmt.Errorf("%w: unregistered object type", ErrValidation)
	ErrInvalidLayer     = fmt.Errorf("%w: invalid layer", ErrValidation)
	ErrInvalidScope     = fmt.Errorf("%w: invalid scope", ErrValidation)
	ErrInvalidValue     = fmt.Errorf("%w: invalid value", ErrValidation)
	ErrInvalidVersion   = fmt.Errorf("%w: unsupported version", ErrValidation)

	ErrDuplicateType = errors.New("duplicate stage object type")
	ErrDuplicateID   = errors.New("stage object already exists")
	ErrNotFound      = errors.New("stage object not found")
)
