package service

import (
	"errors"
	"fmt"

	"github.com/Leganyst/dispatch-core/internal/repository"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrOrderOnSheet       = errors.New("order is already on a delegate sheet")
	ErrDriverMismatch     = errors.New("order is assigned to another driver")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInUse              = errors.New("still in use")

	// Storage sentinels surface unchanged so callers need one import.
	ErrNotFound = repository.ErrNotFound
	ErrConflict = repository.ErrConflict
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound names the missing entity while keeping ErrNotFound matchable.
func notFound(entity string, key any, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %v: %w", entity, key, ErrNotFound)
	}
	return fmt.Errorf("load %s %v: %w", entity, key, err)
}
