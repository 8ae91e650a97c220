// Package pipeline holds the error taxonomy shared by the processing stages.
// Stages wrap their failures with one of the sentinel kinds; the processor is
// the single place that maps a kind onto a retry or permanent-failure
// decision for the job.
package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks output that stayed unparseable after every repair
	// attempt. Retryable: a fresh inference may produce valid output.
	ErrValidation = errors.New("validation error")

	// ErrExternalService marks an unreachable or non-2xx upstream (LLM
	// gateway, geocoder). Retryable.
	ErrExternalService = errors.New("external service error")

	// ErrNotFound marks a missing report or conversation reference.
	// Permanent: retrying cannot make the reference appear.
	ErrNotFound = errors.New("not found")

	// ErrDatabase marks a persistence failure. Retryable.
	ErrDatabase = errors.New("database error")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

func Externalf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrExternalService)...)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func Databasef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrDatabase)...)
}

// Permanent reports whether err should fail the job without further retries.
func Permanent(err error) bool {
	return errors.Is(err, ErrNotFound)
}
