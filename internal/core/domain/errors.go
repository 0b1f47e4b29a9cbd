package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned when GeoJSON input cannot be parsed or
	// yields no coordinates, or when bounds break the ordering invariant.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidCoordinate is returned for a latitude/longitude outside the
	// WGS 84 ranges.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidPeriod is returned when a date range is malformed or reversed.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidParameter is returned for any other out-of-range request value.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// AuthError reports a failed access-token exchange with the imagery backend.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "auth: " + e.Message
	}
	return fmt.Sprintf("auth: status %d: %s", e.Status, e.Message)
}

// ImageryFetchError reports a network failure or non-2xx response from an
// imagery backend. Payload carries the backend's error body.
type ImageryFetchError struct {
	Status  int
	Payload string
	Err     error
}

func (e *ImageryFetchError) Error() string {
	switch {
	case e.Err != nil:
		return "imagery fetch: " + e.Err.Error()
	case e.Payload != "":
		return fmt.Sprintf("imagery fetch: status %d: %s", e.Status, e.Payload)
	default:
		return fmt.Sprintf("imagery fetch: status %d", e.Status)
	}
}

func (e *ImageryFetchError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a user-input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidGeometry) ||
		errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidParameter)
}
