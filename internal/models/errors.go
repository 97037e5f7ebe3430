package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Lookup and validation errors shared by repositories and services.
var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMediaNotFound indicates a video or playlist could not be resolved to files.
	ErrMediaNotFound = errors.New("media not found")

	// ErrEmptyPlaylist indicates a playlist has no items.
	ErrEmptyPlaylist = errors.New("playlist has no videos")

	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrOwnerRequired indicates the owner_id field is empty.
	ErrOwnerRequired = errors.New("owner_id is required")

	// ErrStreamKeyRequired indicates the stream_key field is empty.
	ErrStreamKeyRequired = errors.New("stream_key is required")
)

// IsValidation reports whether err is (or wraps) an ErrValidation.
func IsValidation(err error) bool {
	var v ErrValidation
	return errors.As(err, &v)
}
