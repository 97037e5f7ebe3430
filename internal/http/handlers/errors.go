package handlers

import (
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

// parseID parses a path ID, returning a 400 error when malformed.
func parseID(raw, what string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest(fmt.Sprintf("invalid %s ID format", what), err)
	}
	return id, nil
}

// parseOptionalID parses an optional reference ID from a request body.
func parseOptionalID(raw, field string) (*models.ULID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := models.ParseULID(raw)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
			Location: "body." + field,
			Message:  "must be a valid ID",
			Value:    raw,
		})
	}
	return &id, nil
}

func optionalIDString(id *models.ULID) string {
	if id == nil || id.IsZero() {
		return ""
	}
	return id.String()
}

// apiError maps service and relay errors onto HTTP status codes.
func apiError(err error, what string) error {
	var v models.ErrValidation
	switch {
	case err == nil:
		return nil
	case errors.As(err, &v):
		return huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
			Location: "body." + v.Field,
			Message:  v.Message,
		})
	case errors.Is(err, models.ErrOwnerRequired),
		errors.Is(err, models.ErrNameRequired),
		errors.Is(err, models.ErrStreamKeyRequired):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, models.ErrNotFound):
		return huma.Error404NotFound(what + " not found")
	case errors.Is(err, relay.ErrStreamActive):
		return huma.Error409Conflict("stream is already active")
	case errors.Is(err, relay.ErrStreamNotActive):
		return huma.Error409Conflict("stream is not active")
	case errors.Is(err, models.ErrMediaNotFound),
		errors.Is(err, models.ErrEmptyPlaylist),
		errors.Is(err, relay.ErrNoMedia),
		errors.Is(err, relay.ErrMediaNotFound),
		errors.Is(err, relay.ErrNoDestination):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError(fmt.Sprintf("failed to process %s", what), err)
	}
}
