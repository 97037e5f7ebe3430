package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/restreamer/internal/relay"
	"github.com/jmylchreest/restreamer/internal/service"
)

// StreamHandler handles stream API endpoints.
type StreamHandler struct {
	streamService *service.StreamService
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(streamService *service.StreamService) *StreamHandler {
	return &StreamHandler{streamService: streamService}
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams",
		Summary:     "List streams",
		Description: "Returns an owner's streams, newest first",
		Tags:        []string{"Streams"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listActiveStreams",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/active",
		Summary:     "List active streams",
		Description: "Returns runtime status for every running relay",
		Tags:        []string{"Streams"},
	}, h.Active)

	huma.Register(api, huma.Operation{
		OperationID:   "createStream",
		Method:        http.MethodPost,
		Path:          "/api/v1/streams",
		Summary:       "Create stream",
		Description:   "Creates a relay destination",
		Tags:          []string{"Streams"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getStream",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/{id}",
		Summary:     "Get stream",
		Tags:        []string{"Streams"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "updateStream",
		Method:      http.MethodPut,
		Path:        "/api/v1/streams/{id}",
		Summary:     "Update stream",
		Description: "Replaces a stream's settings. Changes apply from the next start",
		Tags:        []string{"Streams"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteStream",
		Method:        http.MethodDelete,
		Path:          "/api/v1/streams/{id}",
		Summary:       "Delete stream",
		Description:   "Deletes a stream and its session history. Rejected while the stream is active",
		Tags:          []string{"Streams"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "startStream",
		Method:      http.MethodPost,
		Path:        "/api/v1/streams/{id}/start",
		Summary:     "Start stream",
		Description: "Starts relaying the stream's video or a playlist",
		Tags:        []string{"Streams"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopStream",
		Method:      http.MethodPost,
		Path:        "/api/v1/streams/{id}/stop",
		Summary:     "Stop stream",
		Tags:        []string{"Streams"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamLive",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/{id}/live",
		Summary:     "Get live status",
		Description: "Returns runtime status and a resource sample of the relay process. 404 when not active",
		Tags:        []string{"Streams"},
	}, h.Live)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/{id}/sessions",
		Summary:     "Get session history",
		Tags:        []string{"Streams"},
	}, h.Sessions)
}

// ListStreamsInput is the input for listing streams.
type ListStreamsInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// ListStreamsOutput is the output for listing streams.
type ListStreamsOutput struct {
	Body struct {
		Streams []StreamResponse `json:"streams"`
	}
}

// List returns an owner's streams.
func (h *StreamHandler) List(ctx context.Context, input *ListStreamsInput) (*ListStreamsOutput, error) {
	streams, err := h.streamService.List(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "streams")
	}

	resp := &ListStreamsOutput{}
	resp.Body.Streams = make([]StreamResponse, 0, len(streams))
	for _, s := range streams {
		resp.Body.Streams = append(resp.Body.Streams, StreamFromModel(s))
	}
	return resp, nil
}

// ActiveStreamsOutput is the output for listing active streams.
type ActiveStreamsOutput struct {
	Body struct {
		Count   int              `json:"count"`
		Streams []StatusResponse `json:"streams"`
	}
}

// Active returns every running relay.
func (h *StreamHandler) Active(_ context.Context, _ *struct{}) (*ActiveStreamsOutput, error) {
	active := h.streamService.Active()

	resp := &ActiveStreamsOutput{}
	resp.Body.Streams = make([]StatusResponse, 0, len(active))
	for _, st := range active {
		resp.Body.Streams = append(resp.Body.Streams, StatusFromRelay(st))
	}
	resp.Body.Count = len(resp.Body.Streams)
	return resp, nil
}

// CreateStreamInput is the input for creating a stream.
type CreateStreamInput struct {
	Body StreamRequest
}

// StreamOutput is the output for single-stream operations.
type StreamOutput struct {
	Body StreamResponse
}

// Create creates a stream.
func (h *StreamHandler) Create(ctx context.Context, input *CreateStreamInput) (*StreamOutput, error) {
	stream, err := input.Body.toModel()
	if err != nil {
		return nil, err
	}
	if err := h.streamService.Create(ctx, stream); err != nil {
		return nil, apiError(err, "stream")
	}
	return &StreamOutput{Body: StreamFromModel(stream)}, nil
}

// GetStreamInput is the input for getting a stream.
type GetStreamInput struct {
	ID string `path:"id" doc:"Stream ID (ULID)"`
}

// GetByID returns a stream by ID.
func (h *StreamHandler) GetByID(ctx context.Context, input *GetStreamInput) (*StreamOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	stream, err := h.streamService.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err, "stream")
	}
	return &StreamOutput{Body: StreamFromModel(stream)}, nil
}

// UpdateStreamInput is the input for updating a stream.
type UpdateStreamInput struct {
	ID   string `path:"id" doc:"Stream ID (ULID)"`
	Body StreamRequest
}

// Update updates a stream.
func (h *StreamHandler) Update(ctx context.Context, input *UpdateStreamInput) (*StreamOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	stream, err := input.Body.toModel()
	if err != nil {
		return nil, err
	}
	stream.ID = id
	if err := h.streamService.Update(ctx, stream); err != nil {
		return nil, apiError(err, "stream")
	}

	updated, err := h.streamService.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err, "stream")
	}
	return &StreamOutput{Body: StreamFromModel(updated)}, nil
}

// DeleteStreamInput is the input for deleting a stream.
type DeleteStreamInput struct {
	ID string `path:"id" doc:"Stream ID (ULID)"`
}

// Delete deletes a stream.
func (h *StreamHandler) Delete(ctx context.Context, input *DeleteStreamInput) (*DeleteOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	if err := h.streamService.Delete(ctx, id); err != nil {
		return nil, apiError(err, "stream")
	}
	return &DeleteOutput{}, nil
}

// StartStreamInput is the input for starting a stream.
type StartStreamInput struct {
	ID   string `path:"id" doc:"Stream ID (ULID)"`
	Body struct {
		PlaybackMode   string `json:"playback_mode,omitempty" enum:"loop,sequential,random" doc:"Playback mode (default loop)"`
		RepeatPlaylist bool   `json:"repeat_playlist,omitempty" doc:"Wrap sequential and random playlists back to the first item"`
		PlaylistID     string `json:"playlist_id,omitempty" doc:"Play this playlist instead of the stream's video"`
	}
}

// StatusOutput is the output for start and stop.
type StatusOutput struct {
	Body StatusResponse
}

// Start starts a stream's relay.
func (h *StreamHandler) Start(ctx context.Context, input *StartStreamInput) (*StatusOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	playlistID, err := parseOptionalID(input.Body.PlaylistID, "playlist_id")
	if err != nil {
		return nil, err
	}

	status, err := h.streamService.StartStream(ctx, id, service.StartOptions{
		Mode:           relay.PlaybackMode(input.Body.PlaybackMode),
		RepeatPlaylist: input.Body.RepeatPlaylist,
		PlaylistID:     playlistID,
	})
	if err != nil {
		return nil, apiError(err, "stream")
	}
	return &StatusOutput{Body: StatusFromRelay(status)}, nil
}

// StopStreamInput is the input for stopping a stream.
type StopStreamInput struct {
	ID string `path:"id" doc:"Stream ID (ULID)"`
}

// Stop stops a stream's relay.
func (h *StreamHandler) Stop(ctx context.Context, input *StopStreamInput) (*StatusOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	status, err := h.streamService.StopStream(ctx, id)
	if err != nil {
		return nil, apiError(err, "stream")
	}
	return &StatusOutput{Body: StatusFromRelay(status)}, nil
}

// LiveStreamInput is the input for the live status endpoint.
type LiveStreamInput struct {
	ID string `path:"id" doc:"Stream ID (ULID)"`
}

// LiveStreamOutput is the output for the live status endpoint.
type LiveStreamOutput struct {
	Body LiveStatusResponse
}

// Live returns the runtime status of an active stream.
func (h *StreamHandler) Live(ctx context.Context, input *LiveStreamInput) (*LiveStreamOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	live, err := h.streamService.LiveStatus(ctx, id)
	if err != nil {
		if errors.Is(err, relay.ErrStreamNotActive) {
			return nil, huma.Error404NotFound("stream is not active")
		}
		return nil, apiError(err, "stream")
	}
	return &LiveStreamOutput{Body: LiveStatusFromService(live)}, nil
}

// StreamSessionsInput is the input for session history.
type StreamSessionsInput struct {
	ID    string `path:"id" doc:"Stream ID (ULID)"`
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum sessions to return"`
}

// StreamSessionsOutput is the output for session history.
type StreamSessionsOutput struct {
	Body struct {
		Sessions []SessionResponse      `json:"sessions"`
		Summary  SessionSummaryResponse `json:"summary"`
	}
}

// Sessions returns a stream's session history.
func (h *StreamHandler) Sessions(ctx context.Context, input *StreamSessionsInput) (*StreamSessionsOutput, error) {
	id, err := parseID(input.ID, "stream")
	if err != nil {
		return nil, err
	}
	history, err := h.streamService.Sessions(ctx, id, input.Limit)
	if err != nil {
		return nil, apiError(err, "stream")
	}

	resp := &StreamSessionsOutput{}
	resp.Body.Sessions, resp.Body.Summary = SessionHistoryFromService(history)
	return resp, nil
}
