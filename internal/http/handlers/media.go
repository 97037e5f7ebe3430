package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/service"
)

// MediaHandler handles video and playlist API endpoints.
type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// Register registers the video and playlist routes with the API.
func (h *MediaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      http.MethodGet,
		Path:        "/api/v1/videos",
		Summary:     "List videos",
		Tags:        []string{"Media"},
	}, h.ListVideos)

	huma.Register(api, huma.Operation{
		OperationID: "listMediaFiles",
		Method:      http.MethodGet,
		Path:        "/api/v1/videos/files",
		Summary:     "List media files",
		Description: "Lists video files under <media_dir>/<owner_id> and whether each is registered",
		Tags:        []string{"Media"},
	}, h.ListFiles)

	huma.Register(api, huma.Operation{
		OperationID: "getStorageSummary",
		Method:      http.MethodGet,
		Path:        "/api/v1/videos/stats/storage",
		Summary:     "Get storage usage",
		Description: "Counts the owner's registered videos and totals their size",
		Tags:        []string{"Media"},
	}, h.GetStorageSummary)

	huma.Register(api, huma.Operation{
		OperationID:   "createVideo",
		Method:        http.MethodPost,
		Path:          "/api/v1/videos",
		Summary:       "Register video",
		Description:   "Registers a file already present under <media_dir>/<owner_id>",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateVideo)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteVideo",
		Method:        http.MethodDelete,
		Path:          "/api/v1/videos/{id}",
		Summary:       "Delete video",
		Description:   "Removes the video record and its playlist entries. The file is left on disk",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteVideo)

	huma.Register(api, huma.Operation{
		OperationID: "listPlaylists",
		Method:      http.MethodGet,
		Path:        "/api/v1/playlists",
		Summary:     "List playlists",
		Tags:        []string{"Media"},
	}, h.ListPlaylists)

	huma.Register(api, huma.Operation{
		OperationID:   "createPlaylist",
		Method:        http.MethodPost,
		Path:          "/api/v1/playlists",
		Summary:       "Create playlist",
		Description:   "Creates a playlist from the owner's videos in the given order",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusCreated,
	}, h.CreatePlaylist)

	huma.Register(api, huma.Operation{
		OperationID: "getPlaylist",
		Method:      http.MethodGet,
		Path:        "/api/v1/playlists/{id}",
		Summary:     "Get playlist",
		Tags:        []string{"Media"},
	}, h.GetPlaylist)

	huma.Register(api, huma.Operation{
		OperationID:   "deletePlaylist",
		Method:        http.MethodDelete,
		Path:          "/api/v1/playlists/{id}",
		Summary:       "Delete playlist",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeletePlaylist)

	huma.Register(api, huma.Operation{
		OperationID: "addPlaylistVideo",
		Method:      http.MethodPost,
		Path:        "/api/v1/playlists/{id}/videos",
		Summary:     "Add video to playlist",
		Description: "Appends a video to the end of the playlist. A video already in the playlist is left where it is",
		Tags:        []string{"Media"},
	}, h.AddPlaylistVideo)

	huma.Register(api, huma.Operation{
		OperationID:   "removePlaylistVideo",
		Method:        http.MethodDelete,
		Path:          "/api/v1/playlists/{id}/videos/{video_id}",
		Summary:       "Remove video from playlist",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusNoContent,
	}, h.RemovePlaylistVideo)
}

// ListVideosInput is the input for listing videos.
type ListVideosInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// ListVideosOutput is the output for listing videos.
type ListVideosOutput struct {
	Body struct {
		Videos []VideoResponse `json:"videos"`
	}
}

// ListVideos returns an owner's videos.
func (h *MediaHandler) ListVideos(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	videos, err := h.mediaService.ListVideos(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "videos")
	}

	resp := &ListVideosOutput{}
	resp.Body.Videos = make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		resp.Body.Videos = append(resp.Body.Videos, VideoFromModel(v))
	}
	return resp, nil
}

// ListFilesInput is the input for listing media files.
type ListFilesInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// MediaFileResponse describes a file in the owner's media directory.
type MediaFileResponse struct {
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Registered bool      `json:"registered"`
}

// ListFilesOutput is the output for listing media files.
type ListFilesOutput struct {
	Body struct {
		Files []MediaFileResponse `json:"files"`
	}
}

// ListFiles returns the video files on disk for an owner.
func (h *MediaHandler) ListFiles(ctx context.Context, input *ListFilesInput) (*ListFilesOutput, error) {
	files, err := h.mediaService.ListFiles(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "media files")
	}

	resp := &ListFilesOutput{}
	resp.Body.Files = make([]MediaFileResponse, 0, len(files))
	for _, f := range files {
		resp.Body.Files = append(resp.Body.Files, MediaFileResponse{
			Filename:   f.Name,
			SizeBytes:  f.Size,
			ModifiedAt: f.ModTime.UTC(),
			Registered: f.Registered,
		})
	}
	return resp, nil
}

// CreateVideoInput is the input for registering a video.
type CreateVideoInput struct {
	Body struct {
		OwnerID         string  `json:"owner_id" minLength:"1" maxLength:"64"`
		Title           string  `json:"title" minLength:"1" maxLength:"255"`
		Filename        string  `json:"filename" minLength:"1" maxLength:"1024" doc:"Path relative to the owner's media directory"`
		DurationSeconds float64 `json:"duration_seconds,omitempty" minimum:"0"`
	}
}

// VideoOutput is the output for single-video operations.
type VideoOutput struct {
	Body VideoResponse
}

// CreateVideo registers a video.
func (h *MediaHandler) CreateVideo(ctx context.Context, input *CreateVideoInput) (*VideoOutput, error) {
	video := &models.Video{
		OwnerID:         input.Body.OwnerID,
		Title:           input.Body.Title,
		Filename:        input.Body.Filename,
		DurationSeconds: input.Body.DurationSeconds,
	}
	if err := h.mediaService.CreateVideo(ctx, video); err != nil {
		return nil, apiError(err, "video")
	}
	return &VideoOutput{Body: VideoFromModel(video)}, nil
}

// DeleteVideoInput is the input for deleting a video.
type DeleteVideoInput struct {
	ID string `path:"id" doc:"Video ID (ULID)"`
}

// DeleteVideo deletes a video.
func (h *MediaHandler) DeleteVideo(ctx context.Context, input *DeleteVideoInput) (*DeleteOutput, error) {
	id, err := parseID(input.ID, "video")
	if err != nil {
		return nil, err
	}
	if err := h.mediaService.DeleteVideo(ctx, id); err != nil {
		return nil, apiError(err, "video")
	}
	return &DeleteOutput{}, nil
}

// ListPlaylistsInput is the input for listing playlists.
type ListPlaylistsInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// ListPlaylistsOutput is the output for listing playlists.
type ListPlaylistsOutput struct {
	Body struct {
		Playlists []PlaylistResponse `json:"playlists"`
	}
}

// ListPlaylists returns an owner's playlists.
func (h *MediaHandler) ListPlaylists(ctx context.Context, input *ListPlaylistsInput) (*ListPlaylistsOutput, error) {
	playlists, err := h.mediaService.ListPlaylists(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "playlists")
	}

	resp := &ListPlaylistsOutput{}
	resp.Body.Playlists = make([]PlaylistResponse, 0, len(playlists))
	for _, p := range playlists {
		resp.Body.Playlists = append(resp.Body.Playlists, PlaylistFromModel(p))
	}
	return resp, nil
}

// CreatePlaylistInput is the input for creating a playlist.
type CreatePlaylistInput struct {
	Body struct {
		OwnerID     string   `json:"owner_id" minLength:"1" maxLength:"64"`
		Name        string   `json:"name" minLength:"1" maxLength:"255"`
		Description string   `json:"description,omitempty" maxLength:"4096"`
		VideoIDs    []string `json:"video_ids" minItems:"1" maxItems:"500" doc:"Videos in play order; repeats are allowed"`
	}
}

// PlaylistOutput is the output for single-playlist operations.
type PlaylistOutput struct {
	Body PlaylistResponse
}

// CreatePlaylist creates a playlist.
func (h *MediaHandler) CreatePlaylist(ctx context.Context, input *CreatePlaylistInput) (*PlaylistOutput, error) {
	ids := make([]models.ULID, 0, len(input.Body.VideoIDs))
	for _, raw := range input.Body.VideoIDs {
		id, err := parseOptionalID(raw, "video_ids")
		if err != nil {
			return nil, err
		}
		if id != nil {
			ids = append(ids, *id)
		}
	}

	playlist := &models.Playlist{
		OwnerID:     input.Body.OwnerID,
		Name:        input.Body.Name,
		Description: input.Body.Description,
	}
	if err := h.mediaService.CreatePlaylist(ctx, playlist, ids); err != nil {
		return nil, apiError(err, "playlist")
	}

	created, err := h.mediaService.GetPlaylist(ctx, playlist.ID)
	if err != nil {
		return nil, apiError(err, "playlist")
	}
	return &PlaylistOutput{Body: PlaylistFromModel(created)}, nil
}

// GetPlaylistInput is the input for getting a playlist.
type GetPlaylistInput struct {
	ID string `path:"id" doc:"Playlist ID (ULID)"`
}

// GetPlaylist returns a playlist with its items in order.
func (h *MediaHandler) GetPlaylist(ctx context.Context, input *GetPlaylistInput) (*PlaylistOutput, error) {
	id, err := parseID(input.ID, "playlist")
	if err != nil {
		return nil, err
	}
	playlist, err := h.mediaService.GetPlaylist(ctx, id)
	if err != nil {
		return nil, apiError(err, "playlist")
	}
	return &PlaylistOutput{Body: PlaylistFromModel(playlist)}, nil
}

// DeletePlaylistInput is the input for deleting a playlist.
type DeletePlaylistInput struct {
	ID string `path:"id" doc:"Playlist ID (ULID)"`
}

// DeletePlaylist deletes a playlist.
func (h *MediaHandler) DeletePlaylist(ctx context.Context, input *DeletePlaylistInput) (*DeleteOutput, error) {
	id, err := parseID(input.ID, "playlist")
	if err != nil {
		return nil, err
	}
	if err := h.mediaService.DeletePlaylist(ctx, id); err != nil {
		return nil, apiError(err, "playlist")
	}
	return &DeleteOutput{}, nil
}

// StorageSummaryInput is the input for the storage summary.
type StorageSummaryInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// StorageSummaryOutput is the output for the storage summary.
type StorageSummaryOutput struct {
	Body models.StorageSummary
}

// GetStorageSummary returns the number and total size of an owner's videos.
func (h *MediaHandler) GetStorageSummary(ctx context.Context, input *StorageSummaryInput) (*StorageSummaryOutput, error) {
	summary, err := h.mediaService.StorageSummary(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "storage summary")
	}
	return &StorageSummaryOutput{Body: summary}, nil
}

// AddPlaylistVideoInput is the input for adding a video to a playlist.
type AddPlaylistVideoInput struct {
	ID   string `path:"id" doc:"Playlist ID (ULID)"`
	Body struct {
		VideoID string `json:"video_id" minLength:"1" doc:"Video ID (ULID)"`
	}
}

// AddPlaylistVideo appends a video to a playlist and returns the playlist.
func (h *MediaHandler) AddPlaylistVideo(ctx context.Context, input *AddPlaylistVideoInput) (*PlaylistOutput, error) {
	id, err := parseID(input.ID, "playlist")
	if err != nil {
		return nil, err
	}
	videoID, err := parseOptionalID(input.Body.VideoID, "video_id")
	if err != nil {
		return nil, err
	}
	if videoID == nil {
		return nil, huma.Error422UnprocessableEntity("video_id is required")
	}
	playlist, err := h.mediaService.AddPlaylistVideo(ctx, id, *videoID)
	if err != nil {
		return nil, apiError(err, "playlist")
	}
	return &PlaylistOutput{Body: PlaylistFromModel(playlist)}, nil
}

// RemovePlaylistVideoInput is the input for removing a video from a playlist.
type RemovePlaylistVideoInput struct {
	ID      string `path:"id" doc:"Playlist ID (ULID)"`
	VideoID string `path:"video_id" doc:"Video ID (ULID)"`
}

// RemovePlaylistVideo removes a video from a playlist.
func (h *MediaHandler) RemovePlaylistVideo(ctx context.Context, input *RemovePlaylistVideoInput) (*DeleteOutput, error) {
	id, err := parseID(input.ID, "playlist")
	if err != nil {
		return nil, err
	}
	videoID, err := parseID(input.VideoID, "video")
	if err != nil {
		return nil, err
	}
	if err := h.mediaService.RemovePlaylistVideo(ctx, id, videoID); err != nil {
		return nil, apiError(err, "playlist item")
	}
	return &DeleteOutput{}, nil
}
