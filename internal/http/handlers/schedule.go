package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/service"
	"github.com/jmylchreest/restreamer/pkg/format"
)

// ScheduleHandler handles schedule API endpoints.
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

// Register registers the schedule routes with the API.
func (h *ScheduleHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSchedules",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules",
		Summary:     "List schedules",
		Description: "Returns an owner's schedules",
		Tags:        []string{"Schedules"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createSchedule",
		Method:        http.MethodPost,
		Path:          "/api/v1/schedules",
		Summary:       "Create schedule",
		Description:   "Creates an active schedule and computes its first run",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "previewScheduleRuns",
		Method:      http.MethodPost,
		Path:        "/api/v1/schedules/next-run",
		Summary:     "Preview next runs",
		Description: "Computes the next runs of a recurrence without storing it",
		Tags:        []string{"Schedules"},
	}, h.NextRuns)

	huma.Register(api, huma.Operation{
		OperationID: "getSchedule",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Get schedule",
		Tags:        []string{"Schedules"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "updateSchedule",
		Method:      http.MethodPut,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Update schedule",
		Description: "Replaces a schedule's definition and recomputes its next run",
		Tags:        []string{"Schedules"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteSchedule",
		Method:        http.MethodDelete,
		Path:          "/api/v1/schedules/{id}",
		Summary:       "Delete schedule",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "toggleSchedule",
		Method:      http.MethodPost,
		Path:        "/api/v1/schedules/{id}/toggle",
		Summary:     "Toggle schedule",
		Description: "Activates or deactivates a schedule. Reactivation recomputes the next run",
		Tags:        []string{"Schedules"},
	}, h.Toggle)
}

// ListSchedulesInput is the input for listing schedules.
type ListSchedulesInput struct {
	OwnerID string `query:"owner_id" required:"true" minLength:"1" maxLength:"64" doc:"Owner identifier"`
}

// ListSchedulesOutput is the output for listing schedules.
type ListSchedulesOutput struct {
	Body struct {
		Schedules []ScheduleResponse `json:"schedules"`
	}
}

// List returns an owner's schedules.
func (h *ScheduleHandler) List(ctx context.Context, input *ListSchedulesInput) (*ListSchedulesOutput, error) {
	schedules, err := h.scheduleService.List(ctx, input.OwnerID)
	if err != nil {
		return nil, apiError(err, "schedules")
	}

	resp := &ListSchedulesOutput{}
	resp.Body.Schedules = make([]ScheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp.Body.Schedules = append(resp.Body.Schedules, ScheduleFromModel(s))
	}
	return resp, nil
}

// CreateScheduleInput is the input for creating a schedule.
type CreateScheduleInput struct {
	Body ScheduleRequest
}

// ScheduleOutput is the output for single-schedule operations.
type ScheduleOutput struct {
	Body ScheduleResponse
}

// Create creates a schedule.
func (h *ScheduleHandler) Create(ctx context.Context, input *CreateScheduleInput) (*ScheduleOutput, error) {
	schedule, err := input.Body.toModel()
	if err != nil {
		return nil, err
	}
	if err := h.scheduleService.Create(ctx, schedule); err != nil {
		return nil, apiError(err, "schedule")
	}
	return &ScheduleOutput{Body: ScheduleFromModel(schedule)}, nil
}

// GetScheduleInput is the input for getting a schedule.
type GetScheduleInput struct {
	ID string `path:"id" doc:"Schedule ID (ULID)"`
}

// GetByID returns a schedule by ID.
func (h *ScheduleHandler) GetByID(ctx context.Context, input *GetScheduleInput) (*ScheduleOutput, error) {
	id, err := parseID(input.ID, "schedule")
	if err != nil {
		return nil, err
	}
	schedule, err := h.scheduleService.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err, "schedule")
	}
	return &ScheduleOutput{Body: ScheduleFromModel(schedule)}, nil
}

// UpdateScheduleInput is the input for updating a schedule.
type UpdateScheduleInput struct {
	ID   string `path:"id" doc:"Schedule ID (ULID)"`
	Body ScheduleRequest
}

// Update updates a schedule.
func (h *ScheduleHandler) Update(ctx context.Context, input *UpdateScheduleInput) (*ScheduleOutput, error) {
	id, err := parseID(input.ID, "schedule")
	if err != nil {
		return nil, err
	}
	schedule, err := input.Body.toModel()
	if err != nil {
		return nil, err
	}
	schedule.ID = id
	if err := h.scheduleService.Update(ctx, schedule); err != nil {
		return nil, apiError(err, "schedule")
	}

	updated, err := h.scheduleService.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err, "schedule")
	}
	return &ScheduleOutput{Body: ScheduleFromModel(updated)}, nil
}

// DeleteScheduleInput is the input for deleting a schedule.
type DeleteScheduleInput struct {
	ID string `path:"id" doc:"Schedule ID (ULID)"`
}

// Delete deletes a schedule.
func (h *ScheduleHandler) Delete(ctx context.Context, input *DeleteScheduleInput) (*DeleteOutput, error) {
	id, err := parseID(input.ID, "schedule")
	if err != nil {
		return nil, err
	}
	if err := h.scheduleService.Delete(ctx, id); err != nil {
		return nil, apiError(err, "schedule")
	}
	return &DeleteOutput{}, nil
}

// ToggleScheduleInput is the input for toggling a schedule.
type ToggleScheduleInput struct {
	ID string `path:"id" doc:"Schedule ID (ULID)"`
}

// Toggle flips a schedule's active flag.
func (h *ScheduleHandler) Toggle(ctx context.Context, input *ToggleScheduleInput) (*ScheduleOutput, error) {
	id, err := parseID(input.ID, "schedule")
	if err != nil {
		return nil, err
	}
	schedule, err := h.scheduleService.Toggle(ctx, id)
	if err != nil {
		return nil, apiError(err, "schedule")
	}
	return &ScheduleOutput{Body: ScheduleFromModel(schedule)}, nil
}

// NextRunsInput is the input for previewing runs.
type NextRunsInput struct {
	Body struct {
		RecurrenceRequest
		Count int `json:"count,omitempty" minimum:"0" maximum:"50" doc:"Number of runs to compute (default 5)"`
	}
}

// NextRunsOutput is the output for previewing runs.
type NextRunsOutput struct {
	Body struct {
		Summary  string      `json:"summary"`
		NextRuns []time.Time `json:"next_runs"`
	}
}

// NextRuns previews upcoming runs of a recurrence.
func (h *ScheduleHandler) NextRuns(_ context.Context, input *NextRunsInput) (*NextRunsOutput, error) {
	def := &models.StreamSchedule{}
	input.Body.apply(def)

	runs, err := h.scheduleService.PreviewRuns(def, input.Body.Count)
	if err != nil {
		return nil, apiError(err, "recurrence")
	}

	resp := &NextRunsOutput{}
	resp.Body.Summary = format.Schedule(string(def.Kind), def.TimeOfDay, def.Days, def.CronExpr, def.ScheduledAt, def.Timezone)
	resp.Body.NextRuns = make([]time.Time, 0, len(runs))
	resp.Body.NextRuns = append(resp.Body.NextRuns, runs...)
	return resp, nil
}
