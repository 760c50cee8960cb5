package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/catalogsync/internal/scheduler"
)

// TaskHandler exposes scheduled tasks, such as the catalog sweep, over HTTP.
type TaskHandler struct {
	scheduler *scheduler.Scheduler
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(sched *scheduler.Scheduler) *TaskHandler {
	return &TaskHandler{scheduler: sched}
}

// RegisterRoutes registers task routes on the given group.
func (h *TaskHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/tasks", h.List)
	g.GET("/tasks/:id", h.Get)
	g.POST("/tasks/:id/run", h.Run)
}

// List returns registered tasks sorted by id.
// GET /api/v1/scheduler/tasks?running=true
func (h *TaskHandler) List(c echo.Context) error {
	onlyRunning := c.QueryParam("running") == "true"

	tasks := []scheduler.TaskInfo{}
	for _, task := range h.scheduler.ListTasks() {
		if onlyRunning && !task.Running {
			continue
		}
		tasks = append(tasks, task)
	}
	return c.JSON(http.StatusOK, tasks)
}

// Get returns a single task.
// GET /api/v1/scheduler/tasks/:id
func (h *TaskHandler) Get(c echo.Context) error {
	task, err := h.scheduler.GetTask(c.Param("id"))
	if err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// Run triggers a task outside its schedule and returns its state.
// POST /api/v1/scheduler/tasks/:id/run
func (h *TaskHandler) Run(c echo.Context) error {
	taskID := c.Param("id")
	if err := h.scheduler.RunNow(taskID); err != nil {
		return taskError(err)
	}
	task, err := h.scheduler.GetTask(taskID)
	if err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusAccepted, task)
}

func taskError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
