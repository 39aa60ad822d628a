package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unikmhz/npui-sub001/pkg/access"
	"github.com/unikmhz/npui-sub001/pkg/database"
	"github.com/unikmhz/npui-sub001/pkg/logger"
)

// SyncController starts sync runs and reports their state
type SyncController interface {
	Trigger(ctx context.Context) (string, error)
	Status() (current, last *access.RunStatus)
}

// RunHistory lists finished sync runs
type RunHistory interface {
	GetRecent(limit int) ([]database.SyncRun, error)
	GetRecentPaginated(page, perPage int) ([]database.SyncRun, int64, error)
	GetByResult(result string, limit int) ([]database.SyncRun, error)
	GetByRunID(runID string) (*database.SyncRun, error)
}

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// API handles REST API endpoints
type API struct {
	logger  *logger.Logger
	syncer  SyncController
	runs    RunHistory
	clients func() int
	// base outlives the request that triggers a run
	base context.Context
}

// NewAPI creates a new API instance. syncer and runs may be nil.
func NewAPI(log *logger.Logger, syncer SyncController, runs RunHistory) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		logger:  log.WithComponent("web.api"),
		syncer:  syncer,
		runs:    runs,
		clients: func() int { return 0 },
		base:    context.Background(),
	}
}

type syncState struct {
	Running bool              `json:"running"`
	Current *access.RunStatus `json:"current,omitempty"`
	Last    *access.RunStatus `json:"last,omitempty"`
}

type statusResponse struct {
	Service   string      `json:"service"`
	Build     VersionInfo `json:"build"`
	Sync      *syncState  `json:"sync,omitempty"`
	WSClients int         `json:"ws_clients"`
}

// HandleStatus handles GET /api/status
func (a *API) HandleStatus(c *gin.Context) {
	resp := statusResponse{
		Service:   "ca-sync",
		Build:     GetVersionInfo(),
		WSClients: a.clients(),
	}
	if a.syncer != nil {
		current, last := a.syncer.Status()
		resp.Sync = &syncState{Running: current != nil, Current: current, Last: last}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSync handles POST /api/sync
func (a *API) HandleSync(c *gin.Context) {
	if a.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync is disabled"})
		return
	}
	runID, err := a.syncer.Trigger(a.base)
	switch {
	case errors.Is(err, access.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		a.logger.Error("Failed to trigger sync", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		a.logger.Info("Sync triggered over HTTP",
			logger.String("run_id", runID),
			logger.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
	}
}

type runsResponse struct {
	Runs    []database.SyncRun `json:"runs"`
	Total   *int64             `json:"total,omitempty"`
	Page    int                `json:"page,omitempty"`
	PerPage int                `json:"per_page,omitempty"`
}

// HandleRuns handles GET /api/runs. It accepts either limit, result with
// limit, or page with per_page.
func (a *API) HandleRuns(c *gin.Context) {
	if a.runs == nil {
		c.JSON(http.StatusOK, runsResponse{Runs: []database.SyncRun{}})
		return
	}

	var (
		resp runsResponse
		err  error
	)
	switch {
	case c.Query("page") != "" || c.Query("per_page") != "":
		page, perr := positiveQuery(c, "page", 1)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		perPage, perr := positiveQuery(c, "per_page", defaultRunsLimit)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		perPage = min(perPage, maxRunsLimit)
		var total int64
		resp.Runs, total, err = a.runs.GetRecentPaginated(page, perPage)
		resp.Total, resp.Page, resp.PerPage = &total, page, perPage
	default:
		limit, perr := positiveQuery(c, "limit", defaultRunsLimit)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		limit = min(limit, maxRunsLimit)
		if result := c.Query("result"); result != "" {
			resp.Runs, err = a.runs.GetByResult(result, limit)
		} else {
			resp.Runs, err = a.runs.GetRecent(limit)
		}
	}
	if err != nil {
		a.logger.Error("Failed to load sync runs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync runs"})
		return
	}
	if resp.Runs == nil {
		resp.Runs = []database.SyncRun{}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRun handles GET /api/runs/:id
func (a *API) HandleRun(c *gin.Context) {
	if a.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}
	run, err := a.runs.GetByRunID(c.Param("id"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case err != nil:
		a.logger.Error("Failed to load sync run", logger.String("run_id", c.Param("id")), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync run"})
	default:
		c.JSON(http.StatusOK, run)
	}
}

func positiveQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
