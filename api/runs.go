package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/taskflow/dag"
	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/layout"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/server"
	"github.com/kbukum/taskflow/validation"
)

// RunAccepted is returned when a run or replay starts.
type RunAccepted struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id,omitempty"`
	Stage    dag.Stage `json:"stage"`
	Events   string    `json:"events"`
}

// ReplayRequest is the body of a replay.
type ReplayRequest struct {
	Overrides dag.OverrideMap `json:"overrides" validate:"required,min=1"`
	// DryRun reports the nodes that would re-execute without running.
	DryRun bool `json:"dry_run"`
}

// ReplayPlan is the dry-run answer.
type ReplayPlan struct {
	PriorID  string   `json:"prior_id"`
	Affected []string `json:"affected"`
}

func accepted(run *dag.Run) RunAccepted {
	return RunAccepted{
		ID:       run.ID(),
		ParentID: run.Snapshot().ParentRunID,
		Stage:    run.Stage(),
		Events:   "/api/v1/runs/" + run.ID() + "/events",
	}
}

func (h *Handler) createRun(c *gin.Context) {
	doc, err := readDocument(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	g, err := doc.Graph()
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	handle, err := h.runs.Start(g, c.Query("run_id"))
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	h.log.WithContext(c.Request.Context()).Info("run submitted", map[string]interface{}{
		logger.FieldRunID: handle.Run.ID(),
		"nodes":           g.Len(),
	})
	server.RespondAccepted(c, accepted(handle.Run))
}

func (h *Handler) listRuns(c *gin.Context) {
	infos, err := h.runs.List(c.Request.Context())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOKWithMeta(c, infos, &server.Meta{Total: len(infos)})
}

func (h *Handler) getRun(c *gin.Context) {
	view, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, view)
}

func (h *Handler) cancelRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.runs.Cancel(c.Request.Context(), id); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, gin.H{"id": id, "cancel": "requested"})
}

func (h *Handler) replayRun(c *gin.Context) {
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, taskerrors.InvalidInput("body", err.Error()).WithCause(err))
		return
	}
	if err := validation.Validate(req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	ctx := c.Request.Context()
	priorID := c.Param("id")

	if req.DryRun {
		g, err := h.runs.Graph(ctx, priorID)
		if err != nil {
			server.RespondWithError(c, err)
			return
		}
		if err := dag.CheckOverrides(g, req.Overrides); err != nil {
			server.RespondWithError(c, dag.ToAppError(err))
			return
		}
		server.RespondOK(c, ReplayPlan{PriorID: priorID, Affected: dag.AffectedSet(g, req.Overrides)})
		return
	}

	handle, err := h.runs.Replay(ctx, priorID, req.Overrides)
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	h.log.WithContext(ctx).Info("replay submitted", map[string]interface{}{
		logger.FieldRunID: handle.Run.ID(),
		"parent_run_id":   priorID,
		"overrides":       len(req.Overrides),
	})
	server.RespondAccepted(c, accepted(handle.Run))
}

func (h *Handler) runLayout(c *gin.Context) {
	g, err := h.runs.Graph(c.Request.Context(), c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	h.respondLayout(c, g)
}

func (h *Handler) graphLayout(c *gin.Context) {
	doc, err := readDocument(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	g, err := doc.Graph()
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	h.respondLayout(c, g)
}

func (h *Handler) respondLayout(c *gin.Context, g *dag.Graph) {
	l, err := layout.Layered(g, h.layout...)
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	server.RespondOK(c, l)
}

// GraphReport describes a valid graph.
type GraphReport struct {
	Valid   bool     `json:"valid"`
	Nodes   int      `json:"nodes"`
	Edges   int      `json:"edges"`
	Entries []string `json:"entries"`
	Exits   []string `json:"exits"`
}

func (h *Handler) validateGraph(c *gin.Context) {
	doc, err := readDocument(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	g, err := doc.Graph()
	if err != nil {
		server.RespondWithError(c, dag.ToAppError(err))
		return
	}
	server.RespondOK(c, GraphReport{
		Valid:   true,
		Nodes:   g.Len(),
		Edges:   len(g.Edges()),
		Entries: g.Entries(),
		Exits:   g.Exits(),
	})
}
