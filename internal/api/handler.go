package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"opsflow/internal/automation"
	"opsflow/internal/broker"
	"opsflow/internal/constants"
	"opsflow/internal/logger"
	"opsflow/pkg/errors"
	"opsflow/pkg/logging"
	"opsflow/pkg/models"
)

type dryRunner interface {
	DryRun(ctx context.Context, req automation.DryRunRequest) ([]automation.DryRunResult, error)
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// Handler serves the operator endpoints: dry runs, run audit queries and
// event replay. Producer may be nil, in which case replay is unavailable.
type Handler struct {
	BaseHandler
	engine     dryRunner
	repo       automation.Repository
	producer   broker.Producer
	eventTopic string
}

func NewHandler(engine dryRunner, repo automation.Repository, producer broker.Producer, eventTopic string, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		engine:      engine,
		repo:        repo,
		producer:    producer,
		eventTopic:  eventTopic,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, extra ...gin.HandlerFunc) {
	v1 := router.Group("/api/v1")
	{
		automations := v1.Group("/orgs/:orgId/automations", append([]gin.HandlerFunc{orgContext()}, extra...)...)
		{
			automations.POST("/test", h.TestRules)
			automations.POST("/events/replay", h.ReplayEvent)
			automations.GET("/runs", h.ListRuns)
			automations.GET("/runs/:runId", h.GetRun)
			automations.GET("/runs/:runId/outbox", h.ListRunOutbox)
		}
	}
}

// orgContext puts the path org id on the request context for ctx-aware logging.
func orgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logging.WithOrgID(c.Request.Context(), c.Param("orgId"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type TestRulesRequest struct {
	EventType string                 `json:"eventType" binding:"required"`
	EventID   string                 `json:"eventId,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	RuleID    string                 `json:"ruleId,omitempty"`
	Rule      *automation.RuleRecord `json:"rule,omitempty"`
}

type TestRulesResponse struct {
	Results []automation.DryRunResult `json:"results"`
}

// TestRules godoc
// @Summary      Dry-run automation rules
// @Description  Evaluate stored rules, one stored rule, or an unsaved rule against a synthetic event. Nothing is written.
// @Tags         automations
// @Accept       json
// @Produce      json
// @Param        orgId    path      string            true  "Organization ID"
// @Param        request  body      TestRulesRequest  true  "Synthetic event"
// @Success      200      {object}  TestRulesResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      404      {object}  map[string]interface{}
// @Failure      500      {object}  map[string]interface{}
// @Router       /orgs/{orgId}/automations/test [post]
func (h *Handler) TestRules(c *gin.Context) {
	var req TestRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	results, err := h.engine.DryRun(c.Request.Context(), automation.DryRunRequest{
		OrgID:     c.Param("orgId"),
		EventType: req.EventType,
		EventID:   req.EventID,
		Payload:   req.Payload,
		RuleID:    req.RuleID,
		Rule:      req.Rule,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, TestRulesResponse{Results: results})
}

// ListRuns godoc
// @Summary      List automation runs
// @Description  Runs for an org, newest first, optionally narrowed to an entity or a rule
// @Tags         automations
// @Produce      json
// @Param        orgId       path      string  true   "Organization ID"
// @Param        entityType  query     string  false  "Entity type"
// @Param        entityId    query     string  false  "Entity ID"
// @Param        ruleId      query     string  false  "Rule ID"
// @Param        limit       query     int     false  "Page size"
// @Param        offset      query     int     false  "Offset"
// @Success      200         {array}   automation.Run
// @Failure      500         {object}  map[string]interface{}
// @Router       /orgs/{orgId}/automations/runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.repo.ListRuns(c.Request.Context(), automation.RunQuery{
		OrgID:      c.Param("orgId"),
		RuleID:     c.Query("ruleId"),
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Limit:      parseLimit(c.Query("limit")),
		Offset:     parseOffset(c.Query("offset")),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if runs == nil {
		runs = []automation.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun godoc
// @Summary      Get an automation run
// @Tags         automations
// @Produce      json
// @Param        orgId  path      string  true  "Organization ID"
// @Param        runId  path      string  true  "Run ID"
// @Success      200    {object}  automation.Run
// @Failure      404    {object}  map[string]interface{}
// @Failure      500    {object}  map[string]interface{}
// @Router       /orgs/{orgId}/automations/runs/{runId} [get]
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.repo.GetRun(c.Request.Context(), c.Param("orgId"), c.Param("runId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRunOutbox godoc
// @Summary      List the outbox entries of a run
// @Tags         automations
// @Produce      json
// @Param        orgId  path      string  true  "Organization ID"
// @Param        runId  path      string  true  "Run ID"
// @Success      200    {array}   automation.OutboxEntry
// @Failure      404    {object}  map[string]interface{}
// @Failure      500    {object}  map[string]interface{}
// @Router       /orgs/{orgId}/automations/runs/{runId}/outbox [get]
func (h *Handler) ListRunOutbox(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, runID := c.Param("orgId"), c.Param("runId")

	if _, err := h.repo.GetRun(ctx, orgID, runID); err != nil {
		h.HandleError(c, err)
		return
	}

	entries, err := h.repo.ListOutboxByRun(ctx, orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if entries == nil {
		entries = []automation.OutboxEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

type ReplayEventRequest struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"eventType" binding:"required"`
	Payload   map[string]interface{} `json:"payload" binding:"required"`
	CreatedAt *time.Time             `json:"createdAt,omitempty"`
}

type ReplayEventResponse struct {
	EventID string `json:"eventId"`
	Topic   string `json:"topic"`
}

// ReplayEvent godoc
// @Summary      Replay an event through the worker
// @Description  Publishes the event to the ingestion topic. Reusing an event id is safe: runs are idempotent per rule and event.
// @Tags         automations
// @Accept       json
// @Produce      json
// @Param        orgId    path      string              true  "Organization ID"
// @Param        request  body      ReplayEventRequest  true  "Event to replay"
// @Success      202      {object}  ReplayEventResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      503      {object}  map[string]interface{}
// @Router       /orgs/{orgId}/automations/events/replay [post]
func (h *Handler) ReplayEvent(c *gin.Context) {
	if h.producer == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithDetail("message", "event replay is not configured"))
		return
	}

	var req ReplayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	builder := models.NewAppEventBuilder(c.Param("orgId"), req.EventType).
		WithID(req.ID).
		WithPayload(req.Payload)
	if req.CreatedAt != nil {
		builder.WithCreatedAt(*req.CreatedAt)
	}
	event := builder.Build()

	if err := models.ValidateAppEvent(&event); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", err.Error()))
		return
	}

	ctx := logging.WithEventID(c.Request.Context(), event.ID)
	env := models.EventEnvelope{
		Event:    event,
		Metadata: models.Metadata{Source: "replay"},
	}
	if err := h.producer.Publish(ctx, h.eventTopic, env); err != nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithCause(err))
		return
	}

	h.Logger.InfowCtx(ctx, "Event replayed", "event_type", event.EventType, "topic", h.eventTopic)
	c.JSON(http.StatusAccepted, ReplayEventResponse{EventID: event.ID, Topic: h.eventTopic})
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 {
		return constants.DefaultLimit
	}
	if parsed > constants.MaxLimit {
		return constants.MaxLimit
	}
	return parsed
}

func parseOffset(offsetStr string) int {
	parsed, err := strconv.Atoi(offsetStr)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
