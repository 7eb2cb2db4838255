// Package web provides the HTTP surface for flow management, automation
// rules, event ingestion and the execution log.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/leadrun/leadrun/pkg/eventbus"
	"github.com/leadrun/leadrun/pkg/events"
	"github.com/leadrun/leadrun/pkg/flow"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

// APIHandlers serves the REST endpoints. Event ingestion only publishes to
// the bus; the worker picks events up from there, so a slow automation never
// blocks the ingesting client.
type APIHandlers struct {
	store     persistence.Persistence
	eventBus  eventbus.EventBus
	validator *validator.Validate
}

// NewAPIHandlers creates the API handler set.
func NewAPIHandlers(store persistence.Persistence, eventBus eventbus.EventBus, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:     store,
		eventBus:  eventBus,
		validator: validate,
	}
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.store.Flows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows, "total_count": len(flows)})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	found, err := h.store.FlowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.ID == "" {
		req.ID = "flow-" + uuid.New().String()
	}

	created := &models.Flow{
		ID:       req.ID,
		Name:     req.Name,
		Trigger:  req.Trigger,
		Nodes:    req.Nodes,
		Edges:    req.Edges,
		IsActive: req.IsActive,
	}

	if created.Nodes == nil {
		created.Nodes = []*models.Node{}
	}

	if created.Edges == nil {
		created.Edges = []*models.Edge{}
	}

	if err := h.store.SaveFlow(c.Context(), created); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ValidateFlow returns the structural lint report for a stored flow. Issues
// are advisory; a flow with warnings still runs.
func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	found, err := h.store.FlowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	report, err := flow.Validate(found)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetFlowLog(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	entries, err := h.store.EntriesByFlow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries, "total_count": len(entries)})
}

func (h *APIHandlers) GetLeadLog(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Lead ID is required")
	}

	entries, err := h.store.EntriesByLead(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries, "total_count": len(entries)})
}

func (h *APIHandlers) GetStageRules(c fiber.Ctx) error {
	stageID := c.Params("id")
	if stageID == "" {
		return badRequest(c, "Stage ID is required")
	}

	trigger := models.RuleTrigger(c.Query("trigger", string(models.RuleTriggerOnEnter)))

	rules, err := h.store.RulesByStage(c.Context(), stageID, trigger)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"rules": rules, "total_count": len(rules)})
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.ID == "" {
		req.ID = "rule-" + uuid.New().String()
	}

	created := &models.AutomationRule{
		ID:                req.ID,
		StageID:           req.StageID,
		Trigger:           req.Trigger,
		TriggerDelayHours: req.TriggerDelayHours,
		ActionType:        req.ActionType,
		ActionConfig:      req.ActionConfig,
		Conditions:        req.Conditions,
		IsActive:          req.IsActive,
		Position:          req.Position,
	}

	if err := h.store.SaveRule(c.Context(), created); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// StageEntered ingests a stage transition observed by the CRM.
func (h *APIHandlers) StageEntered(c fiber.Ctx) error {
	var req StageEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.LeadStageEntered{
		BaseEvent:       events.NewBaseEvent(events.LeadStageEnteredEvent, req.LeadID),
		StageID:         req.StageID,
		PreviousStageID: req.PreviousStageID,
	}

	if err := h.eventBus.Publish(c.Context(), req.LeadID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

// StageExited ingests the counterpart transition for the stage a lead left.
func (h *APIHandlers) StageExited(c fiber.Ctx) error {
	var req StageEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.LeadStageExited{
		BaseEvent: events.NewBaseEvent(events.LeadStageExitedEvent, req.LeadID),
		StageID:   req.StageID,
	}

	if err := h.eventBus.Publish(c.Context(), req.LeadID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

// MessageReceived ingests an inbound message event for a lead.
func (h *APIHandlers) MessageReceived(c fiber.Ctx) error {
	var req MessageEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.LeadMessageReceived{
		BaseEvent: events.NewBaseEvent(events.LeadMessageReceivedEvent, req.LeadID),
		ChannelID: req.ChannelID,
		Text:      req.Text,
	}

	if err := h.eventBus.Publish(c.Context(), req.LeadID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Leadrun API is healthy"
	httpStatus := http.StatusOK

	err := h.store.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Leadrun API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
