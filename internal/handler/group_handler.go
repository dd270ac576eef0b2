package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GroupHandler handles resource group HTTP requests
type GroupHandler struct {
	coordinator service.ReservationCoordinator
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(coordinator service.ReservationCoordinator) *GroupHandler {
	return &GroupHandler{coordinator: coordinator}
}

// RegisterGroup handles POST /groups
func (h *GroupHandler) RegisterGroup(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.group.register")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.RegisterGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("group_id", req.GroupID),
		attribute.Int("resources", len(req.Resources)),
	)

	if err := h.coordinator.RegisterGroup(ctx, req.GroupID, req.Specs()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, &dto.RegisterGroupResponse{
		GroupID:   req.GroupID,
		Resources: len(req.Resources),
	})
}

// ListGroups handles GET /groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups := h.coordinator.Groups(c.Request.Context())
	if groups == nil {
		groups = []string{}
	}
	response.Success(c, &dto.GroupListResponse{Groups: groups})
}

// GetAvailability handles GET /groups/:id/availability
func (h *GroupHandler) GetAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.group.availability")
	defer span.End()

	groupID := c.Param("id")
	span.SetAttributes(attribute.String("group_id", groupID))

	availability, err := h.coordinator.Availability(ctx, groupID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, availability)
}

// GetResources handles GET /groups/:id/resources
func (h *GroupHandler) GetResources(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.group.resources")
	defer span.End()

	groupID := c.Param("id")
	span.SetAttributes(attribute.String("group_id", groupID))

	resources, err := h.coordinator.Snapshot(ctx, groupID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Response{
		Success: true,
		Data:    dto.FromResources(resources),
		Meta:    gin.H{"group_id": groupID, "count": len(resources)},
	})
}
