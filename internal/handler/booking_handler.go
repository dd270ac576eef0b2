package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles reservation and booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// Reserve handles POST /reservations. The call blocks through hold, payment
// and confirmation and returns the confirmed booking.
func (h *BookingHandler) Reserve(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.reserve")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey, _ = middleware.GetIdempotencyKey(c)
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("group_id", req.GroupID),
		attribute.Int("resources", len(req.ResourceKeys)),
	)

	result, err := h.bookingService.Reserve(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.GetBooking(ctx, bookingID, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetUserBookings handles GET /bookings
func (h *BookingHandler) GetUserBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.bookingService.GetRequesterBookings(ctx, userID, page, pageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, result.Data, gin.H{
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_items": result.TotalItems,
		"total_pages": result.TotalPages,
	})
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "unauthorized")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("status", result.Status))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
