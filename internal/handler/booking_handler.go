package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/service"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/response"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking and availability HTTP requests
type BookingHandler struct {
	bookingService      service.BookingService
	availabilityService service.AvailabilityService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService, availabilityService service.AvailabilityService) *BookingHandler {
	return &BookingHandler{
		bookingService:      bookingService,
		availabilityService: availabilityService,
	}
}

// CheckAvailability handles POST /bookings/check-availability
func (h *BookingHandler) CheckAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.check_availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	span.SetAttributes(attribute.String("room_id", req.RoomID))

	result, err := h.availabilityService.CheckAvailability(ctx, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("available", result.IsAvailable))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CreateBooking handles POST /bookings/book
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("room_id", req.RoomID),
	)

	booking, err := h.bookingService.CreateBooking(ctx, userID, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, booking)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.bookingService.GetBooking(ctx, bookingID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// UpdateBooking handles PUT /bookings/:id
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.bookingService.UpdateBooking(ctx, bookingID, userID, req.ToPatch())
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// CancelBooking handles PUT /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.bookingService.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, booking)
}

// DeleteBooking handles DELETE /bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if err := h.bookingService.DeleteBooking(ctx, bookingID, userID); err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"id": bookingID, "deleted": true})
}

// ListUserBookings handles GET /bookings/user
func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list_user")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListUserBookings(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	response.Success(c, bookings)
}

// HotelBookings handles GET /bookings/hotel
func (h *BookingHandler) HotelBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.hotel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.bookingService.HotelBookings(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ListAllBookings handles GET /bookings (admin)
func (h *BookingHandler) ListAllBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list_all")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var q dto.PaginationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.bookingService.ListAllBookings(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, page.Data, response.PageMeta{Page: page.Page, PageSize: page.PageSize, Total: page.Total})
}
