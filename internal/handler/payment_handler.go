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

// PaymentHandler handles payment HTTP requests
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePayment handles POST /payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", req.BookingID),
		attribute.String("payment_method", req.PaymentMethod),
	)

	payment, err := h.paymentService.CreatePayment(ctx, userID, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("payment_id", payment.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, payment)
}

// GetPayment handles GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	paymentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_id", paymentID))

	payment, err := h.paymentService.GetPayment(ctx, paymentID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, payment)
}

// GetPaymentByBooking handles GET /payments/booking/:bookingId
func (h *PaymentHandler) GetPaymentByBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.get_by_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("bookingId")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	payment, err := h.paymentService.GetPaymentByBooking(ctx, bookingID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, payment)
}

// UpdatePayment handles PUT /payments/:id
func (h *PaymentHandler) UpdatePayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		bindError(c, err)
		return
	}

	paymentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_id", paymentID))

	payment, err := h.paymentService.UpdatePayment(ctx, paymentID, userID, req.ToPatch())
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, payment)
}

// ConfirmPayment handles PUT /payments/:id/confirm
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	paymentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_id", paymentID))

	payment, err := h.paymentService.ConfirmPayment(ctx, paymentID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, payment)
}

// RefundPayment handles PUT /payments/:id/refund. The body is optional.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.refund")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.RefundPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			bindError(c, err)
			return
		}
	}

	paymentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_id", paymentID))

	payment, err := h.paymentService.RefundPayment(ctx, paymentID, userID, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, payment)
}

// DeletePayment handles DELETE /payments/:id
func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	paymentID := c.Param("id")
	span.SetAttributes(attribute.String("payment_id", paymentID))

	if err := h.paymentService.DeletePayment(ctx, paymentID, userID); err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"id": paymentID, "deleted": true})
}

// ListUserPayments handles GET /payments/user
func (h *PaymentHandler) ListUserPayments(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.list_user")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	payments, err := h.paymentService.ListUserPayments(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, payments)
}

// HotelPayments handles GET /payments/hotel
func (h *PaymentHandler) HotelPayments(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.hotel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.paymentService.HotelPayments(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ListAllPayments handles GET /payments (admin)
func (h *PaymentHandler) ListAllPayments(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.list_all")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var q dto.PaginationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.paymentService.ListAllPayments(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, page.Data, response.PageMeta{Page: page.Page, PageSize: page.PageSize, Total: page.Total})
}
