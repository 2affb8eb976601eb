package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/service"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/response"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
)

// CatalogHandler serves the public hotel and room reads
type CatalogHandler struct {
	catalogService service.CatalogService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// GetHotel handles GET /hotels/:id
func (h *CatalogHandler) GetHotel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.get_hotel")
	defer span.End()

	hotel, err := h.catalogService.GetHotel(ctx, c.Param("id"))
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, hotel)
}

// ListRooms handles GET /rooms
func (h *CatalogHandler) ListRooms(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.list_rooms")
	defer span.End()

	var q dto.RoomListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	rooms, err := h.catalogService.ListRooms(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, rooms)
}

// GetRoom handles GET /rooms/:id
func (h *CatalogHandler) GetRoom(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.get_room")
	defer span.End()

	room, err := h.catalogService.GetRoom(ctx, c.Param("id"))
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, room)
}
