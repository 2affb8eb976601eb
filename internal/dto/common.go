package dto

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationQuery is bound from ?page=&page_size=
type PaginationQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1"`
}

// Normalize applies defaults and caps the page size
func (q *PaginationQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
}

// Offset returns the row offset of the page
func (q *PaginationQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// PaginatedResponse wraps one page of a list
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// NewPaginatedResponse builds a page envelope
func NewPaginatedResponse(data interface{}, total int, q PaginationQuery) *PaginatedResponse {
	pages := 0
	if q.PageSize > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	return &PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
	}
}

// RoomListQuery is bound from the public room listing
type RoomListQuery struct {
	HotelID       string `form:"hotel_id"`
	AvailableOnly bool   `form:"available_only"`
	PaginationQuery
}
