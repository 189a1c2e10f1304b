package dto

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// PaginatedResponse is the envelope for offset-paginated lists (forms,
// members). Submission lists use CursorPage instead.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

// CursorPage is the envelope for cursor-paginated lists. NextCursor is
// present exactly when HasNextPage is true.
type CursorPage struct {
	Data        interface{} `json:"data"`
	HasNextPage bool        `json:"has_next_page"`
	NextCursor  string      `json:"next_cursor,omitempty"`
	Total       int64       `json:"total"`
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}
