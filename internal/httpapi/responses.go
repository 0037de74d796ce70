package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/snarg/radio-ingest/internal/apierr"
)

// WriteJSON writes v as a JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON body returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes err classified via apierr.Kind, or a generic 400 if err
// is not an *apierr.Error.
func WriteError(w http.ResponseWriter, err error) {
	kind := apierr.KindInvalidRequest
	msg := err.Error()
	if ae, ok := err.(*apierr.Error); ok {
		kind = ae.Kind
		msg = ae.Message
	}
	WriteJSON(w, kind.HTTPStatus(), ErrorResponse{
		Error:   kind.Code(),
		Code:    kind.Code(),
		Message: msg,
	})
}

// WriteNotFound writes the fixed 404 body used by the fallback route.
func WriteNotFound(w http.ResponseWriter) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "Not Found",
		Code:    "ROUTE_NOT_FOUND",
		Message: "The requested endpoint does not exist",
	})
}

// PaginationMeta describes a page of results in list responses.
type PaginationMeta struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	NextPage   *int `json:"next_page,omitempty"`
	PrevPage   *int `json:"prev_page,omitempty"`
}

// Pagination is a parsed, validated page/limit/offset triple.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads page/limit/offset query params. Defaults: limit=50,
// page=1. limit above 1000 is clamped to 1000; limit<1, page<1 and explicit
// offset<0 are rejected (B1). An explicit offset param wins over page-derived offset.
func ParsePagination(r *http.Request) (Pagination, error) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Pagination{}, apierr.New(apierr.KindInvalidRequest, "limit must be an integer")
		}
		limit = n
	}
	if limit < 1 {
		return Pagination{}, apierr.New(apierr.KindInvalidRequest, "limit must be at least 1")
	}
	if limit > 1000 {
		limit = 1000
	}

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Pagination{}, apierr.New(apierr.KindInvalidRequest, "page must be an integer")
		}
		page = n
	}
	if page < 1 {
		return Pagination{}, apierr.New(apierr.KindInvalidRequest, "page must be at least 1")
	}

	offset := (page - 1) * limit
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Pagination{}, apierr.New(apierr.KindInvalidRequest, "offset must be an integer")
		}
		if n < 0 {
			return Pagination{}, apierr.New(apierr.KindInvalidRequest, "offset must not be negative")
		}
		offset = n
	}

	return Pagination{Page: page, Limit: limit, Offset: offset}, nil
}

// BuildMeta builds the PaginationMeta for a result page given the total row
// count.
func BuildMeta(p Pagination, total int64) PaginationMeta {
	totalPages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		totalPages++
	}
	meta := PaginationMeta{
		Page:       p.Page,
		PerPage:    p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    p.Page > 1,
		HasNext:    int64(p.Page) < totalPages,
	}
	if meta.HasNext {
		next := p.Page + 1
		meta.NextPage = &next
	}
	if meta.HasPrev {
		prev := p.Page - 1
		meta.PrevPage = &prev
	}
	return meta
}
