package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 25
	maxPageSize     = 500
)

// getPageParams extracts offset/limit query params for list endpoints.
func getPageParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
