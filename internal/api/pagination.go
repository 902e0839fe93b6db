package api

import (
	"net/http"
	"strconv"
)

// Person, location and coordinates listings share one paging scheme:
// ?page= counts from 1 and ?limit= is clamped to maxPageSize.
const (
	defaultPageSize = 20
	maxPageSize     = 200
)

type pageRequest struct {
	Page   int
	Limit  int
	Offset int
}

func readPage(r *http.Request) pageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	page = max(page, 1)
	switch {
	case limit < 1:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return pageRequest{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Page is the body of every list endpoint.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageInfo `json:"pagination"`
}

// PageInfo lets clients walk a listing; TotalPages is at least 1 so an
// empty registry still reports page 1 of 1.
type PageInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

func newPage[T any](items []T, req pageRequest, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := max((total+req.Limit-1)/req.Limit, 1)
	return Page[T]{
		Data: items,
		Pagination: PageInfo{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    req.Page < pages,
		},
	}
}
