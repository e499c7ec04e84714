package api

import (
	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/models"
)

// QueryRequest is the request body of POST /api/query.
type QueryRequest = content.Request

// DirsResponse lists the directory set.
type DirsResponse struct {
	Dirs []string `json:"dirs" example:"/,/posts" validate:"required"`
}

// RecordsResponse wraps a list of records.
type RecordsResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"42" validate:"required"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Record models.Record `json:"record" validate:"required"`
}
