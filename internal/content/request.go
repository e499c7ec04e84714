package content

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/query"
)

// Result modes of a Request.
const (
	ModeAuto = "auto"
	ModeOne  = "one"
	ModeMany = "many"
)

// Request is a serialisable query, used by the HTTP API, the MCP tools and
// the CLI.
type Request struct {
	Path    string       `json:"path,omitempty"`
	Where   query.Filter `json:"where,omitempty"`
	Only    []string     `json:"only,omitempty"`
	Without []string     `json:"without,omitempty"`
	Sort    []SortSpec   `json:"sort,omitempty"`
	Skip    int          `json:"skip,omitempty"`
	Limit   int          `json:"limit,omitempty"`
	Search  *SearchSpec  `json:"search,omitempty"`
	Mode    string       `json:"mode,omitempty"`
	// Raise makes ModeOne fail with a not-found error when nothing matches.
	Raise *bool `json:"raise,omitempty"`
}

// SortSpec is one sort key of a Request.
type SortSpec struct {
	Key string `json:"key"`
	Dir string `json:"dir,omitempty"`
}

// Validate validates the sort key.
func (s SortSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Key, validation.Required),
		validation.Field(&s.Dir, validation.In("asc", "desc", "ASC", "DESC")),
	)
}

// SearchSpec configures fuzzy search in a Request.
type SearchSpec struct {
	Term      string   `json:"term"`
	Keys      []string `json:"keys,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *int     `json:"threshold,omitempty"`
}

// Validate validates the search settings.
func (s SearchSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Term, validation.Required),
		validation.Field(&s.Limit, validation.Min(0)),
	)
}

// Validate validates the request.
func (r *Request) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Mode, validation.In(ModeAuto, ModeOne, ModeMany)),
		validation.Field(&r.Skip, validation.Min(0)),
		validation.Field(&r.Limit, validation.Min(0)),
		validation.Field(&r.Sort),
		validation.Field(&r.Search),
	)
}

// Build turns the request into a query against s.
func (s *Service) Build(req Request) (*query.Query, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidFilter, err)
	}

	var q *query.Query
	if req.Path != "" {
		q = s.Query(req.Path)
	} else {
		q = query.New(s.store)
	}
	if len(req.Where) > 0 {
		q.Where(req.Where)
	}
	q.Only(req.Only...).Without(req.Without...).Skip(req.Skip).Limit(req.Limit)
	for _, spec := range req.Sort {
		dir, err := query.ParseDirection(spec.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidFilter, err)
		}
		q.SortBy(spec.Key, dir)
	}
	if req.Search != nil {
		keys := req.Search.Keys
		if len(keys) == 0 {
			keys = s.SearchKeys()
		}
		q.Search(req.Search.Term, query.SearchConfig{
			Keys:      keys,
			Limit:     req.Search.Limit,
			Threshold: req.Search.Threshold,
		})
	}
	return q, nil
}

// Run builds and resolves a request. The result is a single record for
// ModeOne, a list for ModeMany, and for ModeAuto whichever the request path
// selects.
func (s *Service) Run(req Request) (any, error) {
	q, err := s.Build(req)
	if err != nil {
		return nil, err
	}
	switch req.Mode {
	case ModeOne:
		raise := req.Raise == nil || *req.Raise
		return q.FetchOne(raise)
	case ModeMany:
		return q.FetchMany()
	}
	res, err := q.Fetch()
	if err != nil {
		return nil, err
	}
	return res.Value(), nil
}
