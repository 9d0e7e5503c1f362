package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListOptions carries the common list-view query parameters: a substring
// search filter plus pagination.
type ListOptions struct {
	Search   string
	Page     int
	PageSize int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Search != "" {
		q.Set("q", o.Search)
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// ResourceService provides the standard CRUD surface for one backend
// resource collection.
type ResourceService[T any] struct {
	c    *Client
	path string
	name string
}

// List fetches the collection, optionally filtered and paginated
func (s ResourceService[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	return getJSON[[]T](ctx, s.c, s.path, opts.query(), "list "+s.name)
}

// Get fetches one resource by id
func (s ResourceService[T]) Get(ctx context.Context, id string) (*T, error) {
	out, err := getJSON[T](ctx, s.c, s.path+"/"+url.PathEscape(id), nil, "get "+s.name)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create persists a new resource and returns the stored representation
func (s ResourceService[T]) Create(ctx context.Context, v T) (*T, error) {
	var out T
	if err := s.c.do(ctx, http.MethodPost, s.path, nil, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces a resource and returns the stored representation
func (s ResourceService[T]) Update(ctx context.Context, id string, v T) (*T, error) {
	var out T
	if err := s.c.do(ctx, http.MethodPut, s.path+"/"+url.PathEscape(id), nil, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a resource by id
func (s ResourceService[T]) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, s.path+"/"+url.PathEscape(id), nil, nil, nil)
}
