package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
)

// Page is the list envelope returned by collection endpoints.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
}

// Resource is a REST collection at a fixed path. It implements
// listctl.Remote[T, ID].
type Resource[T any, ID comparable] struct {
	client *Client
	path   string
}

var _ listctl.Remote[struct{}, int] = (*Resource[struct{}, int])(nil)

// NewResource binds a collection path such as "/leads".
func NewResource[T any, ID comparable](c *Client, path string) *Resource[T, ID] {
	return &Resource[T, ID]{
		client: c,
		path:   "/" + strings.Trim(path, "/"),
	}
}

// Path returns the collection path.
func (r *Resource[T, ID]) Path() string {
	return r.path
}

// List fetches one page. A response without a page number echoes the
// requested page.
func (r *Resource[T, ID]) List(ctx context.Context, q listctl.Query) (listctl.PageResult[T], error) {
	var page Page[T]
	if err := r.client.Send(ctx, http.MethodGet, r.path, q.Values(), nil, &page); err != nil {
		return listctl.PageResult[T]{}, err
	}

	if page.Items == nil {
		page.Items = []T{}
	}
	if page.Page < 1 {
		page.Page = q.Page
	}
	if page.TotalCount < 0 {
		return listctl.PageResult[T]{}, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassServer,
			Message:    fmt.Sprintf("negative totalCount %d", page.TotalCount),
		}
	}

	return listctl.PageResult[T]{
		Items:      page.Items,
		TotalCount: page.TotalCount,
		Page:       page.Page,
	}, nil
}

// Get fetches a single record.
func (r *Resource[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var out T
	err := r.client.Send(ctx, http.MethodGet, r.itemPath(id), nil, nil, &out)
	return out, err
}

// Create posts a new record and returns the stored version.
func (r *Resource[T, ID]) Create(ctx context.Context, item T) (T, error) {
	var out T
	if err := r.client.Send(ctx, http.MethodPost, r.path, nil, item, &out); err != nil {
		return out, err
	}
	r.client.InvalidateCache(ctx, r.path)
	return out, nil
}

// Update applies a partial update.
func (r *Resource[T, ID]) Update(ctx context.Context, id ID, patch listctl.Patch) (T, error) {
	var out T
	if err := r.client.Send(ctx, http.MethodPatch, r.itemPath(id), nil, patch, &out); err != nil {
		return out, err
	}
	r.client.InvalidateCache(ctx, r.path)
	return out, nil
}

// Delete removes a record.
func (r *Resource[T, ID]) Delete(ctx context.Context, id ID) error {
	if err := r.client.Send(ctx, http.MethodDelete, r.itemPath(id), nil, nil, nil); err != nil {
		return err
	}
	r.client.InvalidateCache(ctx, r.path)
	return nil
}

func (r *Resource[T, ID]) itemPath(id ID) string {
	return r.path + "/" + fmt.Sprint(id)
}
