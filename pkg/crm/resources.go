package crm

import (
	"context"
	"strings"

	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
)

// Collection is a typed CRM resource. It checks filters before listing,
// records before creating and patches before updating, so invalid input
// never reaches the API.
type Collection[T any] struct {
	*client.Resource[T, int64]

	name          string
	filters       FilterSet
	validate      func(T) error
	validatePatch func(listctl.Patch) error
}

var _ listctl.Remote[Lead, int64] = (*Collection[Lead])(nil)

func newCollection[T any](c *client.Client, path string, filters FilterSet, validate func(T) error, validatePatch func(listctl.Patch) error) *Collection[T] {
	return &Collection[T]{
		Resource:      client.NewResource[T, int64](c, path),
		name:          strings.TrimPrefix(path, "/"),
		filters:       filters,
		validate:      validate,
		validatePatch: validatePatch,
	}
}

// Leads binds /leads.
func Leads(c *client.Client) *Collection[Lead] {
	return newCollection(c, PathLeads, LeadFilters, ValidateLead, ValidateLeadPatch)
}

// Sellers binds /sellers.
func Sellers(c *client.Client) *Collection[Seller] {
	return newCollection(c, PathSellers, SellerFilters, ValidateSeller, ValidateSellerPatch)
}

// Appointments binds /appointments.
func Appointments(c *client.Client) *Collection[Appointment] {
	return newCollection(c, PathAppointments, AppointmentFilters, ValidateAppointment, ValidateAppointmentPatch)
}

// Name returns the collection name, e.g. "leads".
func (c *Collection[T]) Name() string {
	return c.name
}

// Filters returns the accepted filters.
func (c *Collection[T]) Filters() FilterSet {
	return c.filters
}

// List fetches one page after checking the query filters.
func (c *Collection[T]) List(ctx context.Context, q listctl.Query) (listctl.PageResult[T], error) {
	if err := c.filters.ValidateAll(q.Filters); err != nil {
		return listctl.PageResult[T]{}, err
	}
	return c.Resource.List(ctx, q)
}

// Create validates item and posts it.
func (c *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	if err := c.validate(item); err != nil {
		var zero T
		return zero, err
	}
	return c.Resource.Create(ctx, item)
}

// Update validates patch and sends it.
func (c *Collection[T]) Update(ctx context.Context, id int64, patch listctl.Patch) (T, error) {
	if err := c.validatePatch(patch); err != nil {
		var zero T
		return zero, err
	}
	return c.Resource.Update(ctx, id, patch)
}

// Controller returns a list controller over the collection. Zero fields in
// cfg take the listctl defaults and the resource name.
func (c *Collection[T]) Controller(cfg listctl.Config) (*listctl.Controller[T, int64], error) {
	if cfg.Resource == "" {
		cfg.Resource = c.name
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = listctl.DefaultConfig(c.name).PageSize
	}
	if err := c.filters.ValidateAll(cfg.Filters); err != nil {
		return nil, err
	}

	ctrl, err := listctl.New[T, int64](c, cfg)
	if err != nil {
		return nil, err
	}
	ctrl.SetValidator(c.validate)
	ctrl.SetPatchValidator(c.validatePatch)
	return ctrl, nil
}
