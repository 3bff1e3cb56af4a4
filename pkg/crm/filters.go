package crm

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
)

// Filter names understood by the API.
const (
	FilterStatus   = "status"
	FilterSellerID = "sellerId"
	FilterActive   = "active"
	FilterDate     = "date"
)

// DateLayout is the format of the date filter.
const DateLayout = "2006-01-02"

// Resource paths.
const (
	PathLeads        = "/leads"
	PathSellers      = "/sellers"
	PathAppointments = "/appointments"
)

// FilterCheck validates one filter value. Empty values always pass because
// they mean the filter is unset.
type FilterCheck func(value string) error

// FilterSet maps the filters a collection accepts to their checks.
type FilterSet map[string]FilterCheck

// Names returns the accepted filter names, sorted.
func (fs FilterSet) Names() []string {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a single filter.
func (fs FilterSet) Validate(name, value string) error {
	chk, ok := fs[name]
	if !ok {
		return fmt.Errorf("%w: unknown filter %q (accepted: %v)", listctl.ErrValidation, name, fs.Names())
	}
	if value == "" {
		return nil
	}
	if err := chk(value); err != nil {
		return fmt.Errorf("%w: filter %s: %v", listctl.ErrValidation, name, err)
	}
	return nil
}

// ValidateAll checks every filter in filters.
func (fs FilterSet) ValidateAll(filters map[string]string) error {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := fs.Validate(name, filters[name]); err != nil {
			return err
		}
	}
	return nil
}

// LeadFilters are the filters accepted by /leads.
var LeadFilters = FilterSet{
	FilterStatus:   oneOf(LeadStatuses...),
	FilterSellerID: positiveID,
}

// SellerFilters are the filters accepted by /sellers.
var SellerFilters = FilterSet{
	FilterActive: boolean,
}

// AppointmentFilters are the filters accepted by /appointments.
var AppointmentFilters = FilterSet{
	FilterStatus:   oneOf(AppointmentStatuses...),
	FilterSellerID: positiveID,
	FilterDate:     date,
}

// FiltersFor returns the filter set of a resource path, or nil.
func FiltersFor(path string) FilterSet {
	switch path {
	case PathLeads:
		return LeadFilters
	case PathSellers:
		return SellerFilters
	case PathAppointments:
		return AppointmentFilters
	default:
		return nil
	}
}

// FormatDate renders t as a date filter value.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func oneOf[S ~string](allowed ...S) FilterCheck {
	return func(value string) error {
		if slices.Contains(allowed, S(value)) {
			return nil
		}
		return fmt.Errorf("%q is not one of %v", value, allowed)
	}
}

func positiveID(value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("%q is not a valid id", value)
	}
	return nil
}

func boolean(value string) error {
	if value != "true" && value != "false" {
		return fmt.Errorf("%q is not true or false", value)
	}
	return nil
}

func date(value string) error {
	if _, err := time.Parse(DateLayout, value); err != nil {
		return fmt.Errorf("%q is not a %s date", value, DateLayout)
	}
	return nil
}
