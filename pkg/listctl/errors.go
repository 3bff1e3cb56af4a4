package listctl

import (
	"context"
	"errors"
	"net"
)

// Common errors returned by the controller.
var (
	// ErrValidation marks client-side validation failures. Validators wrap it.
	ErrValidation = errors.New("validation failed")

	// ErrNoPendingDelete is returned by ConfirmDelete without a prior RequestDelete.
	ErrNoPendingDelete = errors.New("no deletion pending confirmation")

	// ErrDeleteInProgress is returned when a deletion is already in flight.
	ErrDeleteInProgress = errors.New("deletion already in progress")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")
)

// ErrorKind classifies a failure for the user-facing message.
type ErrorKind string

const (
	// KindNetwork is a transport failure.
	KindNetwork ErrorKind = "network"

	// KindServer is a non-2xx response.
	KindServer ErrorKind = "server"

	// KindValidation is a client-side validation failure.
	KindValidation ErrorKind = "validation"

	// KindUnknown is anything else.
	KindUnknown ErrorKind = "unknown"
)

// Kinded is implemented by collaborator errors that know their own kind.
type Kinded interface {
	Kind() ErrorKind
}

// Classify maps an error to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrValidation) {
		return KindValidation
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// Failure is the error surfaced in controller state.
type Failure struct {
	Op      string    `json:"op"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Messages holds the user-facing strings shown by the presentation layer.
type Messages struct {
	Network    string
	Server     string
	Validation string
	Unknown    string

	// EmptyCollection is shown when the collection has no items at all.
	EmptyCollection string

	// NoMatches is shown when filters or a search term exclude every item.
	NoMatches string

	// PageEmpty is shown when items exist but none fall on the current page,
	// e.g. after deleting the last item of a trailing page.
	PageEmpty string
}

// DefaultMessages returns the English message table.
func DefaultMessages() Messages {
	return Messages{
		Network:         "Could not reach the server. Check your connection and try again.",
		Server:          "The server could not complete the request. Please try again.",
		Validation:      "Some required fields are missing or invalid.",
		Unknown:         "Something went wrong. Please try again.",
		EmptyCollection: "Nothing here yet.",
		NoMatches:       "No results match the current filters.",
		PageEmpty:       "No items on this page. Go back to see the rest.",
	}
}

// For returns the message for kind.
func (m Messages) For(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return m.Network
	case KindServer:
		return m.Server
	case KindValidation:
		return m.Validation
	default:
		return m.Unknown
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Network == "" {
		m.Network = d.Network
	}
	if m.Server == "" {
		m.Server = d.Server
	}
	if m.Validation == "" {
		m.Validation = d.Validation
	}
	if m.Unknown == "" {
		m.Unknown = d.Unknown
	}
	if m.EmptyCollection == "" {
		m.EmptyCollection = d.EmptyCollection
	}
	if m.NoMatches == "" {
		m.NoMatches = d.NoMatches
	}
	if m.PageEmpty == "" {
		m.PageEmpty = d.PageEmpty
	}
	return m
}
