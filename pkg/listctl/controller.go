package listctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Patch is a partial update sent to the remote collection.
type Patch map[string]any

// Remote is the collection the controller pages through.
type Remote[T any, ID comparable] interface {
	List(ctx context.Context, q Query) (PageResult[T], error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id ID, patch Patch) (T, error)
	Delete(ctx context.Context, id ID) error
}

// Config holds the controller configuration.
type Config struct {
	// Resource names the collection in logs and metrics (e.g. "leads").
	Resource string

	// PageSize is the number of items per page.
	PageSize int

	// Debounce is the quiet window for search input.
	Debounce time.Duration

	// Filters and SearchTerm seed the initial query.
	Filters    map[string]string
	SearchTerm string

	// Messages are the user-facing strings. Empty fields fall back to DefaultMessages.
	Messages Messages
}

// DefaultConfig returns the default configuration for a resource.
func DefaultConfig(resource string) Config {
	return Config{
		Resource: resource,
		PageSize: 20,
		Debounce: DefaultDebounce,
		Messages: DefaultMessages(),
	}
}

// DeletePhase is the step of the delete confirmation flow.
type DeletePhase string

const (
	DeleteIdle     DeletePhase = "idle"
	DeletePending  DeletePhase = "pending_confirmation"
	DeleteInFlight DeletePhase = "in_flight"
)

// DeleteState describes the delete confirmation flow.
type DeleteState[ID comparable] struct {
	Phase  DeletePhase
	Target ID
}

// State is an immutable snapshot of the controller.
type State[T any, ID comparable] struct {
	CurrentQuery     Query
	LastAppliedQuery Query
	PendingSearch    string

	Items      []T
	TotalCount int
	TotalPages int

	// DisplayPage is CurrentQuery.Page clamped into [1, TotalPages].
	DisplayPage int
	ShowingFrom int
	ShowingTo   int

	Loading  bool
	Deleting bool
	Delete   DeleteState[ID]

	Err          *Failure
	EmptyMessage string
	LatestToken  uint64
}

// Controller keeps a consistent view of one page of a remote collection.
// A Controller is safe for concurrent use.
//
// Query changes (filter, search, page size) build on the current query,
// which is the applied query plus any change still in flight. A failed
// fetch resets the current query to the applied one.
type Controller[T any, ID comparable] struct {
	remote   Remote[T, ID]
	config   Config
	logger   zerolog.Logger
	debounce *Debouncer

	// ctx scopes debounced fetches; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	validate      func(T) error
	validatePatch func(Patch) error
	current       Query
	applied       Query
	pendingSearch string
	items         []T
	totalCount    int
	loading       bool
	deleting      bool
	deletion      DeleteState[ID]
	failure       *Failure
	latest        uint64
	loaded        bool
	closed        bool
	nextSubID     int
	subscribers   map[int]func(State[T, ID])
}

// New creates a controller over remote.
func New[T any, ID comparable](remote Remote[T, ID], cfg Config) (*Controller[T, ID], error) {
	if remote == nil {
		return nil, fmt.Errorf("remote collection is required")
	}

	if cfg.Resource == "" {
		return nil, fmt.Errorf("resource name is required")
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	cfg.Messages = cfg.Messages.withDefaults()

	initial := Query{
		Page:       1,
		PageSize:   cfg.PageSize,
		Filters:    cfg.Filters,
		SearchTerm: cfg.SearchTerm,
	}.Clone()

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller[T, ID]{
		remote:        remote,
		config:        cfg,
		logger:        log.With().Str("component", "list-controller").Str("resource", cfg.Resource).Logger(),
		debounce:      NewDebouncer(cfg.Debounce),
		ctx:           ctx,
		cancel:        cancel,
		current:       initial,
		applied:       initial.Clone(),
		pendingSearch: cfg.SearchTerm,
		deletion:      DeleteState[ID]{Phase: DeleteIdle},
		subscribers:   make(map[int]func(State[T, ID])),
	}, nil
}

// SetValidator installs a client-side check run before Create.
func (c *Controller[T, ID]) SetValidator(fn func(T) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validate = fn
}

// SetPatchValidator installs a client-side check run before Update.
func (c *Controller[T, ID]) SetPatchValidator(fn func(Patch) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validatePatch = fn
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (c *Controller[T, ID]) Subscribe(fn func(State[T, ID])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// State returns a snapshot of the controller.
func (c *Controller[T, ID]) State() State[T, ID] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Load fetches the current query. Call it once after New.
func (c *Controller[T, ID]) Load(ctx context.Context) {
	c.mu.Lock()
	q := c.current.Clone()
	c.mu.Unlock()
	c.Fetch(ctx, q)
}

// Fetch requests q from the remote and applies the result unless a newer
// fetch was issued in the meantime.
func (c *Controller[T, ID]) Fetch(ctx context.Context, q Query) {
	q = q.Clone()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// GoToPage fetches page n with the applied filters and search term.
// It is a no-op (returning false) when n is out of range, already current,
// or another fetch is in flight.
func (c *Controller[T, ID]) GoToPage(ctx context.Context, n int) bool {
	c.mu.Lock()
	totalPages := TotalPages(c.totalCount, c.applied.PageSize)
	if c.closed || c.loading || n < 1 || n > totalPages || n == c.current.Page {
		c.logger.Debug().
			Int("requested", n).
			Int("current", c.current.Page).
			Int("total_pages", totalPages).
			Bool("loading", c.loading).
			Msg("Page change ignored")
		c.mu.Unlock()
		return false
	}

	q := c.applied.WithPage(n)
	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
	return true
}

// NextPage moves forward one page. See GoToPage.
func (c *Controller[T, ID]) NextPage(ctx context.Context) bool {
	c.mu.Lock()
	n := c.current.Page + 1
	c.mu.Unlock()
	return c.GoToPage(ctx, n)
}

// PrevPage moves back one page. See GoToPage.
func (c *Controller[T, ID]) PrevPage(ctx context.Context) bool {
	c.mu.Lock()
	n := c.current.Page - 1
	c.mu.Unlock()
	return c.GoToPage(ctx, n)
}

// SetFilter sets filter name to value (an empty value clears it) and
// fetches page 1 immediately.
func (c *Controller[T, ID]) SetFilter(ctx context.Context, name, value string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	q := c.current.Clone()
	if q.Filters == nil {
		q.Filters = make(map[string]string)
	}
	if value == "" {
		delete(q.Filters, name)
	} else {
		q.Filters[name] = value
	}
	q.Page = 1

	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// ClearFilters drops every filter and the search term and fetches page 1.
func (c *Controller[T, ID]) ClearFilters(ctx context.Context) {
	c.debounce.Cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pendingSearch = ""
	q := Query{Page: 1, PageSize: c.current.PageSize}
	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// SetPageSize changes the page size and fetches page 1.
func (c *Controller[T, ID]) SetPageSize(ctx context.Context, size int) {
	if size <= 0 {
		return
	}

	c.mu.Lock()
	if c.closed || size == c.current.PageSize {
		c.mu.Unlock()
		return
	}
	q := c.current.Clone()
	q.PageSize = size
	q.Page = 1
	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// SetSearchTerm records term as the pending search. The fetch happens once
// the debounce window passes without another call.
func (c *Controller[T, ID]) SetSearchTerm(term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pendingSearch = term
	c.mu.Unlock()

	c.notify()
	c.debounce.Debounce(func() { c.applySearch(term) })
}

// FlushSearch applies a pending search term without waiting for the window.
func (c *Controller[T, ID]) FlushSearch() bool {
	return c.debounce.Flush()
}

// applySearch runs on the debounce timer with the term captured when it was armed.
func (c *Controller[T, ID]) applySearch(term string) {
	c.mu.Lock()
	if c.closed || term == c.current.SearchTerm {
		c.mu.Unlock()
		return
	}

	q := c.current.Clone()
	q.SearchTerm = term
	q.Page = 1
	token := c.issueLocked(q)
	ctx := c.ctx
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// Refresh re-fetches the applied query.
func (c *Controller[T, ID]) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	q := c.applied.Clone()
	token := c.issueLocked(q)
	c.mu.Unlock()

	c.notify()
	c.await(ctx, token, q)
}

// Create validates item, sends it to the remote and re-fetches the applied query.
func (c *Controller[T, ID]) Create(ctx context.Context, item T) (T, error) {
	var zero T

	c.mu.Lock()
	validate := c.validate
	c.mu.Unlock()

	if validate != nil {
		if err := validate(item); err != nil {
			c.recordFailure("create", err)
			return zero, err
		}
	}

	created, err := c.remote.Create(ctx, item)
	if err != nil {
		c.recordFailure("create", err)
		return zero, err
	}
	listMutationsTotal.WithLabelValues(c.config.Resource, "create", outcomeOK).Inc()

	c.Refresh(ctx)
	return created, nil
}

// Update validates patch, sends it for id to the remote and re-fetches the
// applied query.
func (c *Controller[T, ID]) Update(ctx context.Context, id ID, patch Patch) (T, error) {
	var zero T

	if len(patch) == 0 {
		err := fmt.Errorf("%w: empty patch", ErrValidation)
		c.recordFailure("update", err)
		return zero, err
	}

	c.mu.Lock()
	validate := c.validatePatch
	c.mu.Unlock()

	if validate != nil {
		if err := validate(patch); err != nil {
			c.recordFailure("update", err)
			return zero, err
		}
	}

	updated, err := c.remote.Update(ctx, id, patch)
	if err != nil {
		c.recordFailure("update", err)
		return zero, err
	}
	listMutationsTotal.WithLabelValues(c.config.Resource, "update", outcomeOK).Inc()

	c.Refresh(ctx)
	return updated, nil
}

// RequestDelete opens the confirmation step for id.
func (c *Controller[T, ID]) RequestDelete(id ID) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.deleting:
		c.mu.Unlock()
		return ErrDeleteInProgress
	}
	c.deletion = DeleteState[ID]{Phase: DeletePending, Target: id}
	c.mu.Unlock()

	c.notify()
	return nil
}

// CancelDelete closes the confirmation step. It is ignored (returning false)
// while the delete call is in flight.
func (c *Controller[T, ID]) CancelDelete() bool {
	c.mu.Lock()
	if c.deleting || c.deletion.Phase != DeletePending {
		c.logger.Debug().Str("phase", string(c.deletion.Phase)).Msg("Delete cancel ignored")
		c.mu.Unlock()
		return false
	}
	c.deletion = DeleteState[ID]{Phase: DeleteIdle}
	c.mu.Unlock()

	c.notify()
	return true
}

// ConfirmDelete deletes the pending target and re-fetches the applied query.
// On failure the confirmation stays open so the user can retry or cancel.
func (c *Controller[T, ID]) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.deleting:
		c.mu.Unlock()
		return ErrDeleteInProgress
	case c.deletion.Phase != DeletePending:
		c.mu.Unlock()
		return ErrNoPendingDelete
	}
	id := c.deletion.Target
	c.deleting = true
	c.deletion.Phase = DeleteInFlight
	c.mu.Unlock()
	c.notify()

	err := c.remote.Delete(ctx, id)

	c.mu.Lock()
	c.deleting = false
	if err != nil {
		c.deletion.Phase = DeletePending
		c.mu.Unlock()
		c.recordFailure("delete", err)
		return err
	}
	c.deletion = DeleteState[ID]{Phase: DeleteIdle}
	c.mu.Unlock()
	listMutationsTotal.WithLabelValues(c.config.Resource, "delete", outcomeOK).Inc()

	c.notify()
	c.Refresh(ctx)
	return nil
}

// Close cancels pending searches and drops any response still in flight.
func (c *Controller[T, ID]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.debounce.Cancel()
	c.cancel()
}

// issueLocked starts a fetch of q and returns its token. Callers hold c.mu.
func (c *Controller[T, ID]) issueLocked(q Query) uint64 {
	c.latest++
	c.current = q.Clone()
	c.loading = true
	return c.latest
}

func (c *Controller[T, ID]) await(ctx context.Context, token uint64, q Query) {
	c.logger.Debug().
		Uint64("token", token).
		Int("page", q.Page).
		Str("search", q.SearchTerm).
		Interface("filters", q.Filters).
		Msg("Fetching page")

	start := time.Now()
	result, err := c.remote.List(ctx, q.Clone())
	listFetchDuration.WithLabelValues(c.config.Resource).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if c.closed || token != c.latest {
		latest := c.latest
		c.mu.Unlock()

		listFetchesTotal.WithLabelValues(c.config.Resource, outcomeStale).Inc()
		c.logger.Debug().
			Uint64("token", token).
			Uint64("latest", latest).
			Bool("failed", err != nil).
			Msg("Discarding stale response")
		return
	}

	c.loading = false
	if err != nil {
		kind := Classify(err)
		c.failure = &Failure{Op: "list", Kind: kind, Message: c.config.Messages.For(kind)}
		// Page, size, filters and search all go back to what is on screen.
		c.current = c.applied.Clone()
		c.mu.Unlock()

		listFetchesTotal.WithLabelValues(c.config.Resource, outcomeFailed).Inc()
		c.logger.Warn().
			Err(err).
			Uint64("token", token).
			Int("page", q.Page).
			Str("error_kind", string(kind)).
			Msg("List fetch failed")
		c.notify()
		return
	}

	page := result.Page
	if page < 1 {
		page = q.Page
	}
	total := result.TotalCount
	if total < 0 {
		total = 0
	}

	c.items = append([]T(nil), result.Items...)
	c.totalCount = total
	c.current.Page = page
	c.applied = q.Clone()
	c.applied.Page = page
	c.failure = nil
	c.loaded = true
	c.mu.Unlock()

	listFetchesTotal.WithLabelValues(c.config.Resource, outcomeApplied).Inc()
	c.logger.Debug().
		Uint64("token", token).
		Int("page", page).
		Int("total_count", total).
		Int("items", len(result.Items)).
		Msg("Page applied")
	c.notify()
}

func (c *Controller[T, ID]) recordFailure(op string, err error) {
	kind := Classify(err)

	c.mu.Lock()
	c.failure = &Failure{Op: op, Kind: kind, Message: c.config.Messages.For(kind)}
	c.mu.Unlock()

	listMutationsTotal.WithLabelValues(c.config.Resource, op, outcomeFailed).Inc()
	c.logger.Warn().Err(err).Str("op", op).Str("error_kind", string(kind)).Msg("Mutation failed")
	c.notify()
}

func (c *Controller[T, ID]) snapshotLocked() State[T, ID] {
	totalPages := TotalPages(c.totalCount, c.applied.PageSize)
	// Unclamped: a page past the end shows nothing, so the range is 0-0.
	from, to := ShowingRange(c.applied.Page, c.applied.PageSize, c.totalCount)

	s := State[T, ID]{
		CurrentQuery:     c.current.Clone(),
		LastAppliedQuery: c.applied.Clone(),
		PendingSearch:    c.pendingSearch,
		Items:            append([]T(nil), c.items...),
		TotalCount:       c.totalCount,
		TotalPages:       totalPages,
		DisplayPage:      ClampPage(c.current.Page, totalPages),
		ShowingFrom:      from,
		ShowingTo:        to,
		Loading:          c.loading,
		Deleting:         c.deleting,
		Delete:           c.deletion,
		LatestToken:      c.latest,
	}
	if c.failure != nil {
		f := *c.failure
		s.Err = &f
	}
	if c.loaded && !c.loading && c.failure == nil && len(c.items) == 0 {
		switch {
		case c.totalCount > 0:
			s.EmptyMessage = c.config.Messages.PageEmpty
		case c.applied.HasCriteria():
			s.EmptyMessage = c.config.Messages.NoMatches
		default:
			s.EmptyMessage = c.config.Messages.EmptyCollection
		}
	}
	return s
}

func (c *Controller[T, ID]) notify() {
	c.mu.Lock()
	if len(c.subscribers) == 0 {
		c.mu.Unlock()
		return
	}
	s := c.snapshotLocked()
	subs := make([]func(State[T, ID]), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
