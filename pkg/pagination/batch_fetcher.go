package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// Keep it below the API quota per reset window.
	MaxConcurrency int
	// PageSize used for every page of the walk
	PageSize int
	// Timeout per page fetch
	Timeout time.Duration
	// ProgressEvery logs progress after this many pages (0 disables)
	ProgressEvery int
}

// DefaultConfig returns a configuration safe for the CRM API quota.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		PageSize:       100,
		Timeout:        15 * time.Second,
		ProgressEvery:  50,
	}
}

// Lister fetches a single page. listctl.Remote implementations satisfy it.
type Lister[T any] interface {
	List(ctx context.Context, q listctl.Query) (listctl.PageResult[T], error)
}

// Pages maps page number to the items of that page.
type Pages[T any] map[int][]T

// Items flattens the pages in page order.
func (p Pages[T]) Items() []T {
	nums := make([]int, 0, len(p))
	n := 0
	for num, items := range p {
		nums = append(nums, num)
		n += len(items)
	}
	sort.Ints(nums)

	out := make([]T, 0, n)
	for _, num := range nums {
		out = append(out, p[num]...)
	}
	return out
}

// BatchFetcher handles parallel fetching of every page of a collection
type BatchFetcher[T any] struct {
	lister Lister[T]
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](lister Lister[T], config Config) *BatchFetcher[T] {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchFetcher[T]{
		lister: lister,
		config: config,
	}
}

// FetchAll returns every item matching the filters and search term of q.
// The page fields of q are ignored. On error the items of the pages fetched
// so far are returned with it.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, q listctl.Query) ([]T, error) {
	pages, err := bf.FetchPages(ctx, q)
	return pages.Items(), err
}

// FetchPages fetches all pages in parallel and returns them keyed by page number.
func (bf *BatchFetcher[T]) FetchPages(ctx context.Context, q listctl.Query) (Pages[T], error) {
	start := time.Now()
	base := q.Clone()
	base.PageSize = bf.config.PageSize

	first, err := bf.fetch(ctx, base.WithPage(1))
	if err != nil {
		return Pages[T]{}, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages := listctl.TotalPages(first.TotalCount, base.PageSize)
	results := Pages[T]{1: first.Items}

	log.Info().
		Int("total_count", first.TotalCount).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	// Single page optimization
	if totalPages == 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	var mu sync.Mutex
	fetched := 1

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result, err := bf.fetch(gctx, base.WithPage(page))
			if err != nil {
				log.Warn().
					Err(err).
					Int("page", page).
					Msg("Page fetch failed")
				return fmt.Errorf("page %d: %w", page, err)
			}

			// A clamped page means the collection shrank; its items belong to
			// another page number and would be duplicated.
			if result.Page != page {
				log.Debug().
					Int("requested", page).
					Int("returned", result.Page).
					Msg("Dropping clamped page")
				return nil
			}

			mu.Lock()
			results[page] = result.Items
			fetched++
			n := fetched
			mu.Unlock()

			if bf.config.ProgressEvery > 0 && n%bf.config.ProgressEvery == 0 {
				log.Info().
					Int("fetched", n).
					Int("total", totalPages).
					Float64("progress_pct", float64(n)/float64(totalPages)*100).
					Msg("Fetch progress")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, fmt.Errorf("worker error (partial data: %d/%d pages): %w", len(results), totalPages, err)
	}

	log.Info().
		Int("pages", len(results)).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

func (bf *BatchFetcher[T]) fetch(ctx context.Context, q listctl.Query) (listctl.PageResult[T], error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.lister.List(pageCtx, q)
}
