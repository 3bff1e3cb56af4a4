// Package pagination walks every page of a paginated collection in parallel.
//
// The first page is fetched alone to learn the total count. The remaining
// pages are spread over a bounded pool of workers and reassembled in page
// order.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher[crm.Lead](crm.Leads(api), config)
//	leads, err := fetcher.FetchAll(ctx, listctl.Query{Filters: map[string]string{"status": "WON"}})
//
// The batch fetcher:
//   - Fetches the first page to determine the total page count
//   - Fetches the remaining pages with at most MaxConcurrency requests in flight
//   - Drops pages the server clamped (the collection shrank mid-walk)
//   - Returns the pages collected so far together with the first error
package pagination
