// Package listctl provides a paginated, filterable list controller for a
// remote collection that tolerates out-of-order responses.
//
// A Controller owns one page of a collection (leads, sellers, appointments)
// and the query that produced it. Every fetch takes a token from a counter
// that only grows; a response whose token is no longer the latest is
// dropped without touching state, success or failure alike.
//
// Example usage:
//
//	ctl, err := listctl.New[crm.Lead, int64](leads, listctl.DefaultConfig("leads"))
//	if err != nil {
//		return err
//	}
//	defer ctl.Close()
//
//	ctl.Load(ctx)
//	ctl.SetFilter(ctx, "status", "NEW")  // immediate, back to page 1
//	ctl.SetSearchTerm("ana")             // fetched after 300ms of quiet
//	ctl.GoToPage(ctx, 2)                 // ignored while a fetch is in flight
//
//	s := ctl.State()
//	fmt.Printf("showing %d-%d of %d\n", s.ShowingFrom, s.ShowingTo, s.TotalCount)
//
// Deleting goes through an explicit confirmation step:
//
//	ctl.RequestDelete(id)   // pending confirmation
//	ctl.ConfirmDelete(ctx)  // Deleting is true until the call returns
//
// CancelDelete is ignored while the delete call is in flight.
//
// Deleting the last item of a trailing page does not navigate back; the
// re-fetch shows the emptied page at the same index.
package listctl
