package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/crm"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// tile is one dashboard figure: the total count of a filtered collection.
type tile struct {
	Label string `json:"label"`
	Count int    `json:"count"`

	count func(ctx context.Context) (int, error)
}

func countOf[T any](coll *crm.Collection[T], filters map[string]string) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		page, err := coll.List(ctx, listctl.Query{Page: 1, PageSize: 1, Filters: filters})
		if err != nil {
			return 0, fmt.Errorf("%s: %w", coll.Name(), err)
		}
		return page.TotalCount, nil
	}
}

func newDashboardCmd(e *env) *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize leads, sellers and today's appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if day == "" {
				day = crm.FormatDate(time.Now())
			}
			if err := crm.AppointmentFilters.Validate(crm.FilterDate, day); err != nil {
				return userErrorf(err, "%v", err)
			}

			leads := crm.Leads(e.app.API)
			sellers := crm.Sellers(e.app.API)
			appts := crm.Appointments(e.app.API)

			tiles := []*tile{
				{Label: "Leads", count: countOf(leads, nil)},
				{Label: "New leads", count: countOf(leads, map[string]string{crm.FilterStatus: string(crm.LeadNew)})},
				{Label: "Won leads", count: countOf(leads, map[string]string{crm.FilterStatus: string(crm.LeadWon)})},
				{Label: "Active sellers", count: countOf(sellers, map[string]string{crm.FilterActive: "true"})},
				{Label: "Appointments " + day, count: countOf(appts, map[string]string{crm.FilterDate: day})},
				{Label: "No-shows " + day, count: countOf(appts, map[string]string{
					crm.FilterDate:   day,
					crm.FilterStatus: string(crm.AppointmentNoShow),
				})},
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, t := range tiles {
				g.Go(func() error {
					n, err := t.count(ctx)
					t.Count = n
					return err
				})
			}
			if err := g.Wait(); err != nil {
				kind := listctl.Classify(err)
				return fmt.Errorf("%s: %w", listctl.DefaultMessages().For(kind), err)
			}

			out := cmd.OutOrStdout()
			if e.jsonOutput {
				return writeJSON(out, tiles)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, t := range tiles {
				fmt.Fprintf(tw, "%s\t%d\n", t.Label, t.Count)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&day, "date", "", "day for the appointment figures (default today, "+crm.DateLayout+")")
	return cmd
}
