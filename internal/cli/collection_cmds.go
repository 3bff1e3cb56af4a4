package cli

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/crm"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/Sternrassler/crm-admin-client/pkg/pagination"
	"github.com/spf13/cobra"
)

// column renders one table or CSV column.
type column[T any] struct {
	header string
	value  func(T) string
}

// collectionDef describes how a CRM collection is shown on the command line.
type collectionDef[T any] struct {
	use      string
	singular string
	bind     func(*client.Client) *crm.Collection[T]
	columns  []column[T]
}

func newCollectionCmd[T any](e *env, def collectionDef[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.use,
		Short: fmt.Sprintf("List, export and delete %s", def.use),
	}
	cmd.AddCommand(
		newListCmd(e, def),
		newDeleteCmd(e, def),
		newExportCmd(e, def),
	)
	return cmd
}

func newListCmd[T any](e *env, def collectionDef[T]) *cobra.Command {
	var (
		page     int
		search   string
		filterKV []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Show one page of %s", def.use),
		Example: fmt.Sprintf(`  crmctl %[1]s list
  crmctl %[1]s list --page 3 --page-size 50
  crmctl %[1]s list --search ana --filter status=NEW`, def.use),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilters(filterKV)
			if err != nil {
				return err
			}

			coll := def.bind(e.app.API)
			cfg := listctl.DefaultConfig(coll.Name())
			cfg.PageSize = e.app.Config.PageSize
			cfg.Debounce = e.app.Config.Debounce
			cfg.Filters = filters
			cfg.SearchTerm = search

			ctrl, err := coll.Controller(cfg)
			if err != nil {
				return userErrorf(err, "%v", err)
			}
			defer ctrl.Close()

			if page < 1 {
				page = 1
			}
			ctrl.Fetch(cmd.Context(), listctl.Query{
				Page:       page,
				PageSize:   cfg.PageSize,
				Filters:    filters,
				SearchTerm: search,
			})

			state := ctrl.State()
			if err := stateError(state.Err); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if e.jsonOutput {
				return writeJSON(out, map[string]any{
					"items":      state.Items,
					"totalCount": state.TotalCount,
					"page":       state.DisplayPage,
					"totalPages": state.TotalPages,
				})
			}
			return printPage(out, def, state)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number (1-indexed)")
	cmd.Flags().StringVar(&search, "search", "", "free-text search")
	cmd.Flags().StringArrayVar(&filterKV, "filter", nil, "filter as name=value, repeatable")
	return cmd
}

func newDeleteCmd[T any](e *env, def collectionDef[T]) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: fmt.Sprintf("Delete a %s after confirmation", def.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return userErrorf(err, "invalid %s id %q", def.singular, args[0])
			}

			coll := def.bind(e.app.API)
			cfg := listctl.DefaultConfig(coll.Name())
			cfg.PageSize = e.app.Config.PageSize
			ctrl, err := coll.Controller(cfg)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			if err := ctrl.RequestDelete(id); err != nil {
				return err
			}

			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %s %d? [y/N]: ", def.singular, id))
				if err != nil {
					return err
				}
				if !ok {
					ctrl.CancelDelete()
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}

			if err := ctrl.ConfirmDelete(cmd.Context()); err != nil {
				if client.IsNotFound(err) {
					return userErrorf(err, "%s %d not found", def.singular, id)
				}
				if f := ctrl.State().Err; f != nil {
					return fmt.Errorf("%s: %w", f.Message, err)
				}
				return err
			}

			state := ctrl.State()
			if e.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"deleted":   id,
					"remaining": state.TotalCount,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %d (%d remaining)\n", def.singular, id, state.TotalCount)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newExportCmd[T any](e *env, def collectionDef[T]) *cobra.Command {
	var (
		format      string
		search      string
		filterKV    []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: fmt.Sprintf("Write every matching %s as JSON or CSV", def.singular),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return userErrorf(nil, "unknown format %q (want json or csv)", format)
			}
			filters, err := parseFilters(filterKV)
			if err != nil {
				return err
			}

			coll := def.bind(e.app.API)
			if err := coll.Filters().ValidateAll(filters); err != nil {
				return userErrorf(err, "%v", err)
			}

			pcfg := pagination.DefaultConfig()
			if concurrency > 0 {
				pcfg.MaxConcurrency = concurrency
			}
			fetcher := pagination.NewBatchFetcher[T](coll, pcfg)

			items, err := fetcher.FetchAll(cmd.Context(), listctl.Query{Filters: filters, SearchTerm: search})
			if err != nil {
				kind := listctl.Classify(err)
				return fmt.Errorf("%s: %w", listctl.DefaultMessages().For(kind), err)
			}

			out := cmd.OutOrStdout()
			if format == "csv" {
				return writeCSV(out, def.columns, items)
			}
			return writeJSON(out, items)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json, csv)")
	cmd.Flags().StringVar(&search, "search", "", "free-text search")
	cmd.Flags().StringArrayVar(&filterKV, "filter", nil, "filter as name=value, repeatable")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel page requests (default 4)")
	return cmd
}

// parseFilters turns name=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, userErrorf(nil, "invalid filter %q (want name=value)", p)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// stateError converts a controller failure into a command error.
func stateError(f *listctl.Failure) error {
	if f == nil {
		return nil
	}
	if f.Kind == listctl.KindValidation {
		return userErrorf(listctl.ErrValidation, "%s", f.Message)
	}
	return errors.New(f.Message)
}

func printPage[T any](w io.Writer, def collectionDef[T], state listctl.State[T, int64]) error {
	if len(state.Items) == 0 {
		_, err := fmt.Fprintln(w, state.EmptyMessage)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(def.columns))
	for i, c := range def.columns {
		headers[i] = c.header
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, item := range state.Items {
		cells := make([]string, len(def.columns))
		for i, c := range def.columns {
			cells[i] = truncate(c.value(item), 40)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Showing %d-%d of %d (page %d of %d)\n",
		state.ShowingFrom, state.ShowingTo, state.TotalCount, state.DisplayPage, state.TotalPages)
	return err
}

func writeCSV[T any](w io.Writer, columns []column[T], items []T) error {
	cw := csv.NewWriter(w)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToLower(c.header)
	}
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, item := range items {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = c.value(item)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, prompt io.Writer, question string) (bool, error) {
	fmt.Fprint(prompt, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
