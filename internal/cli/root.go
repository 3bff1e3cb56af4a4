// Package cli implements the crmctl command line: session commands, paged
// lists with filters and search, guarded deletes, exports and a dashboard
// summary of the CRM collections.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/crm-admin-client/pkg/auth"
	"github.com/Sternrassler/crm-admin-client/pkg/metrics"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Option customizes the root command.
type Option func(*env)

// WithSessionStore replaces the configured session store.
func WithSessionStore(s auth.Store) Option {
	return func(e *env) { e.store = s }
}

// env is the state shared by the commands of one invocation.
type env struct {
	app   *App
	store auth.Store

	configFile  string
	jsonOutput  bool
	showMetrics bool
}

// NewRootCommand builds the crmctl command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	root, _ := newRoot(opts...)
	return root
}

func newRoot(opts ...Option) (*cobra.Command, *env) {
	e := &env{}
	for _, opt := range opts {
		opt(e)
	}

	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "crmctl manages leads, sellers and appointments of the CRM",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), e.configFile)
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg, e.store, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			e.app = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.showMetrics {
				return printMetrics(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.configFile, "config", "", "config file (default: ./crmctl.yaml or <user config dir>/crmctl/crmctl.yaml)")
	pf.String("base-url", "", "CRM API base URL")
	pf.Duration("timeout", 0, "timeout per HTTP attempt")
	pf.String("redis", "", "Redis address for the shared cache and rate limit state")
	pf.String("log-level", "", "log level (debug, info, warn, error, off)")
	pf.Bool("pretty", false, "human-readable logs")
	pf.Int("page-size", 0, "items per page")
	pf.String("session", "", "session store (file, redis, memory)")
	pf.String("profile", "", "session profile name for the redis store")
	pf.BoolVar(&e.jsonOutput, "json", false, "output as JSON")
	pf.BoolVar(&e.showMetrics, "metrics", false, "print request and cache metrics to stderr on exit")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newLeadsCmd(e),
		newSellersCmd(e),
		newAppointmentsCmd(e),
		newDashboardCmd(e),
	)
	return root, e
}

// Execute runs crmctl with os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Run executes crmctl with args and returns the exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, opts ...Option) int {
	root, e := newRoot(opts...)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer func() {
		if e.app != nil {
			e.app.Close()
		}
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		var ue *userError
		if errors.As(err, &ue) {
			return exitUserError
		}
		return exitSysError
	}
	return exitSuccess
}

// userError is a failure caused by input or state the user can fix.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Unwrap() error { return e.err }

func userErrorf(err error, format string, args ...any) error {
	return &userError{msg: fmt.Sprintf(format, args...), err: err}
}

func printMetrics(w io.Writer) error {
	samples, err := metrics.Summary(metrics.Gatherer)
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, s := range samples {
		fmt.Fprintf(w, "%s%v %g\n", s.Name, s.Labels, s.Value)
	}
	return nil
}
