package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/auth"
	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/spf13/cobra"
)

func newLoginCmd(e *env) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Login exchanges email and password for a session token and stores it
in the configured session store.

Example:
  crmctl login --email ana@crm.local --password-stdin < pw.txt
  CRM_PASSWORD=... crmctl login --email ana@crm.local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			session, err := e.app.Auth.Login(cmd.Context(), email, password)
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				return userErrorf(err, "invalid email or password")
			case errors.Is(err, listctl.ErrValidation):
				return userErrorf(err, "email and password are required")
			case err != nil:
				return fmt.Errorf("login: %w", err)
			}

			if e.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user":      session.User,
					"expiresAt": session.ExpiresAt,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", describeUser(session.User))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer --password-stdin or CRM_PASSWORD)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if password == "" && !passwordStdin {
			password = os.Getenv("CRM_PASSWORD")
		}
	}
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, _ := e.app.Auth.Current(ctx)

			if err := e.app.Auth.Logout(ctx); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			if session != nil {
				e.app.API.ForgetSession(ctx, session.Token)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long: `Whoami checks the stored session against the API and prints the user
it belongs to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := e.app.Auth.Current(ctx)
			switch {
			case errors.Is(err, auth.ErrNoSession):
				return userErrorf(err, "not logged in")
			case errors.Is(err, auth.ErrSessionExpired):
				return userErrorf(err, "session expired, run crmctl login")
			case err != nil:
				return err
			}

			var user auth.User
			if err := e.app.API.Send(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
				if client.IsUnauthorized(err) {
					return userErrorf(err, "session rejected by the server, run crmctl login")
				}
				return fmt.Errorf("whoami: %w", err)
			}

			if e.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user":      user,
					"expiresAt": session.ExpiresAt,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, describeUser(user))
			if !session.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Session expires in %s\n", session.TTL(time.Now()).Round(time.Minute))
			}
			return nil
		},
	}
}

func describeUser(u auth.User) string {
	s := u.Email
	if u.Name != "" {
		s = fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	if u.Role != "" {
		s += " (" + u.Role + ")"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
