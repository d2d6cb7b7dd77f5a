package storectl

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const passwordEnv = "STORECTL_PASSWORD"

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if email == "" {
				email = a.cfg.Email
			}
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return errors.New("email and password are required (--email, --password or " + passwordEnv + ")")
			}

			api, err := a.api(ctx, false)
			if err != nil {
				return err
			}
			res, err := api.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			_, sessions, err := a.local(ctx)
			if err != nil {
				return err
			}
			sess := Session{
				Email:     res.User.Email,
				Token:     res.AccessToken,
				ExpiresAt: time.Now().Add(time.Duration(res.ExpiresIn) * time.Second),
			}
			if err := sessions.Save(ctx, a.cfg.APIURL, sess); err != nil {
				return err
			}

			role := "customer"
			if res.User.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(a.out, "logged in as %s (%s), token valid until %s\n",
				res.User.Email, role, sess.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (defaults to config email)")
	cmd.Flags().StringVar(&password, "password", "", "account password (or "+passwordEnv+")")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, sessions, err := a.local(cmd.Context())
			if err != nil {
				return err
			}
			if err := sessions.Delete(cmd.Context(), a.cfg.APIURL); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}
