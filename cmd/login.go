package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	authadapter "github.com/bnema/primedictation-export/internal/adapters/auth"
	"github.com/bnema/primedictation-export/internal/domain"
)

const loginArgsHelp = "dropbox, gdrive, onedrive or identity (the email sign-in)"

func newLoginCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a provider",
	}

	cmd.PersistentFlags().BoolVar(&app.prompter.qr, "qr", false, "Also print the sign-in link as a QR code")
	cmd.AddCommand(newLoginBrowserCmd(app), newLoginDeviceCmd(app))

	return cmd
}

func newLoginBrowserCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browser <provider>",
		Short: "Sign in through the browser with a local callback",
		Long:  "Sign in through the browser with a local callback. provider is " + loginArgsHelp + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, app, args[0], false)
		},
	}
}

func newLoginDeviceCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "device <provider>",
		Short: "Sign in with a device code entered on another screen",
		Long:  "Sign in with a device code entered on another screen. provider is " + loginArgsHelp + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, app, args[0], true)
		},
	}
}

func runLogin(cmd *cobra.Command, app *app, name string, device bool) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == authadapter.IdentityProvider {
		session, err := app.session(name, device)
		if err != nil {
			return err
		}
		signedIn, err := session.Authorize(cmd.Context(), true)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in for email export as %s\n", accountLabel(signedIn.AccountID))
		return err
	}

	provider, err := parseCloudProvider(name)
	if err != nil {
		return err
	}
	destination, err := app.destination(provider, device)
	if err != nil {
		return err
	}

	signedIn, outcome, err := destination.EnsureAuthorized(cmd.Context(), true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outcome {
	case domain.AuthOutcomeCancelled:
		_, err = fmt.Fprintf(out, "Sign-in to %s cancelled\n", provider.DisplayName())
	case domain.AuthOutcomeAlreadyAuthenticated:
		_, err = fmt.Fprintf(out, "Already signed in to %s as %s\n", provider.DisplayName(), accountLabel(signedIn.AccountID))
	default:
		_, err = fmt.Fprintf(out, "Signed in to %s as %s\n", provider.DisplayName(), accountLabel(signedIn.AccountID))
	}
	return err
}

func newLogoutCmd(app *app) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "logout <provider>",
		Short: "Sign out of a provider",
		Long:  "Sign out of a provider. provider is " + loginArgsHelp + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			if name == authadapter.IdentityProvider {
				session, err := app.session(name, false)
				if err != nil {
					return err
				}
				if err := session.SignOut(cmd.Context(), revoke); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed out of email export")
				return err
			}

			provider, err := parseCloudProvider(name)
			if err != nil {
				return err
			}
			destination, err := app.destination(provider, false)
			if err != nil {
				return err
			}

			policy := domain.SignOutAppOnly
			if revoke {
				policy = domain.SignOutRevoke
			}
			if err := destination.SignOut(cmd.Context(), policy); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed out of %s\n", provider.DisplayName())
			return err
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "Also revoke the tokens at the provider")

	return cmd
}

func parseCloudProvider(raw string) (domain.Provider, error) {
	provider, err := domain.ParseProvider(raw)
	if err != nil {
		return "", err
	}
	if !provider.IsCloud() {
		return "", fmt.Errorf("%q: %w", raw, domain.ErrNotCloudBacked)
	}
	return provider, nil
}

func accountLabel(accountID string) string {
	if accountID == "" {
		return "unknown account"
	}
	return accountID
}
