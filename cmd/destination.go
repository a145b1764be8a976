package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/primedictation-export/internal/domain"
)

func newDestinationCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destination",
		Short: "Choose where recordings are exported",
	}

	cmd.AddCommand(
		newDestinationUseCmd(app),
		newDestinationShowCmd(app),
		newDestinationListCmd(app),
	)

	return cmd
}

func newDestinationUseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <dropbox|gdrive|onedrive|email|none>",
		Short: "Select the export destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}
			selector, err := app.selector(cmd.Context())
			if err != nil {
				return err
			}
			if err := selector.Use(cmd.Context(), provider); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "destination: %s\n", destinationLabel(provider))
			return err
		},
	}
}

func newDestinationShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the selected destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selector, err := app.selector(cmd.Context())
			if err != nil {
				return err
			}
			provider, err := selector.Selected(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "destination: %s\n", destinationLabel(provider))
			return err
		},
	}
}

func newDestinationListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selector, err := app.selector(cmd.Context())
			if err != nil {
				return err
			}
			selected, err := selector.Selected(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			providers := selector.Providers()
			if len(providers) == 0 {
				_, err = fmt.Fprintln(out, "No destinations configured.")
				return err
			}
			for _, provider := range providers {
				marker := "  "
				if provider == selected {
					marker = "* "
				}
				if _, err := fmt.Fprintf(out, "%s%-9s %s\n", marker, provider, provider.DisplayName()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func destinationLabel(provider domain.Provider) string {
	if provider == "" || provider == domain.ProviderNone {
		return "none"
	}
	return provider.DisplayName()
}
