package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/primedictation-export/internal/adapters/render/status"
	"github.com/bnema/primedictation-export/internal/application"
)

const defaultRecentExports = 5

func newStatusCmd(app *app) *cobra.Command {
	var (
		asJSON    bool
		recent    int
		fadeAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show destinations, sign-in state and recent exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selector, err := app.selector(cmd.Context())
			if err != nil {
				return err
			}
			status, err := selector.Status(cmd.Context(), recent)
			if err != nil {
				return err
			}
			return writeStatusOutput(cmd, app, status, fadeAfter, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	cmd.Flags().IntVar(&recent, "recent", defaultRecentExports, "Number of recent exports to show")
	cmd.Flags().DurationVar(&fadeAfter, "fade-after", 0, "Age at which history rows are drawn fully faded")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, status application.Status, fadeAfter time.Duration, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{
		Now:       app.now(),
		FadeAfter: fadeAfter,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func newHistoryCmd(app *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past exports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := app.exportHistory(cmd.Context())
			if err != nil {
				return err
			}
			records, err := history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				_, err = fmt.Fprintln(out, "No exports yet.")
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "FINISHED\tSTATUS\tFILE\tDESTINATION\tERROR")
			for _, record := range records {
				destination := record.Provider.DisplayName()
				if record.DestinationName != "" {
					destination += "/" + record.DestinationName
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					record.FinishedAt.Local().Format(time.DateTime),
					record.Status,
					record.FileBaseName,
					destination,
					record.Error,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of exports to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print history as JSON")

	return cmd
}
