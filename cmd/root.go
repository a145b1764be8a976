package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pdx",
		Short:         "Prime Dictation export (pdx): send recordings to cloud storage or email",
		Long:          "pdx exports Prime Dictation recordings and their transcripts to Dropbox, Google Drive, OneDrive or email, and manages the sign-in and destination folder of each provider.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.out = cmd.OutOrStdout()
		app.prompter.out = cmd.ErrOrStderr()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newDestinationCmd(app),
		newFoldersCmd(app),
		newExportCmd(app),
		newTranscribeCmd(app),
		newStatusCmd(app),
		newHistoryCmd(app),
		newSignerCmd(app),
	)
	withLifecycle(rootCmd, app)

	return rootCmd
}

// withLifecycle runs the terminate hooks after every command, failed ones
// included, so pending settings writes are flushed.
func withLifecycle(cmd *cobra.Command, app *app) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				err = errors.Join(err, app.lifecycle.Terminate(context.WithoutCancel(cmd.Context())))
			}()
			return run(cmd, args)
		}
	}
	for _, child := range cmd.Commands() {
		withLifecycle(child, app)
	}
}
