package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/primedictation-export/internal/adapters/recording"
)

func newTranscribeCmd(app *app) *cobra.Command {
	var (
		name      string
		printText bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Write the transcript of a recording next to its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := recording.Open(args[0], "", name)
			if err != nil {
				return err
			}
			service, err := app.transcription()
			if err != nil {
				return err
			}

			var path, text string
			err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Transcribing "+source.BaseFileName()+"...", func(ctx context.Context) error {
				var err error
				path, text, err = service.Transcribe(ctx, source)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printText {
				_, err = fmt.Fprintln(out, text)
				return err
			}
			_, err = fmt.Fprintf(out, "transcript: %s\n", path)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Base name used for the remote transcript (default: the audio file name)")
	cmd.Flags().BoolVar(&printText, "print", false, "Print the transcript text instead of its path")

	return cmd
}
