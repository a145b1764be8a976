package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/primedictation-export/internal/adapters/recording"
	"github.com/bnema/primedictation-export/internal/application"
	"github.com/bnema/primedictation-export/internal/domain"
)

type exportOptions struct {
	to             string
	transcriptPath string
	name           string
	email          string
	folderID       string
	noTranscript   bool
	transcribe     bool
}

func newExportCmd(app *app) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <audio-file>",
		Short: "Export a recording to the selected destination",
		Long: "Export a recording, and its transcript when one sits next to it, to the selected destination.\n" +
			"The upload keeps running in the background of the command; its outcome is reported once it finishes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, app, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.to, "to", "", "Destination for this export only (dropbox, gdrive, onedrive or email)")
	cmd.Flags().StringVar(&opts.transcriptPath, "transcript", "", "Transcript file (default: <audio>.txt next to the audio)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Exported base file name (default: the audio file name)")
	cmd.Flags().StringVar(&opts.email, "email", "", "Recipient address for email exports")
	cmd.Flags().StringVar(&opts.folderID, "folder-id", "", "Folder id overriding the saved cloud folder")
	cmd.Flags().BoolVar(&opts.noTranscript, "no-transcript", false, "Do not upload the transcript")
	cmd.Flags().BoolVar(&opts.transcribe, "transcribe", false, "Produce a transcript first when none exists")

	return cmd
}

func runExport(cmd *cobra.Command, app *app, audioPath string, opts exportOptions) error {
	ctx := cmd.Context()

	provider, err := domain.ParseProvider(opts.to)
	if err != nil {
		return err
	}

	source, err := recording.Open(audioPath, opts.transcriptPath, opts.name)
	if err != nil {
		return err
	}

	if opts.transcribe && !opts.noTranscript && !source.HasTranscription() {
		service, err := app.transcription()
		if err != nil {
			return err
		}
		err = runWithSpinner(ctx, cmd.ErrOrStderr(), "Transcribing "+source.BaseFileName()+"...", func(ctx context.Context) error {
			_, _, err := service.Transcribe(ctx, source)
			return err
		})
		if err != nil {
			return err
		}
	}

	job := application.JobFromRecording(provider, source, !opts.noTranscript)
	job.ToEmail = opts.email
	job.DestinationFolderID = opts.folderID

	selector, err := app.selector(ctx)
	if err != nil {
		return err
	}

	// Alerts are held until the upload is over so they print after the
	// spinner is cleared.
	if err := app.lifecycle.EnterBackground(ctx); err != nil {
		app.log.Warn(ctx, "flush settings before export", "error", err)
	}

	var result domain.ExportResult
	err = runWithSpinner(ctx, cmd.ErrOrStderr(), "Exporting "+job.FileBaseName+"...", func(ctx context.Context) error {
		result = <-selector.Dispatch(ctx, job)
		return nil
	})
	if foregroundErr := app.lifecycle.EnterForeground(ctx); foregroundErr != nil {
		app.log.Warn(ctx, "deliver export alerts", "error", foregroundErr)
	}
	if err != nil {
		return err
	}

	if result.Status == domain.ExportStatusFailed {
		return fmt.Errorf("%s: %w", job.FileBaseName, errExportFailed)
	}
	return nil
}
