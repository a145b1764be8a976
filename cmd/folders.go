package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bnema/primedictation-export/internal/application"
	"github.com/bnema/primedictation-export/internal/domain"
)

var errNoTerminal = errors.New("folders pick needs an interactive terminal; use folders select <provider> <path>")

func newFoldersCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Browse and choose the destination folder of a cloud provider",
	}

	cmd.AddCommand(
		newFoldersShowCmd(app),
		newFoldersListCmd(app),
		newFoldersSelectCmd(app),
		newFoldersPickCmd(app),
	)

	return cmd
}

func newFoldersShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <provider>",
		Short: "Print the saved destination folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, err := cloudDestination(app, args[0])
			if err != nil {
				return err
			}
			selection, err := destination.Selection(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "folder: %s\n", selection.Display(destination.Profile()))
			return err
		},
	}
}

func newFoldersListCmd(app *app) *cobra.Command {
	var (
		folderPath string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list <provider>",
		Short: "List the subfolders of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, err := signedInDestination(cmd, app, args[0])
			if err != nil {
				return err
			}

			parent := domain.FolderRef{}
			if trimmed := strings.Trim(strings.TrimSpace(folderPath), "/"); trimmed != "" {
				parent.Path = "/" + trimmed
			}

			out := cmd.OutOrStdout()
			listed := 0
			cursor := ""
			for {
				page, err := destination.ListFolders(cmd.Context(), parent, cursor)
				if err != nil {
					return err
				}
				for _, folder := range page.Folders {
					name := folder.Name
					if folder.HasChildren != nil && *folder.HasChildren {
						name += "/"
					}
					if _, err := fmt.Fprintf(out, "%s\t%s\n", name, folder.ID); err != nil {
						return err
					}
					listed++
				}
				if !page.HasMore() || !all {
					if page.HasMore() {
						_, err = fmt.Fprintln(out, "(more folders; pass --all to list them)")
						return err
					}
					break
				}
				cursor = page.NextCursor
			}

			if listed == 0 {
				_, err = fmt.Fprintln(out, "No subfolders.")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&folderPath, "path", "", "Folder to list (default: the provider root)")
	cmd.Flags().BoolVar(&all, "all", false, "Follow pagination to the end")

	return cmd
}

func newFoldersSelectCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "select <provider> <path>",
		Short: "Save a folder, by path, as the destination",
		Long:  "Save a folder, by path, as the destination. Use / for the provider root.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, err := signedInDestination(cmd, app, args[0])
			if err != nil {
				return err
			}
			selection, err := destination.SelectPath(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "folder: %s\n", selection.Display(destination.Profile()))
			return err
		},
	}
}

func newFoldersPickCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pick <provider>",
		Short: "Choose the destination folder interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errNoTerminal
			}

			destination, err := signedInDestination(cmd, app, args[0])
			if err != nil {
				return err
			}
			picker, err := destination.NewPicker(cmd.Context())
			if err != nil {
				return err
			}

			selection, err := runFolderPicker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), picker, destination.Profile())
			if err != nil {
				if errors.Is(err, errPickerAborted) {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "Folder unchanged")
				}
				return err
			}
			if err := destination.Select(cmd.Context(), selection); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "folder: %s\n", selection.Display(destination.Profile()))
			return err
		},
	}
}

func cloudDestination(app *app, name string) (*application.Destination, error) {
	provider, err := parseCloudProvider(name)
	if err != nil {
		return nil, err
	}
	return app.destination(provider, false)
}

// signedInDestination signs in, interactively when needed, before a
// command that talks to the provider.
func signedInDestination(cmd *cobra.Command, app *app, name string) (*application.Destination, error) {
	destination, err := cloudDestination(app, name)
	if err != nil {
		return nil, err
	}
	_, outcome, err := destination.EnsureAuthorized(cmd.Context(), true)
	if err != nil {
		return nil, err
	}
	if outcome == domain.AuthOutcomeCancelled {
		return nil, fmt.Errorf("%s: %w", destination.Provider().DisplayName(), domain.ErrAuthCancelled)
	}
	return destination, nil
}
