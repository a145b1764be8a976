package application

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

// Exporter runs one export job end to end.
type Exporter interface {
	Export(ctx context.Context, job domain.ExportJob) (domain.ExportResult, error)
}

type DestinationOptions struct {
	Uploader UploaderOptions
	Cache    SubfolderCacheOptions
	Clock    ports.Clock
	Logger   logging.Logger
}

// Destination is one cloud provider behind the shared auth, picker,
// selection and upload logic. Provider differences live in the profile and
// in the CloudProvider implementation.
type Destination struct {
	profile  domain.ProviderProfile
	provider ports.CloudProvider
	session  *SessionController
	store    *SelectionStore
	resolver *SelectionResolver
	cache    *SubfolderCache
	uploader *Uploader
	clock    ports.Clock
	log      logging.Logger
}

var _ Exporter = (*Destination)(nil)

func NewDestination(profile domain.ProviderProfile, provider ports.CloudProvider, authorizer ports.Authorizer, settings ports.KeyValueStore, opts DestinationOptions) *Destination {
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Uploader.Logger == nil {
		opts.Uploader.Logger = opts.Logger
	}
	if opts.Cache.Logger == nil {
		opts.Cache.Logger = opts.Logger
	}

	store := NewSelectionStore(settings, profile.SelectionKey)
	return &Destination{
		profile:  profile,
		provider: provider,
		session:  NewSessionController(profile.Provider, authorizer, opts.Logger),
		store:    store,
		resolver: NewSelectionResolver(profile, store, provider, opts.Logger),
		cache:    NewSubfolderCache(provider, opts.Cache),
		uploader: NewUploader(provider, opts.Uploader),
		clock:    opts.Clock,
		log:      opts.Logger.With("provider", string(profile.Provider)),
	}
}

func (d *Destination) Provider() domain.Provider {
	return d.profile.Provider
}

func (d *Destination) Profile() domain.ProviderProfile {
	return d.profile
}

func (d *Destination) Store() *SelectionStore {
	return d.store
}

func (d *Destination) EnsureAuthorized(ctx context.Context, interactive bool) (domain.Session, domain.AuthOutcome, error) {
	return d.session.EnsureAuthorized(ctx, interactive)
}

// SignOut ends the session and, for providers that do not keep it, clears
// the saved folder.
func (d *Destination) SignOut(ctx context.Context, policy domain.SignOutPolicy) error {
	if err := d.session.SignOut(ctx, policy); err != nil {
		return err
	}
	if d.profile.KeepSelectionOnSignOut {
		return nil
	}
	return d.store.Clear(ctx)
}

// Selection returns the saved folder without touching the network. The
// root is reported when nothing is saved.
func (d *Destination) Selection(ctx context.Context) (domain.FolderSelection, error) {
	selection, ok, err := d.store.Load(ctx)
	if err != nil {
		return domain.FolderSelection{}, err
	}
	if !ok {
		return d.profile.RootSelection(d.session.AccountID()), nil
	}
	return selection, nil
}

// Select saves selection as the destination of the signed-in account.
// Saving the same folder twice stores the same record.
func (d *Destination) Select(ctx context.Context, selection domain.FolderSelection) error {
	if selection.OwnerAccountID == "" {
		selection.OwnerAccountID = d.session.AccountID()
	}
	if d.profile.IsRoot(selection) {
		selection = d.profile.RootSelection(selection.OwnerAccountID)
	}
	return d.store.Save(ctx, selection)
}

// SelectPath looks folderPath up and saves it.
func (d *Destination) SelectPath(ctx context.Context, folderPath string) (domain.FolderSelection, error) {
	if err := d.requireSession(ctx); err != nil {
		return domain.FolderSelection{}, err
	}

	trimmed := strings.Trim(strings.TrimSpace(folderPath), "/")
	if trimmed == "" {
		selection := d.profile.RootSelection(d.session.AccountID())
		return selection, d.Select(ctx, selection)
	}

	node, err := d.provider.GetFolder(ctx, domain.FolderRef{Path: "/" + trimmed})
	if err != nil {
		return domain.FolderSelection{}, fmt.Errorf("look up folder %q: %w", folderPath, err)
	}
	selection := node.Selection(d.session.AccountID())
	return selection, d.Select(ctx, selection)
}

// ListFolders returns one listing page without picker state.
func (d *Destination) ListFolders(ctx context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error) {
	if err := d.requireSession(ctx); err != nil {
		return domain.FolderPage{}, err
	}
	if parent.ID == "" && parent.Path == "" {
		parent = d.profile.RootNode().Ref()
	}
	return d.provider.ListFolders(ctx, parent, cursor)
}

// NewPicker opens a picker session for the signed-in account.
func (d *Destination) NewPicker(ctx context.Context) (*Picker, error) {
	if err := d.requireSession(ctx); err != nil {
		return nil, err
	}
	current, err := d.Selection(ctx)
	if err != nil {
		return nil, err
	}
	picker := NewPicker(d.profile, d.provider, d.cache, d.session.AccountID(), current, d.log)
	if err := picker.Start(ctx); err != nil {
		return nil, err
	}
	return picker, nil
}

// Export signs in if needed, resolves the folder and uploads the audio and,
// when requested, the transcript. A transcript failure after a successful
// audio upload yields a partial result.
func (d *Destination) Export(ctx context.Context, job domain.ExportJob) (domain.ExportResult, error) {
	result := domain.ExportResult{Job: job, StartedAt: d.clock.Now()}
	finish := func(status domain.ExportStatus, err error) (domain.ExportResult, error) {
		result.Status = status
		result.FinishedAt = d.clock.Now()
		return result, err
	}

	session, outcome, err := d.session.EnsureAuthorized(ctx, true)
	if err != nil {
		return finish(domain.ExportStatusFailed, err)
	}
	if outcome == domain.AuthOutcomeCancelled {
		return finish(domain.ExportStatusCancelled, nil)
	}

	folder, err := d.destinationFor(ctx, job, session.AccountID)
	if err != nil {
		return finish(domain.ExportStatusFailed, err)
	}
	result.Destination = folder
	result.Job.DestinationFolderID = folder.FolderID

	audioName := job.FileBaseName + filepath.Ext(job.AudioPath)
	audio, err := d.uploader.Upload(ctx, folder, job.AudioPath, audioName, ContentTypeFor(audioName))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return finish(domain.ExportStatusCancelled, nil)
		}
		return finish(domain.ExportStatusFailed, fmt.Errorf("upload recording: %w", err))
	}
	result.Audio = &audio
	d.log.Info(ctx, "recording uploaded", "file", audio.Name, "folder", folder.Display(d.profile))

	if !job.IncludeTranscript || job.TranscriptPath == "" {
		return finish(domain.ExportStatusSucceeded, nil)
	}

	transcriptName := job.FileBaseName + ".txt"
	transcript, err := d.uploader.Upload(ctx, folder, job.TranscriptPath, transcriptName, ContentTypeFor(transcriptName))
	if err != nil {
		d.log.Warn(ctx, "transcript upload failed after recording upload", "error", err)
		return finish(domain.ExportStatusPartial, fmt.Errorf("%w: %w", domain.ErrTranscriptUploadFailed, err))
	}
	result.Transcript = &transcript
	return finish(domain.ExportStatusSucceeded, nil)
}

func (d *Destination) destinationFor(ctx context.Context, job domain.ExportJob, accountID string) (domain.FolderSelection, error) {
	if job.DestinationFolderID == "" {
		return d.resolver.ResolveOrDefault(ctx, accountID)
	}
	if job.DestinationFolderID == d.profile.RootID {
		return d.profile.RootSelection(accountID), nil
	}
	node, err := d.provider.GetFolder(ctx, domain.FolderRef{ID: job.DestinationFolderID})
	switch {
	case errors.Is(err, domain.ErrFolderNotFound):
		d.log.Warn(ctx, "requested folder is gone; uploading to root", "folder", job.DestinationFolderID)
		return d.profile.RootSelection(accountID), nil
	case err != nil:
		return domain.FolderSelection{}, fmt.Errorf("look up folder %q: %w", job.DestinationFolderID, err)
	}
	return node.Selection(accountID), nil
}

// requireSession signs in silently; commands that browse folders need an
// existing session.
func (d *Destination) requireSession(ctx context.Context) error {
	_, _, err := d.session.EnsureAuthorized(ctx, false)
	return err
}

// ContentTypeFor guesses the upload content type of name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if guessed := mime.TypeByExtension(filepath.Ext(name)); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

// JobFromRecording builds an export job for a local recording.
func JobFromRecording(provider domain.Provider, recording ports.RecordingSource, includeTranscript bool) domain.ExportJob {
	job := domain.ExportJob{
		Provider:     provider,
		AudioPath:    recording.AudioFilePath(),
		FileBaseName: recording.BaseFileName(),
	}
	if transcript, ok := recording.TranscriptFilePath(); ok && recording.HasTranscription() {
		job.TranscriptPath = transcript
		job.IncludeTranscript = includeTranscript
	}
	return job
}
