package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/bnema/primedictation-export/internal/domain"
)

type destinationFixture struct {
	dest     *Destination
	cloud    *fakeCloud
	auth     *fakeAuthorizer
	settings *memoryStore
	profile  domain.ProviderProfile
}

func newDestinationFixture(t *testing.T, provider domain.Provider) destinationFixture {
	t.Helper()
	profile, err := domain.ProfileFor(provider)
	require.NoError(t, err)

	cloud := newFakeCloud(profile.RootID)
	auth := &fakeAuthorizer{session: domain.Session{AccountID: "acc-1", AccessToken: "tok"}}
	settings := newMemoryStore()
	dest := NewDestination(profile, cloud, auth, settings, DestinationOptions{
		Uploader: UploaderOptions{RetryDelay: time.Millisecond},
		Cache:    SubfolderCacheOptions{Limit: rate.Inf},
	})
	return destinationFixture{dest: dest, cloud: cloud, auth: auth, settings: settings, profile: profile}
}

func writeRecording(t *testing.T, base string, audioSize int, transcript string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	audio := filepath.Join(dir, base+".m4a")
	require.NoError(t, os.WriteFile(audio, make([]byte, audioSize), 0o600))
	if transcript == "" {
		return audio, ""
	}
	text := filepath.Join(dir, base+".txt")
	require.NoError(t, os.WriteFile(text, []byte(transcript), 0o600))
	return audio, text
}

func TestExportSmallFileToSavedDropboxFolder(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderDropbox)
	ctx := context.Background()
	fx.cloud.addFolder(domain.DropboxRootID, "id:abc", "Memos")
	require.NoError(t, fx.dest.Select(ctx, domain.FolderSelection{FolderID: "id:abc", LastKnownPath: "/Memos", OwnerAccountID: "acc-1"}))

	audio, _ := writeRecording(t, "take-1", 10*1024, "")
	result, err := fx.dest.Export(ctx, domain.ExportJob{Provider: domain.ProviderDropbox, AudioPath: audio, FileBaseName: "take-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.ExportStatusSucceeded, result.Status)
	require.Len(t, fx.cloud.small, 1)
	assert.Equal(t, "id:abc/take-1.m4a", uploadPath(fx.cloud.small[0].target))
	assert.Equal(t, "audio/mp4", fx.cloud.small[0].target.ContentType)
	assert.Equal(t, "id:abc", result.Job.DestinationFolderID)
	require.NotNil(t, result.Audio)
	assert.Nil(t, result.Transcript)
}

func TestExportWithTranscriptUploadsBoth(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderGoogleDrive)
	audio, text := writeRecording(t, "memo", 64, "hello")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{
		AudioPath:         audio,
		TranscriptPath:    text,
		FileBaseName:      "memo",
		IncludeTranscript: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExportStatusSucceeded, result.Status)
	require.Len(t, fx.cloud.small, 2)
	assert.Equal(t, "root/memo.txt", uploadPath(fx.cloud.small[1].target))
	assert.Equal(t, "text/plain; charset=utf-8", fx.cloud.small[1].target.ContentType)
	require.NotNil(t, result.Transcript)
}

func TestExportTranscriptFailureIsPartial(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderOneDrive)
	fx.cloud.smallErrs = []error{nil, &domain.StatusError{Op: "upload", StatusCode: 507}}
	audio, text := writeRecording(t, "memo", 64, "hello")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, TranscriptPath: text, FileBaseName: "memo", IncludeTranscript: true})
	require.ErrorIs(t, err, domain.ErrTranscriptUploadFailed)
	assert.Equal(t, domain.ExportStatusPartial, result.Status)
	require.NotNil(t, result.Audio)
	assert.Nil(t, result.Transcript)
}

func TestExportMissingFolderUploadsToRoot(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderDropbox)
	ctx := context.Background()
	require.NoError(t, fx.dest.Select(ctx, domain.FolderSelection{FolderID: "id:gone", OwnerAccountID: "acc-1"}))
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(ctx, domain.ExportJob{AudioPath: audio, FileBaseName: "memo"})
	require.NoError(t, err)
	assert.Equal(t, fx.profile.RootSelection("acc-1"), result.Destination)
	assert.Equal(t, domain.DropboxRootID+"/memo.m4a", uploadPath(fx.cloud.small[0].target))
}

func TestExportCancelledSignIn(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderGoogleDrive)
	fx.auth.silentErr = domain.ErrInteractionRequired
	fx.auth.interactErr = fmt.Errorf("closed: %w", domain.ErrAuthCancelled)
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, FileBaseName: "memo"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExportStatusCancelled, result.Status)
	assert.Empty(t, fx.cloud.small)
}

func TestExportSignInFailure(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderGoogleDrive)
	fx.auth.silentErr = errors.New("token endpoint unreachable")
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, FileBaseName: "memo"})
	require.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Equal(t, domain.ExportStatusFailed, result.Status)
}

func TestExportExplicitFolderOverridesSelection(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderOneDrive)
	fx.cloud.addFolder("root", "f-2", "Other")
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, FileBaseName: "memo", DestinationFolderID: "f-2"})
	require.NoError(t, err)
	assert.Equal(t, "f-2", result.Destination.FolderID)
}

func TestExportMissingExplicitFolderFallsBackToRoot(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderOneDrive)
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, FileBaseName: "memo", DestinationFolderID: "f-deleted"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExportStatusSucceeded, result.Status)
	assert.Equal(t, fx.profile.RootID, result.Destination.FolderID)
	require.Len(t, fx.cloud.small, 1)
	assert.Equal(t, fx.profile.RootID+"/memo.m4a", uploadPath(fx.cloud.small[0].target))
}

func TestExportExplicitFolderLookupFailureFails(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderOneDrive)
	fx.cloud.getErrs["f-2"] = errors.New("graph unavailable")
	audio, _ := writeRecording(t, "memo", 64, "")

	result, err := fx.dest.Export(context.Background(), domain.ExportJob{AudioPath: audio, FileBaseName: "memo", DestinationFolderID: "f-2"})
	require.ErrorContains(t, err, "graph unavailable")
	assert.Equal(t, domain.ExportStatusFailed, result.Status)
	assert.Empty(t, fx.cloud.small)
}

func TestSelectIsIdempotent(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderDropbox)
	ctx := context.Background()
	_, _, err := fx.dest.EnsureAuthorized(ctx, false)
	require.NoError(t, err)

	selection := domain.FolderSelection{FolderID: "id:abc", LastKnownPath: "/Memos", DisplayName: "Memos"}
	require.NoError(t, fx.dest.Select(ctx, selection))
	first := fx.settings.raw(fx.profile.SelectionKey)
	require.NoError(t, fx.dest.Select(ctx, selection))
	assert.Equal(t, first, fx.settings.raw(fx.profile.SelectionKey))

	saved, err := fx.dest.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", saved.OwnerAccountID)
}

func TestSelectPathLooksUpFolder(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderOneDrive)
	fx.cloud.addFolder("root", "f-1", "Work")
	ctx := context.Background()

	selection, err := fx.dest.SelectPath(ctx, "work/")
	require.NoError(t, err)
	assert.Equal(t, "f-1", selection.FolderID)

	root, err := fx.dest.SelectPath(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, fx.profile.RootSelection("acc-1"), root)

	_, err = fx.dest.SelectPath(ctx, "/missing")
	require.ErrorIs(t, err, domain.ErrFolderNotFound)
}

func TestSignOutSelectionPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider domain.Provider
		keeps    bool
	}{
		{provider: domain.ProviderDropbox, keeps: true},
		{provider: domain.ProviderGoogleDrive, keeps: false},
		{provider: domain.ProviderOneDrive, keeps: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			t.Parallel()

			fx := newDestinationFixture(t, tt.provider)
			ctx := context.Background()
			require.NoError(t, fx.dest.Select(ctx, domain.FolderSelection{FolderID: "f", OwnerAccountID: "acc-1"}))

			require.NoError(t, fx.dest.SignOut(ctx, domain.SignOutRevoke))
			assert.Equal(t, []bool{true}, fx.auth.signedOut)

			_, ok, err := fx.dest.Store().Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.keeps, ok)
		})
	}
}

func TestNewPickerRequiresSession(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderDropbox)
	fx.auth.silentErr = domain.ErrInteractionRequired

	_, err := fx.dest.NewPicker(context.Background())
	require.ErrorIs(t, err, domain.ErrInteractionRequired)
	assert.Equal(t, int32(0), fx.auth.interactive.Load())
}

func TestNewPickerPickAndSave(t *testing.T) {
	t.Parallel()

	fx := newDestinationFixture(t, domain.ProviderDropbox)
	fx.cloud.addFolder(domain.DropboxRootID, "id:work", "Work")
	ctx := context.Background()

	picker, err := fx.dest.NewPicker(ctx)
	require.NoError(t, err)
	require.NoError(t, picker.SelectLeaf("id:work"))
	selection, err := picker.Confirm()
	require.NoError(t, err)
	require.NoError(t, fx.dest.Select(ctx, selection))

	status := fx.dest.Status(ctx)
	assert.True(t, status.SignedIn)
	assert.Equal(t, "acc-1", status.AccountID)
	assert.Equal(t, "Work", status.Folder)
}

func TestJobFromRecording(t *testing.T) {
	t.Parallel()

	job := JobFromRecording(domain.ProviderEmail, fakeRecording{audio: "/a/memo.m4a", transcript: "/a/memo.txt", base: "memo"}, true)
	assert.Equal(t, domain.ExportJob{Provider: domain.ProviderEmail, AudioPath: "/a/memo.m4a", TranscriptPath: "/a/memo.txt", FileBaseName: "memo", IncludeTranscript: true}, job)

	job = JobFromRecording(domain.ProviderDropbox, fakeRecording{audio: "/a/memo.m4a", base: "memo"}, true)
	assert.False(t, job.IncludeTranscript)
	assert.Empty(t, job.TranscriptPath)
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/mp4", ContentTypeFor("a.M4A"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeFor("a.txt"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.unknownext"))
}
