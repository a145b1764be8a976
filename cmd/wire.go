package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	authadapter "github.com/bnema/primedictation-export/internal/adapters/auth"
	"github.com/bnema/primedictation-export/internal/adapters/cloud/dropbox"
	"github.com/bnema/primedictation-export/internal/adapters/cloud/gdrive"
	"github.com/bnema/primedictation-export/internal/adapters/cloud/onedrive"
	emailadapter "github.com/bnema/primedictation-export/internal/adapters/email"
	sqlitehistory "github.com/bnema/primedictation-export/internal/adapters/history/sqlite"
	"github.com/bnema/primedictation-export/internal/adapters/presign"
	statusadapter "github.com/bnema/primedictation-export/internal/adapters/render/status"
	tomlrepo "github.com/bnema/primedictation-export/internal/adapters/repo/toml"
	chainstore "github.com/bnema/primedictation-export/internal/adapters/secrets/chain"
	filestore "github.com/bnema/primedictation-export/internal/adapters/secrets/file"
	passstore "github.com/bnema/primedictation-export/internal/adapters/secrets/pass"
	"github.com/bnema/primedictation-export/internal/adapters/transcript"
	"github.com/bnema/primedictation-export/internal/application"
	"github.com/bnema/primedictation-export/internal/config"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

var (
	errNotConfigured = errors.New("not configured")
	errExportFailed  = errors.New("export failed")
)

type app struct {
	cfg            *config.Config
	log            logging.Logger
	settings       *chainstore.Mirror
	secrets        ports.KeyValueStore
	lifecycle      *application.Lifecycle
	alerts         *application.AlertQueue
	prompter       *terminalPrompter
	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time

	// out receives alerts; commands point it at their stdout.
	out io.Writer

	historyOnce sync.Once
	history     *sqlitehistory.Store
	historyErr  error
}

func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(homeDir)
	if err != nil {
		return nil, err
	}

	log := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	repo, err := tomlrepo.NewRepository(cfg.Viper)
	if err != nil {
		return nil, fmt.Errorf("wire settings repository: %w", err)
	}
	settings, err := chainstore.NewMirror(repo, filestore.NewStore(cfg.Paths.BackupDir), log)
	if err != nil {
		return nil, fmt.Errorf("wire settings mirror: %w", err)
	}

	secrets, err := newSecretStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	a := &app{
		cfg:            cfg,
		log:            log,
		settings:       settings,
		secrets:        secrets,
		lifecycle:      application.NewLifecycle(),
		prompter:       &terminalPrompter{out: os.Stderr},
		statusRenderer: statusadapter.Render,
		httpClient:     http.DefaultClient,
		now:            time.Now,
		out:            os.Stdout,
	}
	a.alerts = application.NewAlertQueue(a.deliverAlert)

	a.lifecycle.Flush(settings)
	a.lifecycle.OnBackground(func(context.Context) error { a.alerts.Background(); return nil })
	a.lifecycle.OnForeground(func(context.Context) error { a.alerts.Foreground(); return nil })
	a.lifecycle.OnTerminate(a.closeHistory)

	return a, nil
}

func newSecretStore(cfg *config.Config) (ports.KeyValueStore, error) {
	switch cfg.Secrets.Backend {
	case "pass":
		return passstore.NewStore(), nil
	case "file":
		return filestore.NewStore(cfg.Paths.SecretsDir), nil
	default:
		return chainstore.NewPassFirstWithFileFallback(cfg.Paths.SecretsDir)
	}
}

func (a *app) deliverAlert(alert application.Alert) {
	_, _ = fmt.Fprintf(a.out, "%s: %s\n", alert.Title, alert.Message)
}

// session builds the OAuth session of an identity or cloud provider. A
// provider without a client id is reported as not configured.
func (a *app) session(name string, device bool) (*authadapter.OAuthSession, error) {
	providerConfig, err := authadapter.DefaultProviderConfig(name)
	if err != nil {
		return nil, err
	}

	override := a.cfg.Client(name)
	if override.ClientID == "" {
		return nil, fmt.Errorf("%s: set %s.client_id in %s: %w", name, name, config.DirName, errNotConfigured)
	}
	providerConfig.ClientID = override.ClientID
	providerConfig.ClientSecret = override.ClientSecret
	if override.AuthURL != "" {
		providerConfig.AuthURL = override.AuthURL
	}
	if override.TokenURL != "" {
		providerConfig.TokenURL = override.TokenURL
	}
	if override.RevokeURL != "" {
		providerConfig.RevokeURL = override.RevokeURL
	}
	if override.DeviceCodeURL != "" {
		providerConfig.DeviceCodeURL = override.DeviceCodeURL
	}

	return authadapter.NewOAuthSession(providerConfig, a.secrets, authadapter.SessionOptions{
		HTTPClient:      a.httpClient,
		Prompter:        a.prompter,
		Logger:          a.log,
		ListenAddr:      a.cfg.Auth.ListenAddr,
		CallbackTimeout: a.cfg.Auth.CallbackTimeout,
		UseDeviceFlow:   device,
	})
}

func (a *app) cloudClient(provider domain.Provider, tokens *authadapter.OAuthSession) (ports.CloudProvider, error) {
	client := a.cfg.Client(string(provider))
	switch provider {
	case domain.ProviderDropbox:
		return dropbox.New(dropbox.Config{
			APIURL:     client.APIURL,
			ContentURL: client.ContentURL,
			HTTPClient: a.httpClient,
			Tokens:     tokens,
			Logger:     a.log,
		}), nil
	case domain.ProviderGoogleDrive:
		return gdrive.New(gdrive.Config{APIURL: client.APIURL, HTTPClient: a.httpClient, Tokens: tokens, Logger: a.log}), nil
	case domain.ProviderOneDrive:
		return onedrive.New(onedrive.Config{APIURL: client.APIURL, HTTPClient: a.httpClient, Tokens: tokens, Logger: a.log}), nil
	default:
		return nil, fmt.Errorf("%s: %w", provider, domain.ErrNotCloudBacked)
	}
}

// destination wires one cloud destination. device selects the device-code
// flow for an interactive sign-in.
func (a *app) destination(provider domain.Provider, device bool) (*application.Destination, error) {
	profile, err := domain.ProfileFor(provider)
	if err != nil {
		return nil, err
	}
	session, err := a.session(string(provider), device)
	if err != nil {
		return nil, err
	}
	client, err := a.cloudClient(provider, session)
	if err != nil {
		return nil, err
	}

	return application.NewDestination(profile, client, session, a.settings, application.DestinationOptions{
		Uploader: application.UploaderOptions{
			SmallFileLimit: a.cfg.Upload.SmallFileLimit,
			ChunkSize:      a.cfg.Upload.ChunkSize,
			Attempts:       a.cfg.Upload.Attempts,
			RetryDelay:     a.cfg.Upload.RetryDelay,
		},
		Logger: a.log,
	}), nil
}

// emailExporter wires the email destination. It needs the identity sign-in
// and both service endpoints.
func (a *app) emailExporter() (*application.EmailExporter, error) {
	if a.cfg.Email.SignerURL == "" || a.cfg.Email.SendURL == "" {
		return nil, fmt.Errorf("email: set email.signer_url and email.send_url: %w", errNotConfigured)
	}
	identity, err := a.session(authadapter.IdentityProvider, false)
	if err != nil {
		return nil, err
	}
	mail := emailadapter.NewClient(a.cfg.Email.SendURL, a.httpClient, a.log)

	return application.NewEmailExporter(application.EmailDeps{
		IDTokens: identity,
		Signer:   presign.NewClient(a.cfg.Email.SignerURL, a.httpClient, a.log),
		Objects:  mail,
		Sender:   mail,
		Logger:   a.log,
	}), nil
}

// selector wires every configured destination behind the selector.
// Unconfigured providers are skipped.
func (a *app) selector(ctx context.Context) (*application.DestinationSelector, error) {
	exporters := make(map[domain.Provider]application.Exporter, len(domain.CloudProviders)+1)
	for _, provider := range domain.CloudProviders {
		destination, err := a.destination(provider, false)
		if err != nil {
			if errors.Is(err, errNotConfigured) {
				a.log.Debug(ctx, "destination skipped", "provider", string(provider), "error", err)
				continue
			}
			return nil, err
		}
		exporters[provider] = destination
	}

	if email, err := a.emailExporter(); err == nil {
		exporters[domain.ProviderEmail] = email
	} else if !errors.Is(err, errNotConfigured) {
		return nil, err
	} else {
		a.log.Debug(ctx, "destination skipped", "provider", string(domain.ProviderEmail), "error", err)
	}

	opts := application.SelectorOptions{Alerts: a.alerts, Logger: a.log}
	history, err := a.exportHistory(ctx)
	if err != nil {
		a.log.Warn(ctx, "export history unavailable", "error", err)
	} else {
		opts.History = history
	}

	return application.NewDestinationSelector(a.settings, exporters, opts), nil
}

// transcription wires the transcript producer: the local Whisper client
// when an OpenAI key is configured, the remote pipeline otherwise.
func (a *app) transcription() (*application.TranscriptionService, error) {
	deps := application.TranscriptionDeps{Logger: a.log}
	opts := application.TranscriptionOptions{
		Deadline:         a.cfg.Transcription.Deadline,
		FallbackDeadline: a.cfg.Transcription.FallbackDeadline,
	}

	if a.cfg.Transcription.OpenAIAPIKey != "" {
		whisper, err := transcript.NewWhisper(transcript.WhisperConfig{
			APIKey:  a.cfg.Transcription.OpenAIAPIKey,
			BaseURL: a.cfg.Transcription.OpenAIBaseURL,
			Model:   a.cfg.Transcription.Model,
		}, a.log)
		if err != nil {
			return nil, err
		}
		deps.Local = whisper
		return application.NewTranscriptionService(deps, opts), nil
	}

	if a.cfg.Transcription.AudioSignerURL == "" || a.cfg.Transcription.TextSignerURL == "" {
		return nil, fmt.Errorf("transcription: set transcription.openai_api_key or both signer urls: %w", errNotConfigured)
	}
	identity, err := a.session(authadapter.IdentityProvider, false)
	if err != nil {
		return nil, err
	}
	deps.IDTokens = identity
	deps.Signer = transcript.NewSigner(a.cfg.Transcription.AudioSignerURL, a.cfg.Transcription.TextSignerURL, a.httpClient, a.log)
	deps.Objects = emailadapter.NewClient("", a.httpClient, a.log)
	deps.Fetcher = transcript.NewFetcher(a.httpClient, a.log)
	return application.NewTranscriptionService(deps, opts), nil
}

// exportHistory opens the history database on first use.
func (a *app) exportHistory(ctx context.Context) (*sqlitehistory.Store, error) {
	a.historyOnce.Do(func() {
		a.history, a.historyErr = sqlitehistory.Open(ctx, a.cfg.Paths.History)
	})
	return a.history, a.historyErr
}

func (a *app) closeHistory(context.Context) error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}
