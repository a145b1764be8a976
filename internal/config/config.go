// Package config loads pdx settings from ~/.primedictation/config.toml, an
// optional .env file next to it, and PDX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bnema/primedictation-export/internal/domain"
)

const (
	EnvPrefix  = "PDX"
	DirName    = ".primedictation"
	configFile = "config.toml"
	envFile    = ".env"

	// chunkQuantum is the upload chunk granularity OneDrive requires.
	chunkQuantum = 320 << 10
)

// OAuthProviders are the config sections holding OAuth client settings.
var OAuthProviders = []string{
	string(domain.ProviderDropbox),
	string(domain.ProviderGoogleDrive),
	string(domain.ProviderOneDrive),
	"identity",
}

type Paths struct {
	Settings   string
	BackupDir  string
	SecretsDir string
	History    string
}

type Secrets struct {
	// Backend is auto, pass or file.
	Backend string
}

type Auth struct {
	ListenAddr      string
	CallbackTimeout time.Duration
}

type Upload struct {
	SmallFileLimit int64
	ChunkSize      int64
	Attempts       int
	RetryDelay     time.Duration
}

// OAuth overrides the endpoints and carries the client registration of one
// provider. Empty endpoints keep the provider defaults.
type OAuth struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	RevokeURL     string
	DeviceCodeURL string
	APIURL        string
	ContentURL    string
}

type Email struct {
	SignerURL string
	SendURL   string
}

type Transcription struct {
	AudioSignerURL   string
	TextSignerURL    string
	Deadline         time.Duration
	FallbackDeadline time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	Model            string
}

type Log struct {
	Level  string
	Format string
}

type Config struct {
	Dir           string
	Paths         Paths
	Secrets       Secrets
	Auth          Auth
	Upload        Upload
	OAuth         map[string]OAuth
	Email         Email
	Transcription Transcription
	Log           Log

	// Viper is the loaded instance; the settings repository reads its path
	// from it.
	Viper *viper.Viper
}

// Load reads the configuration rooted at home. Real environment variables
// win over .env entries, which win over config.toml, which wins over the
// defaults.
func Load(home string) (*Config, error) {
	dir := filepath.Join(home, DirName)

	if err := godotenv.Load(filepath.Join(dir, envFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, configFile))
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Dir: dir,
		Paths: Paths{
			Settings:   v.GetString("paths.settings"),
			BackupDir:  v.GetString("paths.backup_dir"),
			SecretsDir: v.GetString("paths.secrets_dir"),
			History:    v.GetString("paths.history"),
		},
		Secrets: Secrets{Backend: strings.ToLower(v.GetString("secrets.backend"))},
		Auth: Auth{
			ListenAddr:      v.GetString("auth.listen_addr"),
			CallbackTimeout: v.GetDuration("auth.callback_timeout"),
		},
		Upload: Upload{
			SmallFileLimit: v.GetInt64("upload.small_file_limit"),
			ChunkSize:      v.GetInt64("upload.chunk_size"),
			Attempts:       v.GetInt("upload.attempts"),
			RetryDelay:     v.GetDuration("upload.retry_delay"),
		},
		OAuth: make(map[string]OAuth, len(OAuthProviders)),
		Email: Email{
			SignerURL: v.GetString("email.signer_url"),
			SendURL:   v.GetString("email.send_url"),
		},
		Transcription: Transcription{
			AudioSignerURL:   v.GetString("transcription.audio_signer_url"),
			TextSignerURL:    v.GetString("transcription.text_signer_url"),
			Deadline:         v.GetDuration("transcription.deadline"),
			FallbackDeadline: v.GetDuration("transcription.fallback_deadline"),
			OpenAIAPIKey:     v.GetString("transcription.openai_api_key"),
			OpenAIBaseURL:    v.GetString("transcription.openai_base_url"),
			Model:            v.GetString("transcription.model"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Viper: v,
	}
	for _, name := range OAuthProviders {
		cfg.OAuth[name] = OAuth{
			ClientID:      v.GetString(name + ".client_id"),
			ClientSecret:  v.GetString(name + ".client_secret"),
			AuthURL:       v.GetString(name + ".auth_url"),
			TokenURL:      v.GetString(name + ".token_url"),
			RevokeURL:     v.GetString(name + ".revoke_url"),
			DeviceCodeURL: v.GetString(name + ".device_code_url"),
			APIURL:        v.GetString(name + ".api_url"),
			ContentURL:    v.GetString(name + ".content_url"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("paths.settings", filepath.Join(dir, "settings.toml"))
	v.SetDefault("paths.backup_dir", filepath.Join(dir, "backup"))
	v.SetDefault("paths.secrets_dir", filepath.Join(dir, "secrets"))
	v.SetDefault("paths.history", filepath.Join(dir, "history.db"))
	v.SetDefault("secrets.backend", "auto")
	v.SetDefault("auth.listen_addr", "127.0.0.1:53682")
	v.SetDefault("auth.callback_timeout", 5*time.Minute)
	v.SetDefault("upload.small_file_limit", domain.DefaultSmallFileLimit)
	v.SetDefault("upload.chunk_size", domain.DefaultChunkSize)
	v.SetDefault("upload.attempts", 2)
	v.SetDefault("upload.retry_delay", 500*time.Millisecond)
	v.SetDefault("email.signer_url", "")
	v.SetDefault("email.send_url", "")
	v.SetDefault("transcription.audio_signer_url", "")
	v.SetDefault("transcription.text_signer_url", "")
	v.SetDefault("transcription.deadline", 20*time.Minute)
	v.SetDefault("transcription.fallback_deadline", 60*time.Second)
	v.SetDefault("transcription.openai_api_key", "")
	v.SetDefault("transcription.openai_base_url", "")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	// Defaults register the keys so AutomaticEnv also resolves them.
	for _, name := range OAuthProviders {
		for _, field := range []string{"client_id", "client_secret", "auth_url", "token_url", "revoke_url", "device_code_url", "api_url", "content_url"} {
			v.SetDefault(name+"."+field, "")
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Secrets.Backend {
	case "auto", "pass", "file":
	default:
		errs = append(errs, fmt.Errorf("secrets.backend %q must be auto, pass or file", c.Secrets.Backend))
	}
	if c.Upload.SmallFileLimit <= 0 {
		errs = append(errs, errors.New("upload.small_file_limit must be positive"))
	}
	if c.Upload.ChunkSize <= 0 || c.Upload.ChunkSize%chunkQuantum != 0 {
		errs = append(errs, fmt.Errorf("upload.chunk_size must be a positive multiple of %d", chunkQuantum))
	}
	if c.Upload.Attempts < 1 {
		errs = append(errs, errors.New("upload.attempts must be at least 1"))
	}
	if c.Paths.Settings == "" {
		errs = append(errs, errors.New("paths.settings is required"))
	}

	return errors.Join(errs...)
}

// Client returns the OAuth section of provider.
func (c *Config) Client(provider string) OAuth {
	return c.OAuth[provider]
}

// EnsureDir creates the configuration directory.
func (c *Config) EnsureDir() error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", c.Dir, err)
	}
	return nil
}
