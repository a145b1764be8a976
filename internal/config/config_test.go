package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/primedictation-export/internal/domain"
)

func writeConfigFile(t *testing.T, home string, name string, content string) {
	t.Helper()
	dir := filepath.Join(home, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(home)
	require.NoError(t, err)

	dir := filepath.Join(home, DirName)
	assert.Equal(t, filepath.Join(dir, "settings.toml"), cfg.Paths.Settings)
	assert.Equal(t, filepath.Join(dir, "backup"), cfg.Paths.BackupDir)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.Paths.History)
	assert.Equal(t, "auto", cfg.Secrets.Backend)
	assert.Equal(t, int64(domain.DefaultSmallFileLimit), cfg.Upload.SmallFileLimit)
	assert.Equal(t, int64(domain.DefaultChunkSize), cfg.Upload.ChunkSize)
	assert.Equal(t, 2, cfg.Upload.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Upload.RetryDelay)
	assert.Equal(t, 20*time.Minute, cfg.Transcription.Deadline)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Len(t, cfg.OAuth, len(OAuthProviders))
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "config.toml", `
[upload]
chunk_size = 655360
attempts = 3

[dropbox]
client_id = "dbx-app"
api_url = "http://127.0.0.1:9999"

[log]
level = "debug"
`)

	cfg, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, int64(655360), cfg.Upload.ChunkSize)
	assert.Equal(t, 3, cfg.Upload.Attempts)
	assert.Equal(t, "dbx-app", cfg.Client("dropbox").ClientID)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Client("dropbox").APIURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "config.toml", "[gdrive]\nclient_id = \"from-file\"\n")
	t.Setenv("PDX_GDRIVE_CLIENT_ID", "from-env")
	t.Setenv("PDX_UPLOAD_ATTEMPTS", "4")

	cfg, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Client("gdrive").ClientID)
	assert.Equal(t, 4, cfg.Upload.Attempts)
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, ".env", "PDX_ONEDRIVE_CLIENT_ID=from-dotenv\nPDX_EMAIL_SEND_URL=https://dotenv.example/send\n")
	t.Setenv("PDX_EMAIL_SEND_URL", "https://real.example/send")
	t.Cleanup(func() { _ = os.Unsetenv("PDX_ONEDRIVE_CLIENT_ID") })

	cfg, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Client("onedrive").ClientID)
	assert.Equal(t, "https://real.example/send", cfg.Email.SendURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "config.toml", `
[secrets]
backend = "vault"

[upload]
chunk_size = 1000
attempts = 0
`)

	_, err := Load(home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets.backend")
	assert.Contains(t, err.Error(), "upload.chunk_size")
	assert.Contains(t, err.Error(), "upload.attempts")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "config.toml", "[upload\n")

	_, err := Load(home)
	require.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	t.Setenv("PDX_SIGNER_SECRET", "s3cret")
	t.Setenv("PDX_SIGNER_BUCKET", "recordings")
	t.Setenv("PDX_SIGNER_EXPIRY", "5m")

	cfg, err := LoadSigner()
	require.NoError(t, err)
	assert.Equal(t, "recordings", cfg.Bucket)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 5*time.Minute, cfg.Expiry)
	assert.Equal(t, "127.0.0.1:8787", cfg.ListenAddr)
}

func TestLoadSignerRequiresSecretAndBucket(t *testing.T) {
	t.Setenv("PDX_SIGNER_SECRET", "")
	t.Setenv("PDX_SIGNER_BUCKET", "")

	_, err := LoadSigner()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDX_SIGNER_SECRET")
	assert.Contains(t, err.Error(), "PDX_SIGNER_BUCKET")
}

func TestSignerKeysMustBePaired(t *testing.T) {
	cfg := Signer{Secret: "s", Bucket: "b", AccessKey: "AKIA"}
	require.Error(t, cfg.Validate())

	cfg.SecretKey = "shh"
	require.NoError(t, cfg.Validate())
}
