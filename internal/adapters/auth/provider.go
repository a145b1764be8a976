package auth

import (
	"fmt"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
)

// IdentityProvider names the first-party sign-in that issues ID tokens for
// the email and transcription services.
const IdentityProvider = "identity"

type RevokeMode string

const (
	RevokeNone   RevokeMode = ""
	RevokeBearer RevokeMode = "bearer"
	RevokeForm   RevokeMode = "form"
)

// ProviderConfig holds the OAuth endpoints and client registration of one
// provider.
type ProviderConfig struct {
	Name            string
	AuthURL         string
	TokenURL        string
	RevokeURL       string
	RevokeMode      RevokeMode
	DeviceCodeURL   string
	ClientID        string
	ClientSecret    string
	Scopes          []string
	ExtraAuthParams map[string]string
	// AccountClaims are the ID token claims tried in order for the account id
	// when the token response carries none.
	AccountClaims []string
}

func (c ProviderConfig) SupportsDeviceFlow() bool {
	return c.DeviceCodeURL != ""
}

func (c ProviderConfig) TokenKey() string {
	return c.Name + "/oauth_tokens"
}

func (c ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is required", c.Name)
	}
	if c.AuthURL == "" || c.TokenURL == "" {
		return fmt.Errorf("%s: auth and token urls are required", c.Name)
	}
	return nil
}

// DefaultProviderConfig returns the public endpoints of a provider. Client
// credentials come from configuration.
func DefaultProviderConfig(name string) (ProviderConfig, error) {
	switch name {
	case string(domain.ProviderDropbox):
		return ProviderConfig{
			Name:       name,
			AuthURL:    "https://www.dropbox.com/oauth2/authorize",
			TokenURL:   "https://api.dropboxapi.com/oauth2/token",
			RevokeURL:  "https://api.dropboxapi.com/2/auth/token/revoke",
			RevokeMode: RevokeBearer,
			Scopes: []string{
				"files.content.write",
				"files.content.read",
				"files.metadata.read",
				"sharing.read",
			},
			ExtraAuthParams: map[string]string{"token_access_type": "offline"},
		}, nil
	case string(domain.ProviderGoogleDrive):
		return ProviderConfig{
			Name:          name,
			AuthURL:       "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:      "https://oauth2.googleapis.com/token",
			RevokeURL:     "https://oauth2.googleapis.com/revoke",
			RevokeMode:    RevokeForm,
			DeviceCodeURL: "https://oauth2.googleapis.com/device/code",
			Scopes: []string{
				"openid",
				"email",
				"https://www.googleapis.com/auth/drive",
			},
			ExtraAuthParams: map[string]string{"access_type": "offline", "prompt": "consent"},
			AccountClaims:   []string{"sub"},
		}, nil
	case string(domain.ProviderOneDrive):
		return ProviderConfig{
			Name:          name,
			AuthURL:       "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			RevokeURL:     "https://graph.microsoft.com/v1.0/me/revokeSignInSessions",
			RevokeMode:    RevokeBearer,
			DeviceCodeURL: "https://login.microsoftonline.com/common/oauth2/v2.0/devicecode",
			Scopes:        []string{"User.Read", "Files.ReadWrite", "offline_access", "openid", "profile"},
			AccountClaims: []string{"oid", "sub"},
		}, nil
	case IdentityProvider:
		return ProviderConfig{
			Name:          name,
			AuthURL:       "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:      "https://oauth2.googleapis.com/token",
			RevokeURL:     "https://oauth2.googleapis.com/revoke",
			RevokeMode:    RevokeForm,
			DeviceCodeURL: "https://oauth2.googleapis.com/device/code",
			Scopes:        []string{"openid", "email"},
			AccountClaims: []string{"sub"},
		}, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown oauth provider %q", name)
	}
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
