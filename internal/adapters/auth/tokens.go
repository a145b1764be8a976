package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens is the JSON document stored per provider in the secret store.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

func DecodeTokens(secretValue string) (Tokens, error) {
	var tokens Tokens
	if err := json.Unmarshal([]byte(secretValue), &tokens); err != nil {
		return Tokens{}, fmt.Errorf("decode oauth tokens: %w", err)
	}
	if strings.TrimSpace(tokens.AccessToken) == "" {
		return Tokens{}, errors.New("oauth tokens missing access_token")
	}
	return tokens, nil
}

func EncodeTokens(tokens Tokens) (string, error) {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode oauth tokens: %w", err)
	}
	return string(payload), nil
}

func WithCalculatedExpiry(tokens Tokens, now time.Time) Tokens {
	if tokens.ExpiresIn > 0 {
		tokens.ExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	}
	return tokens
}

func TokenExpiringSoon(tokens Tokens, now time.Time, skew time.Duration) bool {
	if tokens.ExpiresAt <= 0 {
		return false
	}
	expiresAt := time.Unix(tokens.ExpiresAt, 0)
	return !expiresAt.After(now.Add(skew))
}

func (t Tokens) Expiry() time.Time {
	if t.ExpiresAt <= 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// IDTokenClaims reads the claims of an ID token without verifying its
// signature.
func IDTokenClaims(idToken string) (jwt.MapClaims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, errors.New("id token is empty")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	return claims, nil
}

// AccountIDFromIDToken returns the first non-empty claim of names.
func AccountIDFromIDToken(idToken string, names []string) (string, error) {
	claims, err := IDTokenClaims(idToken)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if value, ok := claims[name].(string); ok && value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("id token has none of the claims %v", names)
}

// IDTokenExpiry returns the exp claim of an ID token.
func IDTokenExpiry(idToken string) (time.Time, error) {
	claims, err := IDTokenClaims(idToken)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read id token expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
