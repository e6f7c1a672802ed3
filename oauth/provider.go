package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ProviderName identifies a supported identity provider.
type ProviderName string

const (
	Google   ProviderName = "google"
	Facebook ProviderName = "facebook"
)

// Names lists every supported provider.
var Names = []ProviderName{Google, Facebook}

// ParseProviderName resolves a request path segment to a provider.
func ParseProviderName(s string) (ProviderName, bool) {
	switch ProviderName(strings.ToLower(strings.TrimSpace(s))) {
	case Google:
		return Google, true
	case Facebook:
		return Facebook, true
	}
	return "", false
}

var (
	// ErrUnknownProvider is returned by New for a name outside the supported set.
	ErrUnknownProvider = errors.New("oauth: unknown provider")
	// ErrProviderStatus is returned when a provider endpoint answers with a non-2xx status.
	ErrProviderStatus = errors.New("oauth: unexpected provider status")
	// ErrInvalidTokenResponse is returned for a token response missing required fields.
	ErrInvalidTokenResponse = errors.New("oauth: invalid token response")
	// ErrInvalidUserInfo is returned when the user-info payload fails validation.
	ErrInvalidUserInfo = errors.New("oauth: invalid user info")
)

// Config is the per-provider client registration. Empty URLs and scopes
// take the provider's defaults.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// Token is the validated token endpoint response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in,omitempty"`
}

// Identity is a provider user normalized for account reconciliation.
type Identity struct {
	ExternalID string
	Name       string
	Email      string
	Picture    string
}

// Provider is one identity provider. The set of implementations is closed:
// the unexported method keeps other packages from adding variants, and New
// switches over every ProviderName.
type Provider interface {
	Name() ProviderName
	AuthURL(state, codeChallenge string) string
	ExchangeToken(ctx context.Context, code, codeVerifier string) (Token, error)
	FetchUser(ctx context.Context, token Token) ([]byte, error)
	ParseUser(raw []byte) (Identity, error)

	variant() ProviderName
}

// New builds the provider variant for name.
func New(name ProviderName, cfg Config, client *http.Client) (Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oauth: %s requires client id, client secret and redirect url", name)
	}
	if client == nil {
		client = http.DefaultClient
	}

	switch name {
	case Google:
		return newGoogle(cfg, client), nil
	case Facebook:
		return newFacebook(cfg, client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// Authenticate runs the provider half of a login: token exchange, user-info
// fetch and parsing.
func Authenticate(ctx context.Context, p Provider, code, codeVerifier string) (Identity, error) {
	if code == "" || codeVerifier == "" {
		return Identity{}, errors.New("oauth: missing code or code verifier")
	}
	tok, err := p.ExchangeToken(ctx, code, codeVerifier)
	if err != nil {
		return Identity{}, err
	}
	raw, err := p.FetchUser(ctx, tok)
	if err != nil {
		return Identity{}, err
	}
	return p.ParseUser(raw)
}

// base carries the registration and transport shared by all variants.
type base struct {
	cfg    Config
	client *http.Client
}

func (b base) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		RedirectURL:  b.cfg.RedirectURL,
		Scopes:       b.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   b.cfg.AuthURL,
			TokenURL:  b.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (b base) authURL(state, codeChallenge string) string {
	return b.oauth2Config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (b base) exchange(ctx context.Context, code, codeVerifier string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)
	raw, err := b.oauth2Config().Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return Token{}, fmt.Errorf("%w: token endpoint %d", ErrProviderStatus, re.Response.StatusCode)
		}
		if ctx.Err() != nil {
			return Token{}, ctx.Err()
		}
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}

	tok := Token{AccessToken: raw.AccessToken, TokenType: raw.TokenType}
	if tok.AccessToken == "" || tok.TokenType == "" {
		return Token{}, fmt.Errorf("%w: missing access_token or token_type", ErrInvalidTokenResponse)
	}
	if v, ok := raw.Extra("expires_in").(float64); ok {
		if v < 0 {
			return Token{}, fmt.Errorf("%w: negative expires_in", ErrInvalidTokenResponse)
		}
		secs := int64(v)
		tok.ExpiresIn = &secs
	}
	return tok, nil
}

func withDefaults(cfg Config, authURL, tokenURL, userURL string, scopes []string) Config {
	if cfg.AuthURL == "" {
		cfg.AuthURL = authURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = tokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = userURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), scopes...)
	}
	return cfg
}
