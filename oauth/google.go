package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var googleScopes = []string{"openid", "email", "profile"}

type google struct{ base }

func newGoogle(cfg Config, client *http.Client) *google {
	return &google{base{cfg: withDefaults(cfg, googleAuthURL, googleTokenURL, googleUserInfoURL, googleScopes), client: client}}
}

func (g *google) Name() ProviderName    { return Google }
func (g *google) variant() ProviderName { return Google }

func (g *google) AuthURL(state, codeChallenge string) string {
	return g.authURL(state, codeChallenge)
}

func (g *google) ExchangeToken(ctx context.Context, code, codeVerifier string) (Token, error) {
	return g.exchange(ctx, code, codeVerifier)
}

// FetchUser presents the access token as a bearer credential.
func (g *google) FetchUser(ctx context.Context, token Token) ([]byte, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return getRaw(ctx, g.client, g.cfg.UserInfoURL, h)
}

type googleUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Picture       string `json:"picture"`
	VerifiedEmail *bool  `json:"verified_email"`
}

// ParseUser rejects addresses Google reports as unverified.
func (g *google) ParseUser(raw []byte) (Identity, error) {
	var u googleUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidUserInfo, err)
	}
	if u.VerifiedEmail != nil && !*u.VerifiedEmail {
		return Identity{}, fmt.Errorf("%w: email not verified by provider", ErrInvalidUserInfo)
	}
	return validateIdentity(Identity{
		ExternalID: u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Picture:    u.Picture,
	})
}
