package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	facebookAuthURL     = "https://www.facebook.com/v19.0/dialog/oauth"
	facebookTokenURL    = "https://graph.facebook.com/v19.0/oauth/access_token"
	facebookUserInfoURL = "https://graph.facebook.com/v19.0/me"
)

var facebookScopes = []string{"email", "public_profile"}

type facebook struct{ base }

func newFacebook(cfg Config, client *http.Client) *facebook {
	return &facebook{base{cfg: withDefaults(cfg, facebookAuthURL, facebookTokenURL, facebookUserInfoURL, facebookScopes), client: client}}
}

func (f *facebook) Name() ProviderName    { return Facebook }
func (f *facebook) variant() ProviderName { return Facebook }

func (f *facebook) AuthURL(state, codeChallenge string) string {
	return f.authURL(state, codeChallenge)
}

func (f *facebook) ExchangeToken(ctx context.Context, code, codeVerifier string) (Token, error) {
	return f.exchange(ctx, code, codeVerifier)
}

// FetchUser passes the token and the requested field list as query
// parameters, which is how the Graph API expects them.
func (f *facebook) FetchUser(ctx context.Context, token Token) ([]byte, error) {
	q := url.Values{}
	q.Set("access_token", token.AccessToken)
	q.Set("fields", "id,name,email,picture")

	sep := "?"
	if strings.Contains(f.cfg.UserInfoURL, "?") {
		sep = "&"
	}
	return getRaw(ctx, f.client, f.cfg.UserInfoURL+sep+q.Encode(), nil)
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *facebook) ParseUser(raw []byte) (Identity, error) {
	var u facebookUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidUserInfo, err)
	}
	return validateIdentity(Identity{
		ExternalID: u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Picture:    u.Picture.Data.URL,
	})
}
