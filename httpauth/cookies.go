package httpauth

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// CookieNames are the names of the cookies the transport reads and writes.
type CookieNames struct {
	Session       string
	DeviceID      string
	OAuthState    string
	OAuthVerifier string
	RedirectError string
}

// DefaultCookieNames returns the stock names.
func DefaultCookieNames() CookieNames {
	return CookieNames{
		Session:       "_apst.sd",
		DeviceID:      "_deviceId",
		OAuthState:    "_apst.oauth.state",
		OAuthVerifier: "_apst.oauth.code_verifier",
		RedirectError: "_apst.redirect.error",
	}
}

// Config configures cookie handling.
type Config struct {
	Names CookieNames
	// DevMode drops the Secure flag and exposes internal error messages.
	DevMode        bool
	Domain         string
	SessionMaxAge  time.Duration
	DeviceMaxAge   time.Duration
	OAuthMaxAge    time.Duration
	RedirectMaxAge time.Duration
	// TrustProxyHeaders makes ClientIP honor X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool
}

// DefaultConfig returns the stock cookie lifetimes.
func DefaultConfig() Config {
	return Config{
		Names:          DefaultCookieNames(),
		SessionMaxAge:  7 * 24 * time.Hour,
		DeviceMaxAge:   30 * 24 * time.Hour,
		OAuthMaxAge:    10 * time.Minute,
		RedirectMaxAge: 2 * time.Minute,
	}
}

// Cookies reads and writes the auth cookies. The session cookie holds a
// signed token naming the session id.
type Cookies struct {
	cfg    Config
	signer *jwt.Manager
}

func NewCookies(cfg Config, signer *jwt.Manager) (*Cookies, error) {
	if signer == nil {
		return nil, errors.New("session signer required")
	}
	if cfg.Names == (CookieNames{}) {
		cfg.Names = DefaultCookieNames()
	}
	return &Cookies{cfg: cfg, signer: signer}, nil
}

func (c *Cookies) Config() Config {
	return c.cfg
}

func (c *Cookies) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: httpOnly,
		Secure:   !c.cfg.DevMode,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Cookies) clear(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: httpOnly,
		Secure:   !c.cfg.DevMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func read(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// SetSession writes the signed session cookie for sessionID.
func (c *Cookies) SetSession(w http.ResponseWriter, sessionID string) error {
	token, err := c.signer.Sign(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(c.cfg.Names.Session, token, c.cfg.SessionMaxAge, true))
	return nil
}

// SessionID returns the session id from a validly signed session cookie.
// A missing, forged or expired cookie yields "".
func (c *Cookies) SessionID(r *http.Request) string {
	raw := read(r, c.cfg.Names.Session)
	if raw == "" {
		return ""
	}
	claims, err := c.signer.Parse(raw)
	if err != nil {
		return ""
	}
	return claims.SID
}

func (c *Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, c.cfg.Names.Session, true)
}

func (c *Cookies) SetDeviceID(w http.ResponseWriter, deviceID string) {
	http.SetCookie(w, c.cookie(c.cfg.Names.DeviceID, deviceID, c.cfg.DeviceMaxAge, true))
}

func (c *Cookies) DeviceID(r *http.Request) string {
	return read(r, c.cfg.Names.DeviceID)
}

func (c *Cookies) ClearDeviceID(w http.ResponseWriter) {
	c.clear(w, c.cfg.Names.DeviceID, true)
}

// SetPKCE stores the OAuth state and code verifier client-side.
func (c *Cookies) SetPKCE(w http.ResponseWriter, state, verifier string) {
	http.SetCookie(w, c.cookie(c.cfg.Names.OAuthState, state, c.cfg.OAuthMaxAge, true))
	http.SetCookie(w, c.cookie(c.cfg.Names.OAuthVerifier, verifier, c.cfg.OAuthMaxAge, true))
}

// TakePKCE returns the stored state and verifier and clears both cookies.
func (c *Cookies) TakePKCE(w http.ResponseWriter, r *http.Request) (state, verifier string) {
	state = read(r, c.cfg.Names.OAuthState)
	verifier = read(r, c.cfg.Names.OAuthVerifier)
	c.clear(w, c.cfg.Names.OAuthState, true)
	c.clear(w, c.cfg.Names.OAuthVerifier, true)
	return state, verifier
}

// SetRedirectError stores an error code for the page the browser is sent
// to. It is readable by scripts.
func (c *Cookies) SetRedirectError(w http.ResponseWriter, code string) {
	http.SetCookie(w, c.cookie(c.cfg.Names.RedirectError, code, c.cfg.RedirectMaxAge, false))
}

// ClientIP returns the request's client address.
func (c *Cookies) ClientIP(r *http.Request) string {
	if c.cfg.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
