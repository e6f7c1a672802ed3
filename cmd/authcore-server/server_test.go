package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

var codePattern = regexp.MustCompile(`code is: ([0-9a-f]{8})`)

type recordingMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *recordingMailer) Send(_ context.Context, _, _, body string) (authcore.DeliveryResult, error) {
	m.mu.Lock()
	m.bodies = append(m.bodies, body)
	m.mu.Unlock()
	return authcore.DeliveryResult{MessageID: "m"}, nil
}

func (m *recordingMailer) waitFor(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.bodies) >= n
	}, 2*time.Second, 5*time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies...)
}

type harness struct {
	app    *app
	ts     *httptest.Server
	client *http.Client
	mailer *recordingMailer
	store  *memory.Store
}

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment:      "test",
		SiteURL:          "https://app.example.com",
		ErrorRedirectURL: "https://app.example.com/login",
		HTTP:             config.HTTPConfig{RateLimitRPS: 100, RateLimitBurst: 100, MailLimit: 100, MailWindow: time.Minute},
		Cookies: config.CookieConfig{
			Secret:        "0123456789abcdef0123456789abcdef",
			DevMode:       true,
			SessionMaxAge: time.Hour,
		},
		Registration: config.RegistrationConfig{Role: "user", Mode: "email"},
		Password:     config.PasswordConfig{MemoryKB: 8 * 1024, Iterations: 1, Parallelism: 1},
		Metrics:      config.MetricsConfig{Enabled: true, Latency: true},
	}
}

func newHarness(t *testing.T, mutate func(*config.AppConfig, *appDeps)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &harness{mailer: &recordingMailer{}, store: memory.New()}
	cfg := testAppConfig()
	deps := appDeps{
		cfg:    cfg,
		log:    zerolog.Nop(),
		redis:  rdb,
		store:  h.store,
		mailer: h.mailer,
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	h.app, err = newApp(context.Background(), deps)
	require.NoError(t, err)
	h.ts = httptest.NewServer(h.app.srv.routes())
	h.client = h.newClient(t)

	t.Cleanup(func() {
		h.ts.Close()
		h.app.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

func (h *harness) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string         `json:"code"`
		Data map[string]any `json:"data"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func (h *harness) session(t *testing.T, c *http.Client) map[string]any {
	t.Helper()
	resp, env := h.do(t, c, http.MethodGet, "/auth/users/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func (h *harness) createUser(t *testing.T, username, email string, role authcore.Role) authcore.UserRecord {
	t.Helper()
	ctx := context.Background()
	u, err := h.app.engine.Register(ctx, authcore.RegisterInput{Username: username, Email: email, Password: testPassword}, role, authcore.VerifyByAdmin)
	require.NoError(t, err)
	require.NoError(t, h.app.engine.SetUserEnabled(ctx, u.ID, true))
	return u
}

func TestRegisterVerifyLoginLogout(t *testing.T) {
	h := newHarness(t, nil)
	creds := map[string]string{"email": "alice@example.com", "password": testPassword}

	resp, _ := h.do(t, h.client, http.MethodPost, "/auth/users", map[string]string{
		"username": "Alice", "email": "alice@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	h.mailer.waitFor(t, 1)

	resp, env := h.do(t, h.client, http.MethodPost, "/auth/users/login", creds)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodeEmailNotVerified, env.Error.Code)

	mails := h.mailer.waitFor(t, 2)
	m := codePattern.FindStringSubmatch(mails[len(mails)-1])
	require.Len(t, m, 2)

	resp, _ = h.do(t, h.client, http.MethodPut, "/auth/users/email/verification", map[string]string{
		"email": "alice@example.com", "token": m[1],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, h.client, http.MethodPost, "/auth/users/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := h.session(t, h.client)
	require.Equal(t, true, view["isLogged"])
	require.Equal(t, "alice@example.com", view["email"])
	require.Equal(t, "AL", view["usernameShorthand"])

	resp, _ = h.do(t, h.client, http.MethodGet, "/auth/users/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, h.session(t, h.client)["isLogged"])

	resp, _ = h.do(t, h.client, http.MethodGet, "/auth/users/logout", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	h.createUser(t, "bob", "bob@example.com", authcore.RoleUser)
	bad := map[string]string{"email": "bob@example.com", "password": "wrong-password-1"}

	for i := 0; i < 3; i++ {
		resp, env := h.do(t, h.client, http.MethodPost, "/auth/users/login", bad)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, authcore.CodeInvalidCredentials, env.Error.Code)
	}

	resp, env := h.do(t, h.client, http.MethodPost, "/auth/users/login", bad)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodeAccountBlocked, env.Error.Code)
	require.Equal(t, "SHORT", env.Error.Data["blockDurationClass"])

	resp, env = h.do(t, h.client, http.MethodPost, "/auth/users/login", map[string]string{
		"email": "bob@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodeAccountBlocked, env.Error.Code)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	h.createUser(t, "carol", "carol@example.com", authcore.RoleUser)

	resp, _ := h.do(t, h.client, http.MethodPut, "/auth/users/password/recover/link-token", map[string]string{"email": "carol@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mails := h.mailer.waitFor(t, 1)
	link := regexp.MustCompile(`https://\S+`).FindString(mails[0])
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	resp, env := h.do(t, h.client, http.MethodPut, "/auth/users/password/recover/link-token", map[string]string{"email": "carol@example.com"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodePasswordResetTokenNotExpired, env.Error.Code)

	resp, _ = h.do(t, h.client, http.MethodPut, "/auth/users/password/from-link", map[string]string{
		"email": "carol@example.com", "token": token, "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, h.client, http.MethodPost, "/auth/users/login", map[string]string{
		"email": "carol@example.com", "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMalformedBodyIsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)

	resp, env := h.do(t, h.client, http.MethodPost, "/auth/users/login", map[string]any{"email": 12})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, authcore.CodeInvalidInput, env.Error.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)
	h.createUser(t, "root", "root@example.com", authcore.RoleAdmin)
	dave := h.createUser(t, "dave", "dave@example.com", authcore.RoleUser)

	daveClient := h.newClient(t)
	resp, _ := h.do(t, daveClient, http.MethodPost, "/auth/users/login", map[string]string{"email": "dave@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.do(t, daveClient, http.MethodGet, "/admins/sessions", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodeForbidden, env.Error.Code)

	resp, env = h.do(t, h.client, http.MethodPost, "/auth/admins/login", map[string]string{"email": "dave@example.com", "password": testPassword})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authcore.CodeInvalidCredentials, env.Error.Code)

	resp, _ = h.do(t, h.client, http.MethodPost, "/auth/admins/login", map[string]string{"email": "root@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = h.do(t, h.client, http.MethodGet, "/admins/sessions?sort=createdAt:asc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Sessions []struct {
			ID      string `json:"id"`
			UserID  string `json:"userId"`
			Current bool   `json:"isCurrentSession"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Sessions, 2)

	var daveSession string
	current := 0
	for _, s := range page.Sessions {
		if s.UserID == dave.ID {
			daveSession = s.ID
			require.False(t, s.Current)
		}
		if s.Current {
			current++
		}
	}
	require.NotEmpty(t, daveSession)
	require.Equal(t, 1, current)

	resp, _ = h.do(t, h.client, http.MethodGet, "/admins/sessions?sort=bogus", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, h.client, http.MethodDelete, "/admins/sessions/"+daveSession, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, h.session(t, daveClient)["isLogged"])

	resp, env = h.do(t, h.client, http.MethodPut, "/admins/users/"+dave.ID, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = h.do(t, daveClient, http.MethodPost, "/auth/users/login", map[string]string{"email": "dave@example.com", "password": testPassword})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, authcore.CodeAccountNotEnabled, env.Error.Code)

	resp, _ = h.do(t, h.client, http.MethodDelete, "/admins/users/"+dave.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = h.do(t, h.client, http.MethodDelete, "/admins/users/"+dave.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, authcore.CodeUserNotFound, env.Error.Code)
}

func TestOAuthLoginOverHTTP(t *testing.T) {
	provider := http.NewServeMux()
	provider.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	provider.HandleFunc("/me", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-1","name":"Erin","email":"erin.o@example.com","verified_email":true}`))
	})
	idp := httptest.NewServer(provider)
	t.Cleanup(idp.Close)

	h := newHarness(t, func(cfg *config.AppConfig, d *appDeps) {
		cfg.Google = config.ProviderConfig{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			RedirectURL:  "https://app.example.com/oauth/users/google/login",
			AuthURL:      idp.URL + "/auth",
			TokenURL:     idp.URL + "/token",
			UserInfoURL:  idp.URL + "/me",
		}
		d.httpClient = idp.Client()
	})

	resp, _ := h.do(t, h.client, http.MethodGet, "/oauth/users/google/url?onSuccess=/dashboard&onError=/login", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
	state := authURL.Query().Get("state")
	require.Len(t, state, 128)

	resp, _ = h.do(t, h.client, http.MethodGet, "/oauth/users/google/login?code=abc&state="+state, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://app.example.com/dashboard", resp.Header.Get("Location"))

	view := h.session(t, h.client)
	require.Equal(t, true, view["isLogged"])
	require.Equal(t, "erin.o@example.com", view["email"])
	require.Equal(t, "erino", view["usernameToDisplay"])

	// Replaying the callback finds no PKCE cookies.
	resp, _ = h.do(t, h.client, http.MethodGet, "/oauth/users/google/login?code=abc&state="+state, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://app.example.com/", resp.Header.Get("Location"))
}

func TestOAuthUnknownProviderRedirectsToErrorPage(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, h.client, http.MethodGet, "/oauth/users/myspace/url?onError=/oops", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://app.example.com/oops", resp.Header.Get("Location"))

	var redirectErr string
	for _, c := range resp.Cookies() {
		if c.Name == "_apst.redirect.error" {
			redirectErr = c.Value
		}
	}
	require.Equal(t, authcore.CodeOAuthLoginFailed, redirectErr)
}

func TestRateLimitReturns429(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig, _ *appDeps) {
		cfg.HTTP.RateLimitRPS = 0.001
		cfg.HTTP.RateLimitBurst = 2
	})
	body := map[string]string{"email": "nobody@example.com", "password": testPassword}

	for i := 0; i < 2; i++ {
		resp, _ := h.do(t, h.client, http.MethodPost, "/auth/users/login", body)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, env := h.do(t, h.client, http.MethodPost, "/auth/users/login", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)

	resp, _ = h.do(t, h.client, http.MethodGet, "/auth/users/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMailRequestsThrottledPerIP(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig, _ *appDeps) {
		cfg.HTTP.MailLimit = 2
		cfg.HTTP.MailWindow = 15 * time.Minute
	})
	body := map[string]string{"email": "nobody@example.com"}

	for i := 0; i < 2; i++ {
		resp, env := h.do(t, h.client, http.MethodPut, "/auth/users/password/recover/link-token", body)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, authcore.CodeEmailNotFound, env.Error.Code)
	}

	resp, env := h.do(t, h.client, http.MethodPut, "/auth/users/email/verification/token", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = h.do(t, h.client, http.MethodPost, "/auth/users/login", map[string]string{"email": "nobody@example.com", "password": testPassword})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthReportsRedis(t *testing.T) {
	h := newHarness(t, nil)
	resp, env := h.do(t, h.client, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, float64(0), body["mailDropped"])

	down := newHarness(t, func(_ *config.AppConfig, d *appDeps) {
		unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
		t.Cleanup(func() { _ = unreachable.Close() })
		d.redis = unreachable
	})
	resp, env = down.do(t, down.client, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.False(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Equal(t, false, body["ok"])
}

func TestMetricsEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	h.createUser(t, "frank", "frank@example.com", authcore.RoleUser)

	resp, _ := h.do(t, h.client, http.MethodPost, "/auth/users/login", map[string]string{"email": "frank@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res, err := h.client.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	res.Body.Close()
	require.Contains(t, buf.String(), "authcore_login_success_total 1")
	require.Contains(t, buf.String(), "authcore_session_created_total 1")

	resp, env := h.do(t, h.client, http.MethodGet, "/metrics/otel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var values map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &values))
	require.Equal(t, int64(1), values["authcore_login_success_total"])
	require.Equal(t, int64(1), values["authcore_login_latency_seconds_count"])
}

func TestIPRateLimiterEvictsIdleVisitors(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.allow("198.51.100.1"))
	require.False(t, l.allow("198.51.100.1"))

	now = now.Add(11 * time.Minute)
	l.evict()
	l.mu.Lock()
	require.Empty(t, l.visitors)
	l.mu.Unlock()
	require.True(t, l.allow("198.51.100.1"))
}

func TestChangePasswordOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	h.createUser(t, "erin", "erin@example.com", authcore.RoleUser)
	creds := map[string]string{"email": "erin@example.com", "password": testPassword}

	resp, _ := h.do(t, h.client, http.MethodPost, "/auth/users/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	other := h.newClient(t)
	resp, _ = h.do(t, other, http.MethodPost, "/auth/users/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.do(t, h.newClient(t), http.MethodPut, "/auth/users/password", map[string]string{
		"oldPassword": testPassword, "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authcore.CodeNotAuthenticated, env.Error.Code)

	resp, env = h.do(t, h.client, http.MethodPut, "/auth/users/password", map[string]string{
		"oldPassword": "not-the-password", "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authcore.CodeInvalidCredentials, env.Error.Code)

	resp, _ = h.do(t, h.client, http.MethodPut, "/auth/users/password", map[string]string{
		"oldPassword": testPassword, "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, true, h.session(t, h.client)["isLogged"])
	require.Equal(t, false, h.session(t, other)["isLogged"])

	resp, _ = h.do(t, h.newClient(t), http.MethodPost, "/auth/users/login", creds)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = h.do(t, h.newClient(t), http.MethodPost, "/auth/users/login", map[string]string{
		"email": "erin@example.com", "password": "a-brand-new-secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminBootstrappedFromConfig(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig, _ *appDeps) {
		cfg.Admin = config.AdminConfig{Email: "root@example.com", Username: "root", Password: testPassword}
	})
	ctx := context.Background()

	resp, _ := h.do(t, h.client, http.MethodPost, "/auth/admins/login", map[string]string{
		"email": "root@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, h.client, http.MethodGet, "/admins/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, bootstrapAdmin(ctx, h.app.engine, config.AdminConfig{
		Email: "second@example.com", Username: "second", Password: testPassword,
	}, zerolog.Nop()))
	n, err := h.store.CountUsersByRole(ctx, authcore.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = h.store.GetUserByEmail(ctx, "second@example.com")
	require.ErrorIs(t, err, authcore.ErrStoreNotFound)
}

func TestLastAdminCannotBeDemotedOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	root := h.createUser(t, "root", "root@example.com", authcore.RoleAdmin)

	resp, _ := h.do(t, h.client, http.MethodPost, "/auth/admins/login", map[string]string{
		"email": "root@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.do(t, h.client, http.MethodPut, "/admins/users/"+root.ID, map[string]any{"role": "USER"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, authcore.CodeCannotDemoteLastAdmin, env.Error.Code)
}
