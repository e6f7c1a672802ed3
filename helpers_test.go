package authcore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	seq  atomic.Int64
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) (authcore.DeliveryResult, error) {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	return authcore.DeliveryResult{MessageID: fmt.Sprintf("msg-%d", m.seq.Add(1))}, nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) waitFor(t *testing.T, n int) []sentMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.count() >= n {
			m.mu.Lock()
			defer m.mu.Unlock()
			return append([]sentMail(nil), m.sent...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d mails, got %d", n, m.count())
	return nil
}

type testEnv struct {
	engine *authcore.Engine
	store  *memory.Store
	clock  *fakeClock
	mailer *recordingMailer
	redis  *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Links.SiteURL = "https://app.example.com"
	cfg.OAuth.ErrorRedirectURL = "https://app.example.com/login"
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*authcore.Config, *authcore.Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		store:  memory.New(),
		clock:  newFakeClock(),
		mailer: &recordingMailer{},
		redis:  mr,
		rdb:    rdb,
	}

	cfg := testConfig()
	b := authcore.New().
		WithRedis(rdb).
		WithUserStore(env.store).
		WithMailer(env.mailer).
		WithClock(env.clock.Now)
	if mutate != nil {
		mutate(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// registerVerified creates an enabled user with a verified email.
func (env *testEnv) registerVerified(t *testing.T, username, email string) authcore.UserRecord {
	t.Helper()
	u, err := env.engine.Register(context.Background(), authcore.RegisterInput{
		Username: username,
		Email:    email,
		Password: testPassword,
	}, authcore.RoleUser, authcore.VerifyByAdmin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := env.engine.SetUserEnabled(context.Background(), u.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	return u
}

func (env *testEnv) user(t *testing.T, id string) authcore.UserRecord {
	t.Helper()
	u, err := env.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

// fakeProvider serves the token and userinfo endpoints of a Google-shaped
// identity provider.
type fakeProvider struct {
	mu       sync.Mutex
	user     map[string]any
	userHits atomic.Int64
}

func (f *fakeProvider) setUser(u map[string]any) {
	f.mu.Lock()
	f.user = u
	f.mu.Unlock()
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		f.userHits.Add(1)
		f.mu.Lock()
		body, _ := json.Marshal(f.user)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func withGoogle(srv *httptest.Server) func(*authcore.Config, *authcore.Builder) {
	return func(cfg *authcore.Config, b *authcore.Builder) {
		cfg.OAuth.Providers = map[oauth.ProviderName]oauth.Config{
			oauth.Google: {
				ClientID:     "client-1",
				ClientSecret: "secret-1",
				RedirectURL:  "https://app.example.com/oauth/google/callback",
				AuthURL:      srv.URL + "/auth",
				TokenURL:     srv.URL + "/token",
				UserInfoURL:  srv.URL + "/me",
			},
		}
		b.WithHTTPClient(srv.Client())
	}
}

func errData(t *testing.T, err error) map[string]any {
	t.Helper()
	ae := authcore.AsError(err)
	if ae == nil {
		t.Fatalf("expected *authcore.Error, got %T: %v", err, err)
	}
	return ae.Data
}

func fmtAny(v any) string {
	return fmt.Sprintf("%+v", v)
}
