package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/workqueue"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Configure it during initialization and
// call Build once.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	store      UserStore
	mailer     Mailer
	logger     zerolog.Logger
	auditSink  AuditSink
	httpClient *http.Client
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and the OAuth reconciliation
// lock. A cluster or failover client works as well as a single node.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPClient sets the client used for identity provider calls. Each call
// is still bounded by OAuthConfig.RequestTimeout.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithClock replaces time.Now, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and starts the background pools.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("user store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	hasher, err := password.New(cfg.Password.hasher())
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.OAuth.RequestTimeout}
	}

	// -------- IDENTITY PROVIDERS --------
	providers := make(map[oauth.ProviderName]oauth.Provider, len(cfg.OAuth.Providers))
	for name, pc := range cfg.OAuth.Providers {
		p, err := oauth.New(name, pc, httpClient)
		if err != nil {
			return nil, fmt.Errorf("oauth provider %s: %w", name, err)
		}
		providers[name] = p
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		mailer:    b.mailer,
		redis:     b.redis,
		hasher:    hasher,
		lockout:   cfg.Lockout.decider(),
		providers: providers,
		metrics:   NewMetrics(cfg.Metrics),
		log:       b.logger,
		now:       now,
	}

	// -------- SESSION REGISTRY --------
	engine.sessions = session.NewRegistry(b.redis, cfg.Session.registry(), session.WithClock(now))

	// -------- BACKGROUND WORK --------
	engine.mail = workqueue.New(workqueue.Config{
		Workers:    cfg.Mail.Workers,
		QueueSize:  cfg.Mail.QueueSize,
		DropIfFull: cfg.Mail.DropIfFull,
		OnPanic: func(r any) {
			engine.log.Error().Interface("panic", r).Msg("mail job panicked")
		},
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnPanic: func(r any) {
			engine.log.Error().Interface("panic", r).Msg("audit sink panicked")
		},
	}, b.auditSink)

	b.built = true

	return engine, nil
}
