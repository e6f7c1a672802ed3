package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	"github.com/MrEthical07/authcore/internal/config"
	redisrate "github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type appDeps struct {
	cfg        *config.AppConfig
	log        zerolog.Logger
	redis      redis.UniversalClient
	store      authcore.UserStore
	mailer     authcore.Mailer
	httpClient *http.Client
}

// app owns the engine and the metric pipeline behind the HTTP server.
type app struct {
	srv      *server
	engine   *authcore.Engine
	provider *sdkmetric.MeterProvider
	exporter *otel.Exporter
}

func newApp(ctx context.Context, d appDeps) (*app, error) {
	role, err := d.cfg.RegistrationRole()
	if err != nil {
		return nil, err
	}
	mode, err := d.cfg.RegistrationMode()
	if err != nil {
		return nil, err
	}

	b := authcore.New().
		WithConfig(d.cfg.Engine()).
		WithRedis(d.redis).
		WithUserStore(d.store).
		WithMailer(d.mailer).
		WithLogger(d.log).
		WithAuditSink(authcore.NewLogSink(d.log.With().Str("component", "audit").Logger()))
	if d.httpClient != nil {
		b.WithHTTPClient(d.httpClient)
	}
	engine, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := bootstrapAdmin(ctx, engine, d.cfg.Admin, d.log); err != nil {
		engine.Close()
		return nil, err
	}

	signer, err := jwt.NewManager(jwt.Config{
		TTL:           d.cfg.Cookies.SessionMaxAge,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(d.cfg.Cookies.Secret),
		Issuer:        "authcore",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	cookieCfg := httpauth.DefaultConfig()
	cookieCfg.DevMode = d.cfg.Cookies.DevMode
	cookieCfg.Domain = d.cfg.Cookies.Domain
	cookieCfg.TrustProxyHeaders = d.cfg.Cookies.TrustProxyHeaders
	if d.cfg.Cookies.SessionMaxAge > 0 {
		cookieCfg.SessionMaxAge = d.cfg.Cookies.SessionMaxAge
	}
	cookies, err := httpauth.NewCookies(cookieCfg, signer)
	if err != nil {
		engine.Close()
		return nil, err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter, err := otel.NewExporter(provider.Meter("github.com/MrEthical07/authcore"), engine)
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &app{
		engine:   engine,
		provider: provider,
		exporter: exporter,
		srv: &server{
			engine:   engine,
			cookies:  cookies,
			rs:       httpauth.NewResponder(cookies, d.log),
			log:      d.log,
			limiter:  newIPRateLimiter(d.cfg.HTTP.RateLimitRPS, d.cfg.HTTP.RateLimitBurst),
			mailRate: redisrate.New(d.redis, redisrate.Config{
				Prefix: "authrate:mail:",
				Limit:  d.cfg.HTTP.MailLimit,
				Window: d.cfg.HTTP.MailWindow,
			}),
			siteURL:  d.cfg.SiteURL,
			regRole:  role,
			regMode:  mode,
			metrics:  prometheus.NewExporter(engine).Handler(),
			otelDump: otelHandler(reader),
		},
	}, nil
}

// bootstrapAdmin creates the configured admin on a deployment that has none.
func bootstrapAdmin(ctx context.Context, engine *authcore.Engine, cfg config.AdminConfig, log zerolog.Logger) error {
	if cfg.Email == "" {
		return nil
	}
	created, err := engine.EnsureAdmin(ctx, authcore.RegisterInput{
		Username: cfg.Username,
		Email:    cfg.Email,
		Password: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if !created {
		log.Debug().Msg("admin already present, bootstrap skipped")
	}
	return nil
}

func (a *app) Close() {
	_ = a.exporter.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.provider.Shutdown(ctx)
	a.engine.Close()
}

// otelHandler collects the manual reader and writes every int64 data point
// by instrument name.
func otelHandler(reader *sdkmetric.ManualReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(r.Context(), &rm); err != nil {
			httpauth.WriteEnvelope(w, http.StatusInternalServerError, httpauth.Envelope{
				Error: &httpauth.ErrorBody{Code: authcore.CodeInternalServerError, Message: "metrics collection failed"},
			})
			return
		}

		out := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				switch data := m.Data.(type) {
				case metricdata.Sum[int64]:
					for _, dp := range data.DataPoints {
						out[m.Name] += dp.Value
					}
				case metricdata.Gauge[int64]:
					for _, dp := range data.DataPoints {
						out[m.Name] += dp.Value
					}
				}
			}
		}
		httpauth.WriteJSON(w, http.StatusOK, out)
	})
}
