package main

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	redisrate "github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type server struct {
	engine   *authcore.Engine
	cookies  *httpauth.Cookies
	rs       *httpauth.Responder
	log      zerolog.Logger
	limiter  *ipRateLimiter
	mailRate *redisrate.Limiter
	siteURL  string
	regRole  authcore.Role
	regMode  authcore.RegistrationMode
	metrics  http.Handler
	otelDump http.Handler
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientIP(s.cookies))
	r.Use(requestLogger(s.log))

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.otelDump != nil {
		r.Handle("/metrics/otel", s.otelDump)
	}

	requireSession := middleware.RequireSession(s.engine, s.cookies, s.rs)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/users/session", s.getSession)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/users", s.register)
			r.Post("/users/login", s.login(authcore.RoleUser, authcore.RoleManager, authcore.RoleAdmin))
			r.Post("/admins/login", s.login(authcore.RoleAdmin, authcore.RoleManager))
			r.Put("/users/email/verification", s.verifyEmail)
			r.With(s.mailThrottle).Put("/users/email/verification/token", s.sendVerificationToken)
			r.With(s.mailThrottle).Put("/users/password/recover/link-token", s.sendPasswordResetLink)
			r.Put("/users/password/from-link", s.resetPassword)
		})

		r.With(requireSession).Get("/users/logout", s.logout)
		r.With(requireSession, s.limiter.Middleware).Put("/users/password", s.changePassword)
	})

	r.Route("/oauth/users/{provider}", func(r chi.Router) {
		r.Get("/url", s.oauthURL)
		r.Get("/login", s.oauthLogin)
	})

	r.Route("/admins", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(middleware.RequireRole(s.rs, authcore.RoleAdmin))

		r.Post("/users", s.adminCreateUser)
		r.Put("/users/{userId}", s.adminUpdateUser)
		r.Delete("/users/{userId}", s.adminDeleteUser)
		r.Put("/users/{userId}/unblock", s.adminUnblockUser)
		r.Delete("/users/{userId}/sessions", s.adminRevokeUserSessions)
		r.Get("/sessions", s.adminListSessions)
		r.Delete("/sessions/{sessionId}", s.adminRevokeSession)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			event := log.Info()
			if status >= 500 {
				event = log.Error()
			} else if status >= 400 {
				event = log.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", authcore.ClientIPFromContext(r.Context())).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// health reports Redis reachability and the background drop counters. An
// unreachable Redis answers 503.
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	body := map[string]any{
		"ok":           err == nil,
		"redisLatency": latency.String(),
		"auditDropped": s.engine.AuditDropped(),
		"mailDropped":  s.engine.MailDropped(),
	}
	if err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		httpauth.WriteEnvelope(w, http.StatusServiceUnavailable, httpauth.Envelope{Data: body})
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, body)
}

// mailThrottle limits requests that send mail per client IP across every
// instance. A Redis failure lets the request through.
func (s *server) mailThrottle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.mailRate.Allow(r.Context(), authcore.ClientIPFromContext(r.Context()))
		if err != nil {
			s.log.Warn().Err(err).Msg("mail rate limit unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			httpauth.WriteEnvelope(w, http.StatusTooManyRequests, httpauth.Envelope{
				Error: &httpauth.ErrorBody{Code: "TOO_MANY_REQUESTS", Message: "too many requests"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body into dst. Any decoding failure is reported as
// invalid input.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return authcore.ErrInvalidInput.WithCause(err)
	}
	return nil
}
