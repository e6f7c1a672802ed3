package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	"github.com/MrEthical07/authcore/session"
)

type sessionContextKey struct{}
type sessionIDContextKey struct{}

// SessionFromContext returns the session authenticated by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok
}

// SessionIDFromContext returns the id of the session authenticated by
// RequireSession.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}

// ClientIP attaches the request's client address to the context.
func ClientIP(cookies *httpauth.Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithClientIP(r.Context(), cookies.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests without a logged-in session whose
// fingerprint matches the device-id cookie. A rejected fingerprint also
// clears the client's cookies.
func RequireSession(engine *authcore.Engine, cookies *httpauth.Cookies, rs *httpauth.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				rs.WriteError(w, r, authcore.ErrNotAuthenticated)
				return
			}

			sessionID := cookies.SessionID(r)
			if sessionID == "" {
				rs.WriteError(w, r, authcore.ErrNotAuthenticated)
				return
			}

			sess, err := engine.Authenticate(r.Context(), sessionID, cookies.DeviceID(r))
			if err != nil {
				if errors.Is(err, authcore.ErrNotAuthenticated) {
					cookies.ClearSession(w)
					if authcore.AsError(err).Data["sessionInvalid"] == true {
						cookies.ClearDeviceID(w)
					}
				}
				rs.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			ctx = context.WithValue(ctx, sessionIDContextKey{}, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireSession. A request without a session
// gets ErrNotAuthenticated; a session whose role is not listed gets
// ErrForbidden.
func RequireRole(rs *httpauth.Responder, roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				rs.WriteError(w, r, authcore.ErrNotAuthenticated)
				return
			}
			if !slices.Contains(roles, authcore.Role(sess.Role)) {
				rs.WriteError(w, r, authcore.ErrForbidden.WithData(map[string]any{"notAuthorized": true}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
