package main

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
	"github.com/go-chi/chi/v5"
)

// siteTarget resolves a client-supplied path against the site URL. Anything
// but an absolute path falls back to the site root.
func (s *server) siteTarget(path string) string {
	base := strings.TrimRight(s.siteURL, "/")
	if !strings.HasPrefix(path, "/") {
		return base + "/"
	}
	return base + path
}

func (s *server) oauthURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := session.Redirect{
		Success: s.siteTarget(r.URL.Query().Get("onSuccess")),
		Error:   s.siteTarget(r.URL.Query().Get("onError")),
	}

	start, err := s.engine.BeginAuthorization(ctx, chi.URLParam(r, "provider"))
	if err != nil {
		s.rs.WriteError(w, r, authcore.AsError(err).WithRedirect(target.Error))
		return
	}

	current := s.cookies.SessionID(r)
	id, err := s.engine.StashRedirect(ctx, current, target)
	if err != nil {
		s.rs.WriteError(w, r, authcore.AsError(err).WithRedirect(target.Error))
		return
	}
	if id != current {
		if err := s.cookies.SetSession(w, id); err != nil {
			s.rs.WriteError(w, r, authcore.ErrInternal.WithCause(err).WithRedirect(target.Error))
			return
		}
	}

	s.cookies.SetPKCE(w, start.State, start.CodeVerifier)
	http.Redirect(w, r, start.RedirectURL, http.StatusFound)
}

func (s *server) oauthLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, verifier := s.cookies.TakePKCE(w, r)

	target := session.Redirect{Success: s.siteTarget(""), Error: s.siteTarget("")}
	if id := s.cookies.SessionID(r); id != "" {
		stashed, err := s.engine.TakeRedirect(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Msg("oauth redirect lookup failed")
		}
		if stashed.Success != "" {
			target.Success = stashed.Success
		}
		if stashed.Error != "" {
			target.Error = stashed.Error
		}
	}

	q := r.URL.Query()
	user, err := s.engine.CompleteLogin(ctx, chi.URLParam(r, "provider"), q.Get("code"), q.Get("state"), state, verifier)
	if err != nil {
		s.rs.WriteError(w, r, authcore.AsError(err).WithRedirect(target.Error))
		return
	}
	if _, err := s.startSession(w, r, user); err != nil {
		s.rs.WriteError(w, r, authcore.AsError(err).WithRedirect(target.Error))
		return
	}
	http.Redirect(w, r, target.Success, http.StatusFound)
}
