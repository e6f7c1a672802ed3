package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/session"
	"github.com/go-chi/chi/v5"
)

func listQuery(r *http.Request) (session.ListQuery, error) {
	q := r.URL.Query()
	out := session.ListQuery{
		Search: q.Get("search"),
		Role:   strings.ToUpper(q.Get("role")),
		Sort:   q.Get("sort"),
	}
	for name, dst := range map[string]*int{"page": &out.Page, "pageSize": &out.PageSize} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return session.ListQuery{}, authcore.ErrInvalidInput.WithData(map[string]any{name: raw})
		}
		*dst = n
	}
	return out, nil
}

func (s *server) adminListSessions(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	page, err := s.engine.ListActiveSessions(r.Context(), middleware.SessionIDFromContext(r.Context()), q)
	if err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, page)
}

func (s *server) adminRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.engine.RevokeSession(ctx, middleware.SessionIDFromContext(ctx), chi.URLParam(r, "sessionId")); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
		Enabled  bool   `json:"enabled"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}

	role := authcore.Role(strings.ToUpper(body.Role))
	if body.Role == "" {
		role = authcore.RoleUser
	}
	user, err := s.engine.Register(r.Context(), authcore.RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	}, role, authcore.VerifyByAdmin)
	if err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if body.Enabled {
		if err := s.engine.SetUserEnabled(r.Context(), user.ID, true); err != nil {
			s.rs.WriteError(w, r, err)
			return
		}
		user.Enabled = true
	}
	httpauth.WriteJSON(w, http.StatusCreated, userViewOf(user))
}

func (s *server) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role    *string `json:"role"`
		Enabled *bool   `json:"enabled"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if body.Role == nil && body.Enabled == nil {
		s.rs.WriteError(w, r, authcore.ErrInvalidInput)
		return
	}

	userID := chi.URLParam(r, "userId")
	if body.Role != nil {
		if err := s.engine.SetUserRole(r.Context(), userID, authcore.Role(strings.ToUpper(*body.Role))); err != nil {
			s.rs.WriteError(w, r, err)
			return
		}
	}
	if body.Enabled != nil {
		if err := s.engine.SetUserEnabled(r.Context(), userID, *body.Enabled); err != nil {
			s.rs.WriteError(w, r, err)
			return
		}
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteUser(r.Context(), chi.URLParam(r, "userId")); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) adminUnblockUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnblockAccount(r.Context(), chi.URLParam(r, "userId")); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) adminRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RevokeUserSessions(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}
