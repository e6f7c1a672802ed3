package main

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpauth"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/session"
)

type sessionView struct {
	IsLogged          bool   `json:"isLogged"`
	Role              string `json:"role,omitempty"`
	UsernameShorthand string `json:"usernameShorthand,omitempty"`
	UsernameToDisplay string `json:"usernameToDisplay,omitempty"`
	Email             string `json:"email,omitempty"`
	Avatar            string `json:"avatar,omitempty"`
}

func viewOf(sess *session.Session) sessionView {
	if sess == nil || !sess.IsLogged {
		return sessionView{}
	}
	return sessionView{
		IsLogged:          true,
		Role:              sess.Role,
		UsernameShorthand: sess.UsernameShorthand,
		UsernameToDisplay: sess.UsernameDisplay,
		Email:             sess.Email,
		Avatar:            sess.Picture,
	}
}

type userView struct {
	ID                string        `json:"id"`
	Username          string        `json:"username"`
	UsernameToDisplay string        `json:"usernameToDisplay"`
	Email             string        `json:"email"`
	Role              authcore.Role `json:"role"`
	Enabled           bool          `json:"enabled"`
	EmailVerified     bool          `json:"emailVerified"`
}

func userViewOf(u authcore.UserRecord) userView {
	return userView{
		ID:                u.ID,
		Username:          u.Username,
		UsernameToDisplay: u.UsernameDisplay,
		Email:             u.Email,
		Role:              u.Role,
		Enabled:           u.Enabled,
		EmailVerified:     u.EmailVerification.Verified,
	}
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	id := s.cookies.SessionID(r)
	if id == "" {
		httpauth.WriteJSON(w, http.StatusOK, sessionView{})
		return
	}
	sess, err := s.engine.GetSession(r.Context(), id)
	if err != nil {
		if authcore.AsError(err).Kind == authcore.KindServer {
			s.rs.WriteError(w, r, err)
			return
		}
		httpauth.WriteJSON(w, http.StatusOK, sessionView{})
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, viewOf(sess))
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}

	user, err := s.engine.Register(r.Context(), authcore.RegisterInput{
		Username:    body.Username,
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	}, s.regRole, s.regMode)
	if err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusCreated, userViewOf(user))
}

// login verifies credentials for one of roles and establishes a session.
func (s *server) login(roles ...authcore.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decode(w, r, &body); err != nil {
			s.rs.WriteError(w, r, err)
			return
		}

		user, err := s.engine.VerifyLogin(r.Context(), body.Email, body.Password, roles...)
		if err != nil {
			s.rs.WriteError(w, r, err)
			return
		}
		est, err := s.startSession(w, r, user)
		if err != nil {
			s.rs.WriteError(w, r, err)
			return
		}
		httpauth.WriteJSON(w, http.StatusOK, viewOf(est.Session))
	}
}

// startSession replaces any session the client holds with a fresh one and
// sets both cookies.
func (s *server) startSession(w http.ResponseWriter, r *http.Request, user authcore.AuthenticatedUser) (session.Established, error) {
	if old := s.cookies.SessionID(r); old != "" {
		if err := s.engine.Logout(r.Context(), old); err != nil {
			s.log.Warn().Err(err).Msg("previous session cleanup failed")
		}
	}

	est, err := s.engine.EstablishSession(r.Context(), user)
	if err != nil {
		return session.Established{}, err
	}
	if err := s.cookies.SetSession(w, est.SessionID); err != nil {
		return session.Established{}, authcore.ErrInternal.WithCause(err)
	}
	s.cookies.SetDeviceID(w, est.DeviceID)
	return est, nil
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), middleware.SessionIDFromContext(r.Context())); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	s.cookies.ClearSession(w)
	s.cookies.ClearDeviceID(w)
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if err := s.engine.VerifyEmail(r.Context(), body.Email, body.Token); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) sendVerificationToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if err := s.engine.RequestEmailVerification(r.Context(), body.Email); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) sendPasswordResetLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), body.Email, body.Token, body.Password); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPassword string `json:"oldPassword"`
		Password    string `json:"password"`
	}
	if err := decode(w, r, &body); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	sessionID := middleware.SessionIDFromContext(r.Context())
	if err := s.engine.ChangePassword(r.Context(), sess.UserID, sessionID, body.OldPassword, body.Password); err != nil {
		s.rs.WriteError(w, r, err)
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, nil)
}
