package httpauth

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/rs/zerolog"
)

// Envelope is the JSON body of every response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// WriteJSON writes a success envelope around data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	WriteEnvelope(w, status, Envelope{Success: true, Data: data})
}

func WriteEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// Responder writes errors. It needs the cookie config for redirect errors
// and DevMode.
type Responder struct {
	cookies *Cookies
	log     zerolog.Logger
}

func NewResponder(cookies *Cookies, log zerolog.Logger) *Responder {
	return &Responder{cookies: cookies, log: log}
}

// WriteError translates err into the JSON error envelope. Errors flagged
// for a redirect instead set the redirect-error cookie and answer 302.
// Server errors carry a generic message unless DevMode is set.
func (rs *Responder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ae := authcore.AsError(err)

	if ae.ShouldRedirect && ae.RedirectURL != "" {
		rs.cookies.SetRedirectError(w, ae.Code)
		http.Redirect(w, r, ae.RedirectURL, http.StatusFound)
		return
	}

	status := ae.Kind.HTTPStatus()
	body := &ErrorBody{Code: ae.Code, Message: ae.Message, Data: ae.Data}
	if ae.Kind == authcore.KindServer {
		rs.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Data = nil
		if rs.cookies.cfg.DevMode {
			body.Message = err.Error()
		}
	}

	WriteEnvelope(w, status, Envelope{Success: false, Error: body})
}
