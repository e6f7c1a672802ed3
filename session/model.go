package session

import "time"

// CurrentSchemaVersion is written into every stored record as "v".
const CurrentSchemaVersion = 1

// Fingerprint binds a session to the client that established it.
type Fingerprint struct {
	IP       string `json:"ip"`
	DeviceID string `json:"deviceId"`
}

// Redirect holds the browser destinations of an in-flight OAuth login.
type Redirect struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Session is the stored session record. Its ID is the key suffix and is not
// part of the stored value.
type Session struct {
	SchemaVersion int    `json:"v"`
	ID            string `json:"-"`

	UserID            string `json:"userId,omitempty"`
	Role              string `json:"role,omitempty"`
	UsernameDisplay   string `json:"usernameToDisplay,omitempty"`
	UsernameShorthand string `json:"usernameShorthand,omitempty"`
	Email             string `json:"email,omitempty"`
	Picture           string `json:"picture,omitempty"`

	Fingerprint   Fingerprint `json:"fingerprint"`
	IsLogged      bool        `json:"isLogged"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastTouchedAt time.Time   `json:"lastTouchedAt"`

	Redirect *Redirect `json:"redirect,omitempty"`
}

// Identity is what a login hands to [Registry.Establish].
type Identity struct {
	UserID            string
	Role              string
	UsernameDisplay   string
	UsernameShorthand string
	Email             string
	Picture           string
}

// Established is the result of a successful [Registry.Establish]. The caller
// sets SessionID and DeviceID as two separate cookies.
type Established struct {
	SessionID string
	DeviceID  string
	Session   *Session
}
