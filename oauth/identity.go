package oauth

import (
	"fmt"
	"net/mail"
	"strings"
)

func validateIdentity(id Identity) (Identity, error) {
	id.ExternalID = strings.TrimSpace(id.ExternalID)
	id.Name = strings.TrimSpace(id.Name)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))

	if id.ExternalID == "" {
		return Identity{}, fmt.Errorf("%w: missing id", ErrInvalidUserInfo)
	}
	if id.Name == "" {
		return Identity{}, fmt.Errorf("%w: missing name", ErrInvalidUserInfo)
	}
	addr, err := mail.ParseAddress(id.Email)
	if err != nil || addr.Address != id.Email {
		return Identity{}, fmt.Errorf("%w: invalid email", ErrInvalidUserInfo)
	}
	return id, nil
}
