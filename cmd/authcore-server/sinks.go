package main

import (
	"context"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// logMailer writes outgoing mail to the log. It stands in for a real
// transport in development.
type logMailer struct {
	log zerolog.Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) (authcore.DeliveryResult, error) {
	id := uuid.NewString()
	m.log.Info().
		Str("message_id", id).
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("mail")
	return authcore.DeliveryResult{MessageID: id}, nil
}
