package mail

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/giall/hecate/notify"
)

// LogSender writes the token link to the log instead of mailing it.
// Intended for local development only: links are bearer credentials.
type LogSender struct {
	site Site
	log  zerolog.Logger
}

func NewLogSender(site Site, log zerolog.Logger) *LogSender {
	return &LogSender{site: site, log: log}
}

func (s *LogSender) Send(_ context.Context, msg notify.Message) error {
	r, err := s.site.Render(msg)
	if err != nil {
		return err
	}
	s.log.Debug().
		Str("kind", string(msg.Kind)).
		Str("to", msg.Email).
		Str("subject", r.Subject).
		Str("link", r.Link).
		Msg("mail not sent, smtp disabled")
	return nil
}
