package devbackend

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/rs/zerolog"
)

// LogLinkSender writes reset links to the log, and optionally to out, in
// place of sending email
type LogLinkSender struct {
	out    io.Writer
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogLinkSender creates a sender that only logs
func NewLogLinkSender() *LogLinkSender {
	return &LogLinkSender{
		logger: logging.NewLogger("reset_links"),
		now:    time.Now,
	}
}

// NewWriterLinkSender creates a sender that also prints the rendered message to out
func NewWriterLinkSender(out io.Writer) *LogLinkSender {
	s := NewLogLinkSender()
	s.out = out
	return s
}

// SendResetLink renders the reset message and delivers it
func (s *LogLinkSender) SendResetLink(_ context.Context, email, link string, expiresAt time.Time) error {
	pages, err := templates.LoadPageConfig()
	if err != nil {
		return err
	}

	minutes := int(expiresAt.Sub(s.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	text, err := templates.RenderResetLinkText(templates.ResetLinkData{
		Subject:       pages.ResetLink.Subject,
		Intro:         pages.ResetLink.Intro,
		IgnoreText:    pages.ResetLink.IgnoreText,
		Link:          link,
		ExpiryMinutes: minutes,
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("email", email).
		Time("expires_at", expiresAt).
		Msg("password reset link issued")

	if s.out != nil {
		if _, err := fmt.Fprintf(s.out, "To: %s\n%s\n", email, text); err != nil {
			return fmt.Errorf("failed to write reset link: %w", err)
		}
	}
	return nil
}
