package local

import (
	"context"

	"github.com/agencykit/proposta"
)

// LogMailer writes outgoing mail to the logger instead of delivering it.
// Useful for development and as the default until SMTP is wired.
type LogMailer struct {
	logger proposta.Logger
}

func NewLogMailer(logger proposta.Logger) *LogMailer {
	if logger == nil {
		logger = proposta.DefaultLogger()
	}
	return &LogMailer{logger: logger}
}

var _ proposta.Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail to=%s subject=%q", to, subject)
	m.logger.Info("mail body: %s", body)
	return nil
}
