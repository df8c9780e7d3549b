// Package mailer is the notification sink: best-effort email dispatch for
// agent invitations and lead-created notices. Delivery failures are logged,
// never surfaced to the request that triggered them.
package mailer

import (
	"crm-service/pkg/config"
	"crm-service/pkg/logger"

	"go.uber.org/zap"

	gomail "gopkg.in/gomail.v2"
)

// Sink delivers a message to the given recipients.
type Sink interface {
	Send(subject, body, from string, to []string) error
}

var (
	sink        Sink
	fromAddress = "no-reply@crm.local"
)

// Initialize wires the SMTP sink from configuration. With no SMTP host
// configured, notifications are dropped (and logged at debug).
func Initialize(cfg *config.SMTPConfig) {
	fromAddress = cfg.FromAddress
	if cfg.Host == "" {
		sink = nil
		return
	}
	sink = &smtpSink{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    logger.GetLogger(),
	}
}

// SetSink replaces the sink. Used by tests to record dispatches.
func SetSink(s Sink) {
	sink = s
}

// Notify dispatches a message through the configured sink. Fire-and-forget:
// errors are logged and swallowed.
func Notify(log *zap.Logger, subject, body string, to ...string) {
	if sink == nil {
		log.Debug("Notification dropped, no mail sink configured",
			zap.String("subject", subject),
			zap.Strings("to", to))
		return
	}
	if err := sink.Send(subject, body, fromAddress, to); err != nil {
		log.Warn("Notification dispatch failed",
			zap.String("subject", subject),
			zap.Strings("to", to),
			zap.Error(err))
		return
	}
	log.Info("Notification dispatched",
		zap.String("subject", subject),
		zap.Strings("to", to))
}

// smtpSink sends asynchronously so request handlers never block on the
// mail server. The goroutine logs its own delivery failures.
type smtpSink struct {
	dialer *gomail.Dialer
	log    *zap.Logger
}

func (s *smtpSink) Send(subject, body, from string, to []string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	go func() {
		if err := s.dialer.DialAndSend(m); err != nil {
			s.log.Warn("SMTP delivery failed",
				zap.String("subject", subject),
				zap.Strings("to", to),
				zap.Error(err))
		}
	}()
	return nil
}
