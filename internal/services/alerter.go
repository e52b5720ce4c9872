package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"alfredoptarigan/applicant-screener/internal/logger"
)

// Alerter tells an operator something needs a human.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type EmailAlertConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

type emailAlerter struct {
	cfg EmailAlertConfig
	log *zap.Logger
}

func NewEmailAlerter(cfg EmailAlertConfig, log *zap.Logger) (Alerter, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("no alert recipients configured")
	}
	return &emailAlerter{cfg: cfg, log: logger.OrNop(log).With(zap.String("component", "alerter"))}, nil
}

func (e *emailAlerter) Alert(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(e.cfg.SMTPHost, e.cfg.SMTPPort, e.cfg.Username, e.cfg.Password)
	d.SSL = e.cfg.SMTPPort == 465

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	e.log.Info("alert sent", zap.String("subject", subject), zap.Int("recipients", len(e.cfg.To)))
	return nil
}

type logAlerter struct {
	log *zap.Logger
}

func NewLogAlerter(log *zap.Logger) Alerter {
	return &logAlerter{log: logger.OrNop(log).With(zap.String("component", "alerter"))}
}

func (l *logAlerter) Alert(_ context.Context, subject, body string) error {
	l.log.Error("operator alert", zap.String("subject", subject), zap.String("body", body))
	return nil
}
