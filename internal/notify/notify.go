// Package notify delivers the best-effort redemption email. Delivery failure
// never affects a claim; callers log and move on.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/pwanimeetup/referral/internal/config"
)

// Notifier delivers a redemption message to the claiming email.
type Notifier interface {
	SendRedemption(ctx context.Context, email, name, code, url string) error
}

// New picks the SMTP notifier when mail is configured, otherwise a log-only
// notifier so the redemption flow behaves identically in both setups.
func New(cfg config.SMTPConfig, log *logrus.Logger) Notifier {
	if !cfg.MailEnabled() {
		log.Info("SMTP not configured, redemption emails will only be logged")
		return &LogNotifier{log: log}
	}
	return NewEmailNotifier(cfg, log)
}

// EmailNotifier sends redemption emails over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	log    *logrus.Logger
}

// NewEmailNotifier constructs an SMTP-backed notifier.
func NewEmailNotifier(cfg config.SMTPConfig, log *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

// SendRedemption delivers the claimed code and destination URL, retrying
// transient SMTP failures a few times before giving up.
func (n *EmailNotifier) SendRedemption(ctx context.Context, email, name, code, url string) error {
	greeting := "Hi"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s", name)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your referral code")

	body := fmt.Sprintf(`
		<h2>%s,</h2>
		<p>Your referral code has been redeemed.</p>
		<p>Code: <strong>%s</strong></p>
		<p><a href="%s">Claim your credit here</a></p>
		<p>This code is tied to your email and can only be used once.</p>
	`, greeting, code, url)

	m.SetBody("text/html", body)

	backoff := retry.WithMaxRetries(2, retry.NewConstant(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.dialer.DialAndSend(m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to send redemption email: %w", err)
	}

	return nil
}

// LogNotifier records the redemption instead of mailing it.
type LogNotifier struct {
	log *logrus.Logger
}

// SendRedemption logs the would-be delivery.
func (n *LogNotifier) SendRedemption(ctx context.Context, email, name, code, url string) error {
	n.log.WithFields(logrus.Fields{
		"email": email,
		"code":  code,
		"url":   url,
	}).Info("Redemption email suppressed (SMTP disabled)")
	return nil
}
