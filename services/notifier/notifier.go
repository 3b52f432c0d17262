// Package notifier delivers price alert emails. Resend's HTTP API is
// the primary transport; plain SMTP is the fallback for setups without
// an API key.
package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/notifier")

const resendEndpoint = "https://api.resend.com/emails"

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	EmailTo      string     `json:"email_to"`
	ResendAPIKey string     `json:"resend_api_key"`
	Smtp         SmtpConfig `json:"smtp"`
}

// ConfigFromEnv assembles notification config from environment
// variables: EMAIL_TO plus either RESEND_API_KEY or SMTP_SERVER,
// SMTP_PORT, SMTP_EMAIL, SMTP_PASSWORD.
func ConfigFromEnv() (Config, error) {
	config := Config{
		EmailTo:      os.Getenv("EMAIL_TO"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		Smtp: SmtpConfig{
			Server:       os.Getenv("SMTP_SERVER"),
			EmailAddress: os.Getenv("SMTP_EMAIL"),
			Password:     os.Getenv("SMTP_PASSWORD"),
		},
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SMTP_PORT %q: %w", port, err)
		}
		config.Smtp.Port = p
	}

	if config.EmailTo == "" {
		return Config{}, fmt.Errorf("EMAIL_TO environment variable is required")
	}
	if config.ResendAPIKey == "" && config.Smtp.Server == "" {
		return Config{}, fmt.Errorf("either RESEND_API_KEY or SMTP_SERVER must be set")
	}
	return config, nil
}

type Notifier struct {
	config Config
	http   *resty.Client
}

func New(config Config) *Notifier {
	return &Notifier{
		config: config,
		http:   resty.New().SetBaseURL(resendEndpoint),
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (n *Notifier) send(ctx context.Context, subject, html string) error {
	ctx, span := tracer.Start(ctx, "send")
	defer span.End()

	if n.config.ResendAPIKey != "" {
		res, err := n.http.R().
			SetContext(ctx).
			SetAuthToken(n.config.ResendAPIKey).
			SetBody(resendPayload{
				From:    "Price Tracker <onboarding@resend.dev>",
				To:      []string{n.config.EmailTo},
				Subject: subject,
				HTML:    html,
			}).
			Post("")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resend request failed")
			return err
		}
		if res.IsError() {
			err := fmt.Errorf("resend returned %s: %s", res.Status(), res.String())
			span.RecordError(err)
			span.SetStatus(codes.Error, "resend rejected email")
			return err
		}
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Price Tracker <%s>", n.config.Smtp.EmailAddress)
	mail.To = []string{n.config.EmailTo}
	mail.Subject = subject
	mail.HTML = []byte(html)

	addr := fmt.Sprintf("%s:%d", n.config.Smtp.Server, n.config.Smtp.Port)
	err := mail.Send(addr, smtp.PlainAuth(
		"", n.config.Smtp.EmailAddress, n.config.Smtp.Password, n.config.Smtp.Server,
	))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "smtp send failed")
		return err
	}
	return nil
}

// SendPriceAlert emails a summary of the cycle's price changes and any
// newly discovered variants.
func (n *Notifier) SendPriceAlert(ctx context.Context, changes []ProductChange, variants []NewVariant) error {
	if len(changes) == 0 && len(variants) == 0 {
		return nil
	}

	drops := 0
	for _, c := range changes {
		if c.CurrentPrice < c.PreviousPrice {
			drops++
		}
	}
	increases := len(changes) - drops

	var subject string
	switch {
	case len(changes) == 0:
		subject = fmt.Sprintf("New product variants found (%d)", len(variants))
	case drops > 0 && increases == 0:
		subject = fmt.Sprintf("Price Drop Alert! %d product(s) cheaper", drops)
	case increases > 0 && drops == 0:
		subject = fmt.Sprintf("Price Increase Alert - %d product(s) more expensive", increases)
	default:
		subject = fmt.Sprintf("Mixed Price Changes - %d update(s)", len(changes))
	}

	html, err := renderPriceAlert(changes, variants)
	if err != nil {
		return err
	}
	return n.send(ctx, subject, html)
}

// SendEANDropAlert emails cross-store price drops for EAN-tracked
// products.
func (n *Notifier) SendEANDropAlert(ctx context.Context, drops []EANDrop) error {
	if len(drops) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Price Drop Alert! %d product(s) cheaper across stores", len(drops))
	for _, d := range drops {
		if d.BestEver {
			subject = fmt.Sprintf("Best Price Ever! %d product(s) at all-time low", len(drops))
			break
		}
	}

	html, err := renderEANDropAlert(drops)
	if err != nil {
		return err
	}
	return n.send(ctx, subject, html)
}

// SendFailureAlert emails an operator-facing health alert when a
// monitoring cycle produces nothing at all.
func (n *Notifier) SendFailureAlert(ctx context.Context, monitor, details string) error {
	html, err := renderFailureAlert(monitor, details)
	if err != nil {
		return err
	}
	return n.send(ctx, "Scraper Failure Alert - Action Required", html)
}

// SendReport emails a pre-rendered analysis report.
func (n *Notifier) SendReport(ctx context.Context, subject, html string) error {
	return n.send(ctx, subject, html)
}

// SendTestEmail verifies the delivery configuration end to end.
func (n *Notifier) SendTestEmail(ctx context.Context) error {
	html, err := renderTestEmail()
	if err != nil {
		return err
	}
	return n.send(ctx, "Test Email - Price Tracker", html)
}
