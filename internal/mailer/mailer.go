// Package mailer composes the HTML report mail and delivers it over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/k3a/html2text"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/Afrawles/redmine-alarm/internal/config"
	"github.com/Afrawles/redmine-alarm/internal/logging"
)

// AuthError means the server rejected the login.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("smtp authentication failed: %d %s", e.Code, e.Message)
}

// RecipientsRefusedError means every recipient was refused and nothing was sent.
type RecipientsRefusedError struct {
	Refused map[string]*smtp.SMTPError
}

func (e *RecipientsRefusedError) Error() string {
	addrs := make([]string, 0, len(e.Refused))
	for addr := range e.Refused {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return fmt.Sprintf("all recipients refused: %s", strings.Join(addrs, ", "))
}

// DialFunc opens an SMTP session to addr.
type DialFunc func(ctx context.Context, addr string) (*smtp.Client, error)

type Mailer struct {
	cfg config.MailConfig
	log *zap.Logger

	// Dial defaults to implicit TLS, or STARTTLS when configured.
	Dial DialFunc
	Now  func() time.Time
}

func New(cfg config.MailConfig, log *zap.Logger) *Mailer {
	log = logging.OrNop(log)
	m := &Mailer{cfg: cfg, log: log, Now: time.Now}
	m.Dial = m.dialTLS
	return m
}

func (m *Mailer) Addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

func (m *Mailer) dialTLS(ctx context.Context, addr string) (*smtp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		ServerName: m.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	if m.cfg.StartTLS {
		return smtp.DialStartTLS(addr, tlsConfig)
	}
	return smtp.DialTLS(addr, tlsConfig)
}

// Compose builds a multipart/alternative message carrying a plain-text
// rendition of html followed by html itself.
func (m *Mailer) Compose(subject, html string) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.Now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: m.cfg.From}})

	var to []*mail.Address
	for _, addr := range m.cfg.Recipients() {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	if err := h.GenerateMessageID(); err != nil {
		return nil, errs.Wrap(err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, errs.Wrap(err)
	}

	if err := writePart(w, "text/plain", html2text.HTML2Text(html)); err != nil {
		return nil, err
	}
	if err := writePart(w, "text/html", html); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, errs.Wrap(err)
	}
	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := w.CreatePart(h)
	if err != nil {
		return errs.Wrap(err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return errs.Wrap(err)
	}
	return errs.Wrap(pw.Close())
}

// Send delivers the report once. Refused recipients are logged as long as
// at least one address accepts the message.
func (m *Mailer) Send(ctx context.Context, subject, html string) error {
	recipients := m.cfg.Recipients()
	if len(recipients) == 0 {
		return errs.New("no recipients configured")
	}

	msg, err := m.Compose(subject, html)
	if err != nil {
		return errs.New("compose mail: %w", err)
	}

	addr := m.Addr()
	c, err := m.Dial(ctx, addr)
	if err != nil {
		return errs.New("connect to %s: %w", addr, err)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", m.cfg.User, m.cfg.Password)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return &AuthError{Code: smtpErr.Code, Message: smtpErr.Message}
		}
		return errs.New("authenticate: %w", err)
	}

	if err := c.Mail(m.cfg.From, nil); err != nil {
		return errs.New("mail from %s: %w", m.cfg.From, err)
	}

	refused := make(map[string]*smtp.SMTPError)
	for _, rcpt := range recipients {
		err := c.Rcpt(rcpt, nil)
		if err == nil {
			continue
		}
		var smtpErr *smtp.SMTPError
		if !errors.As(err, &smtpErr) {
			return errs.New("rcpt to %s: %w", rcpt, err)
		}
		refused[rcpt] = smtpErr
		m.log.Warn("recipient refused",
			zap.String("recipient", rcpt),
			zap.Int("code", smtpErr.Code),
			zap.String("message", smtpErr.Message))
	}
	if len(refused) == len(recipients) {
		return &RecipientsRefusedError{Refused: refused}
	}

	wc, err := c.Data()
	if err != nil {
		return errs.New("data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return errs.New("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return errs.New("finish message: %w", err)
	}

	if err := c.Quit(); err != nil {
		m.log.Debug("quit failed", zap.Error(err))
	}

	m.log.Info("mail sent",
		zap.String("subject", subject),
		zap.Int("recipients", len(recipients)-len(refused)))
	return nil
}
