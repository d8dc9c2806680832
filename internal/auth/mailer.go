package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers sign-in emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is used
// when SMTP_HOST is unset, so local sign-in works by copying the link from
// the server output.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email not sent (no SMTP configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// SMTPConfig is the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds one delivery from dial to QUIT. Default 15s.
	Timeout time.Duration
}

// SMTPMailer sends through an SMTP relay. STARTTLS is used when the relay
// offers it, and PLAIN auth when a username is configured.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer net.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg}
}

// Send delivers msg. It returns once ctx is done or the configured timeout
// passes, even when the relay stops answering mid-conversation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("auth: refusing to send mail with line breaks in headers")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	email := mail.NewMsg()
	if err := email.From(m.cfg.From); err != nil {
		return fmt.Errorf("auth: invalid sender %q: %w", m.cfg.From, err)
	}
	if err := email.To(msg.To); err != nil {
		return fmt.Errorf("auth: invalid recipient %q: %w", msg.To, err)
	}
	email.Subject(msg.Subject)
	email.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(m.dial(ctx)),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("auth: configuring SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		if ctxErr := expired(ctx); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return fmt.Errorf("auth: sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// expired reports ctx's error, treating a passed deadline as exceeded even
// if the context's own timer has not fired yet.
func expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

// dial opens the relay connection with a deadline taken from sendCtx and
// forces pending reads to fail once sendCtx is cancelled, so a relay that
// accepts the connection but never greets cannot hold the caller.
func (m *SMTPMailer) dial(sendCtx context.Context) mail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		conn, err := m.dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := sendCtx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		context.AfterFunc(sendCtx, func() {
			_ = conn.SetDeadline(time.Now())
		})
		return conn, nil
	}
}
