package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// From defaults to User.
	From string
}

// DefaultSMTPTimeout bounds a whole delivery when the caller's context has
// no earlier deadline.
const DefaultSMTPTimeout = 30 * time.Second

type SMTPNotifier struct {
	cfg     SMTPConfig
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPNotifier{cfg: cfg, timeout: DefaultSMTPTimeout, now: time.Now}
}

func (n *SMTPNotifier) Channel() string {
	return "email"
}

func (n *SMTPNotifier) RecipientFor(p types.NotificationPreferences) string {
	return strings.TrimSpace(p.Email)
}

// Send delivers m as a plain text mail through the configured relay. STARTTLS
// and PLAIN auth are used when the relay offers them. The connection carries
// the context deadline, so a relay that stops answering fails the send.
func (n *SMTPNotifier) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrDelivery, err.Error())
	}
	if n.cfg.Host == "" || n.cfg.User == "" {
		return errors.Wrap(ErrDelivery, "smtp is not configured")
	}
	if strings.ContainsAny(m.To, "\r\n") || !strings.Contains(m.To, "@") {
		return errors.Wrapf(ErrDelivery, "invalid recipient %q", m.To)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	log.Debugf("sending mail %q to %s via %s", m.Subject, m.To, addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(ErrDelivery, "smtp %s: %v", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := n.deliver(conn, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ErrDelivery, "smtp %s: %v (%v)", addr, err, ctxErr)
		}
		return errors.Wrapf(ErrDelivery, "smtp %s: %v", addr, err)
	}
	return nil
}

func (n *SMTPNotifier) deliver(conn net.Conn, m Message) error {
	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return err
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(m.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(n.compose(m)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (n *SMTPNotifier) compose(m Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.NewReplacer("\r", " ", "\n", " ").Replace(m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}
