package notify

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"easy2trade/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relay is a minimal SMTP server that accepts one mail per connection
// without STARTTLS or AUTH.
func relay(t *testing.T) (SMTPConfig, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	mails := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(line); {
			case strings.HasPrefix(cmd, "EHLO"):
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				_ = tp.PrintfLine("250 OK")
			case strings.HasPrefix(cmd, "DATA"):
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				mails <- string(body)
				_ = tp.PrintfLine("250 queued")
			case strings.HasPrefix(cmd, "QUIT"):
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return SMTPConfig{Host: host, Port: p, User: "bot@example.com"}, mails
}

func TestSMTPNotifierSend(t *testing.T) {
	cfg, mails := relay(t)
	n := NewSMTPNotifier(cfg)
	n.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	err := n.Send(context.Background(), Message{To: "me@example.com", Subject: "Price Alert", Body: "line one\nline two"})
	require.NoError(t, err)

	select {
	case mail := <-mails:
		assert.Contains(t, mail, "From: bot@example.com\n")
		assert.Contains(t, mail, "To: me@example.com\n")
		assert.Contains(t, mail, "Subject: Price Alert\n")
		assert.Contains(t, mail, "\n\nline one\nline two")
	case <-time.After(5 * time.Second):
		t.Fatal("relay received no mail")
	}
}

func TestSMTPNotifierSilentRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	})

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	n := NewSMTPNotifier(SMTPConfig{Host: host, Port: p, User: "bot@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = n.Send(ctx, Message{To: "me@example.com", Subject: "Price Alert"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Less(t, time.Since(start), 3*time.Second)

	n.timeout = 200 * time.Millisecond
	start = time.Now()
	err = n.Send(context.Background(), Message{To: "me@example.com"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPNotifierFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	n := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, User: "bot@example.com"})
	err = n.Send(context.Background(), Message{To: "me@example.com"})
	assert.ErrorIs(t, err, ErrDelivery, "nothing listens on the relay port")

	err = n.Send(context.Background(), Message{To: "me@example.com\r\nBcc: x@y"})
	assert.ErrorIs(t, err, ErrDelivery)

	err = NewSMTPNotifier(SMTPConfig{}).Send(context.Background(), Message{To: "me@example.com"})
	assert.ErrorIs(t, err, ErrDelivery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = n.Send(ctx, Message{To: "me@example.com"})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestSMTPRecipient(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{})
	assert.Equal(t, "me@example.com", n.RecipientFor(types.NotificationPreferences{Email: " me@example.com "}))
	assert.Empty(t, n.RecipientFor(types.NotificationPreferences{}))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotifier(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, defaultChat: 7}

	assert.Equal(t, "7", n.RecipientFor(types.NotificationPreferences{}))
	assert.Equal(t, "42", n.RecipientFor(types.NotificationPreferences{TelegramChatID: 42}))

	require.NoError(t, n.Send(context.Background(), Message{To: "42", Subject: "Price Alert: SOL", Body: "up 6.00%"}))
	require.Len(t, bot.sent, 1)
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "*Price Alert: SOL*\n\nup 6\\.00%", msg.Text)

	assert.ErrorIs(t, n.Send(context.Background(), Message{To: "abc"}), ErrDelivery)

	bot.err = errors.New("chat not found")
	assert.ErrorIs(t, n.Send(context.Background(), Message{To: "42"}), ErrDelivery)
}
