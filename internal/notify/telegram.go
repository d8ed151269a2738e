package notify

import (
	"context"
	"strconv"

	"easy2trade/internal/types"
	"easy2trade/lib/helpers"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to a chat. The chat id comes from the saved
// preferences, falling back to a default one from the config.
type TelegramNotifier struct {
	bot         sender
	defaultChat int64
}

func NewTelegramNotifier(token string, defaultChat int64, debug bool) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	bot.Debug = debug
	return &TelegramNotifier{bot: bot, defaultChat: defaultChat}, nil
}

func (n *TelegramNotifier) Channel() string {
	return "telegram"
}

func (n *TelegramNotifier) RecipientFor(p types.NotificationPreferences) string {
	chat := p.TelegramChatID
	if chat == 0 {
		chat = n.defaultChat
	}
	if chat == 0 {
		return ""
	}
	return strconv.FormatInt(chat, 10)
}

func (n *TelegramNotifier) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrDelivery, err.Error())
	}
	chatID, err := strconv.ParseInt(m.To, 10, 64)
	if err != nil {
		return errors.Wrapf(ErrDelivery, "invalid chat id %q", m.To)
	}

	text := "*" + helpers.EscapeMarkdownV2(m.Subject) + "*\n\n" + helpers.EscapeMarkdownV2(m.Body)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"

	if _, err := n.bot.Send(msg); err != nil {
		return errors.Wrapf(ErrDelivery, "telegram chat %d: %v", chatID, err)
	}
	return nil
}
