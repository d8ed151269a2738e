package store

import (
	"strconv"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

var preferencesHeader = []string{"email", "telegram_chat_id"}

type PreferencesStore struct {
	path string
}

func NewPreferencesStore(path string) *PreferencesStore {
	return &PreferencesStore{path: path}
}

// Load returns the zero value when no preferences were saved yet.
func (s *PreferencesStore) Load() (types.NotificationPreferences, error) {
	header, records, err := readTable(s.path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.NotificationPreferences{}, err
	}
	if len(records) == 0 {
		return types.NotificationPreferences{}, nil
	}

	cols := indexColumns(header)
	rec := records[0]
	chatID, _ := strconv.ParseInt(cols.get(rec, "telegram_chat_id"), 10, 64)
	return types.NotificationPreferences{
		Email:          cols.get(rec, "email"),
		TelegramChatID: chatID,
	}, nil
}

func (s *PreferencesStore) Save(p types.NotificationPreferences) error {
	chatID := ""
	if p.TelegramChatID != 0 {
		chatID = strconv.FormatInt(p.TelegramChatID, 10)
	}
	return errors.Wrap(
		writeTable(s.path, preferencesHeader, [][]string{{p.Email, chatID}}),
		"could not save notification preferences",
	)
}
