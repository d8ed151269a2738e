package main

import (
	"easy2trade/config"
	"easy2trade/internal/alert"
	"easy2trade/internal/cache"
	"easy2trade/internal/database"
	"easy2trade/internal/feedback"
	"easy2trade/internal/market"
	"easy2trade/internal/notify"
	"easy2trade/internal/ranker"
	"easy2trade/internal/store"

	log "github.com/sirupsen/logrus"
)

// app holds the components every command builds from configuration.
type app struct {
	market      *market.Client
	feedback    *store.FeedbackStore
	features    *store.FeatureStore
	tracked     *store.TrackedStore
	preferences *store.PreferencesStore
	ranker      *ranker.Service
	sync        *feedback.Synchronizer
	tracker     *alert.Tracker
}

func newApp() *app {
	client := market.NewClient(
		config.GetString("binance_url"),
		cache.New(config.GetString("redis_addr")),
		config.GetDuration("cache_ttl"),
	)

	a := &app{
		market:      client,
		feedback:    store.NewFeedbackStore(config.GetString("feedback_file")),
		features:    store.NewFeatureStore(config.GetString("processed_file")),
		tracked:     store.NewTrackedStore(config.GetString("tracked_file")),
		preferences: store.NewPreferencesStore(config.GetString("preferences_file")),
	}
	a.ranker = ranker.NewService(a.features, a.feedback, config.GetString("model_file"))
	a.sync = feedback.NewSynchronizer(a.feedback, a.features)
	a.tracker = alert.NewTracker(client, client, a.tracked)
	return a
}

// notifiers returns email always and Telegram when a bot token is set.
func notifiers() []notify.Notifier {
	out := []notify.Notifier{notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     config.GetString("smtp_host"),
		Port:     config.GetInt("smtp_port"),
		User:     config.GetString("smtp_user"),
		Password: config.GetString("smtp_password"),
		From:     config.GetString("smtp_from"),
	})}

	if token := config.GetString("telegram_bot_token"); token != "" {
		tg, err := notify.NewTelegramNotifier(token, config.GetInt64("telegram_chat_id"), config.GetBool("debug"))
		if err != nil {
			log.Errorf("Telegram alerts disabled: %v", err)
		} else {
			out = append(out, tg)
		}
	}
	return out
}

// monitor records dispatched alerts in db when it is not nil.
func (a *app) monitor(db *database.DB) *alert.Monitor {
	var recorder alert.Recorder
	if db != nil {
		recorder = db
	}
	return alert.NewMonitor(a.market, a.tracked, a.preferences, notifiers(), recorder)
}
