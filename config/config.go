package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// SMTP and bot credentials usually live in a local .env
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("http_port", "HTTP_PORT")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("data_dir", "DATA_DIR")
		viper.BindEnv("feedback_file", "FEEDBACK_FILE")
		viper.BindEnv("processed_file", "PROCESSED_FILE")
		viper.BindEnv("tracked_file", "TRACKED_FILE")
		viper.BindEnv("preferences_file", "PREFERENCES_FILE")
		viper.BindEnv("model_file", "MODEL_FILE")
		viper.BindEnv("metrics_db", "METRICS_DB")
		viper.BindEnv("binance_url", "BINANCE_URL")
		viper.BindEnv("kline_limit", "KLINE_LIMIT")
		viper.BindEnv("paprika_api_key", "API_PRO_KEY")
		viper.BindEnv("smtp_host", "SMTP_HOST")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("smtp_user", "SMTP_EMAIL")
		viper.BindEnv("smtp_password", "SMTP_PASSWORD")
		viper.BindEnv("smtp_from", "SMTP_FROM")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_chat_id", "TELEGRAM_CHAT_ID")
		viper.BindEnv("check_schedule", "CHECK_SCHEDULE")
		viper.BindEnv("redis_addr", "REDIS_ADDR")
		viper.BindEnv("cache_ttl", "CACHE_TTL")
		viper.BindEnv("chart_font_path", "CHART_FONT_PATH")

		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("http_port", 8501)
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("data_dir", "data")
		viper.SetDefault("feedback_file", "feedback.csv")
		viper.SetDefault("processed_file", "data/processed_data.csv")
		viper.SetDefault("tracked_file", "tracked_coins.csv")
		viper.SetDefault("preferences_file", "notification_preferences.csv")
		viper.SetDefault("model_file", "trained_model.msgpack")
		viper.SetDefault("metrics_db", "easy2trade.db")
		viper.SetDefault("binance_url", "https://api.binance.com")
		viper.SetDefault("kline_limit", 100)
		viper.SetDefault("smtp_host", "smtp.gmail.com")
		viper.SetDefault("smtp_port", 587)
		viper.SetDefault("check_schedule", "")
		viper.SetDefault("cache_ttl", "30s")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// Set overrides a key for the lifetime of the process. Flags use it.
func Set(key string, value interface{}) {
	InitConfig()
	viper.Set(key, value)
}
