package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads <dir>/<lang>/LC_MESSAGES/default.po.
func Configure(dir, lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	gotext.Configure(dir, lang, "default")
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

// Translate falls back to msgID when no translation is loaded.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
