package helpers

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS prints a USDT price with thousands separators and a number
// of decimals that suits its magnitude.
func FormatPriceUS(price float64) string {
	decimals := 6

	abs := math.Abs(price)
	if abs > 1.2 {
		decimals = 2
	} else if abs < 0.00001 && abs > 0 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, price)
}

// FormatPercent prints a signed percentage with two decimals, e.g. "+6.00%".
func FormatPercent(pct float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%+.2f%%", pct)
}

// FormatVolume prints large volumes in short SI form, e.g. "12.3 M".
func FormatVolume(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	if v < 1000 {
		return humanize.FormatFloat("#,###.##", v)
	}
	value, prefix := humanize.ComputeSI(v)
	return humanize.FormatFloat("#,###.#", value) + " " + prefix
}
