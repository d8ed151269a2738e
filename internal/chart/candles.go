// Package chart draws candlestick PNGs for the coin page.
package chart

import (
	"io"
	"os"
	"time"

	"easy2trade/internal/types"
	"easy2trade/lib/helpers"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	Width  = 1200
	Height = 600
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	upColor         = drawing.Color{R: 38, G: 166, B: 154, A: 255}
	downColor       = drawing.Color{R: 239, G: 83, B: 80, A: 255}
)

// LoadFont parses a TrueType font file. An empty path returns nil, which
// makes the renderer fall back to its bundled font.
func LoadFont(path string) (*truetype.Font, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read chart font")
	}
	font, err := truetype.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse chart font %s", path)
	}
	return font, nil
}

// CandlestickSeries renders OHLC candles: a wick from low to high and a body
// from open to close.
type CandlestickSeries struct {
	Name    string
	Candles []types.Candle
}

func (cs CandlestickSeries) GetName() string { return cs.Name }
func (cs CandlestickSeries) GetStyle() chart.Style { return chart.Style{} }
func (cs CandlestickSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (cs CandlestickSeries) Len() int { return len(cs.Candles) }

func (cs CandlestickSeries) Validate() error {
	if len(cs.Candles) == 0 {
		return errors.New("candlestick series has no candles")
	}
	return nil
}

// GetBoundedValues feeds the axis ranges with each candle's low and high.
func (cs CandlestickSeries) GetBoundedValues(index int) (x, y1, y2 float64) {
	c := cs.Candles[index]
	return timeToFloat(c.OpenTime), c.Low, c.High
}

func (cs CandlestickSeries) Render(r chart.Renderer, canvasBox chart.Box, xrange, yrange chart.Range, _ chart.Style) {
	half := canvasBox.Width() / (len(cs.Candles) * 3)
	if half < 1 {
		half = 1
	}

	for _, c := range cs.Candles {
		x := canvasBox.Left + xrange.Translate(timeToFloat(c.OpenTime))
		yOpen := canvasBox.Bottom - yrange.Translate(c.Open)
		yClose := canvasBox.Bottom - yrange.Translate(c.Close)
		yHigh := canvasBox.Bottom - yrange.Translate(c.High)
		yLow := canvasBox.Bottom - yrange.Translate(c.Low)

		color := upColor
		if c.Close < c.Open {
			color = downColor
		}

		r.SetStrokeColor(color)
		r.SetStrokeWidth(1)
		r.MoveTo(x, yHigh)
		r.LineTo(x, yLow)
		r.Stroke()

		top, bottom := yClose, yOpen
		if yOpen < yClose {
			top, bottom = yOpen, yClose
		}
		if bottom == top {
			bottom = top + 1
		}
		r.SetFillColor(color)
		r.MoveTo(x-half, top)
		r.LineTo(x+half, top)
		r.LineTo(x+half, bottom)
		r.LineTo(x-half, bottom)
		r.Close()
		r.FillStroke()
	}
}

// Render writes a PNG candlestick chart of candles to w. font may be nil.
func Render(w io.Writer, title string, candles []types.Candle, font *truetype.Font) error {
	if len(candles) < 2 {
		return errors.Errorf("need at least 2 candles to draw a chart, got %d", len(candles))
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: textColor}
	gridStyle := chart.Style{StrokeColor: gridColor, StrokeWidth: 1}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      Width,
		Height:     Height,
		Font:       font,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat(xFormat(candles)),
		},
		YAxis: chart.YAxis{
			Style:          axisStyle,
			GridMajorStyle: gridStyle,
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatPriceUS(f)
				}
				return ""
			},
		},
		Series: []chart.Series{CandlestickSeries{Name: title, Candles: candles}},
	}

	return errors.Wrap(graph.Render(chart.PNG, w), "could not render chart")
}

// xFormat picks a label layout from the spacing of the candles.
func xFormat(candles []types.Candle) string {
	step := candles[1].OpenTime.Sub(candles[0].OpenTime)
	switch {
	case step < time.Hour:
		return "15:04"
	case step < 24*time.Hour:
		return "02-Jan 15:04"
	case step < 30*24*time.Hour:
		return "02-Jan"
	default:
		return "Jan 2006"
	}
}

func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano())
}
