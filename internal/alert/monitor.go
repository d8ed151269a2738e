package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"easy2trade/internal/metrics"
	"easy2trade/internal/notify"
	"easy2trade/internal/types"
	"easy2trade/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type PreferencesSource interface {
	Load() (types.NotificationPreferences, error)
}

// Recorder keeps an audit trail of dispatched alerts.
type Recorder interface {
	InsertNotification(n types.NotificationRecord) (int64, error)
}

type Triggered struct {
	Coin         string  `json:"coin"`
	Change       float64 `json:"pct_change"`
	CurrentPrice float64 `json:"current_price"`
	Threshold    float64 `json:"threshold"`
}

type Result struct {
	Notified  []Triggered         `json:"notified"`
	Remaining []types.TrackedCoin `json:"remaining"`
	// Skipped explains why the pass did nothing, if it did nothing.
	Skipped string `json:"skipped,omitempty"`
}

type Monitor struct {
	prices    PriceSource
	table     TrackedTable
	prefs     PreferencesSource
	notifiers []notify.Notifier
	recorder  Recorder
	now       func() time.Time
}

// NewMonitor sends through every notifier that has a recipient in the saved
// preferences. recorder may be nil.
func NewMonitor(prices PriceSource, table TrackedTable, prefs PreferencesSource, notifiers []notify.Notifier, recorder Recorder) *Monitor {
	return &Monitor{
		prices:    prices,
		table:     table,
		prefs:     prefs,
		notifiers: notifiers,
		recorder:  recorder,
		now:       time.Now,
	}
}

// PercentChange is the signed move from baseline to current, in percent.
func PercentChange(baseline, current float64) float64 {
	return (current - baseline) / baseline * 100
}

// Evaluate reports the change of tc at price and whether it crossed the
// threshold in either direction.
func Evaluate(tc types.TrackedCoin, price float64) (float64, bool) {
	pct := PercentChange(tc.BaselinePrice, price)
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return pct, false
	}
	return pct, math.Abs(pct) >= tc.Threshold
}

// BuildMessage renders the alert for a triggered coin.
func BuildMessage(tc types.TrackedCoin, price, pct float64) notify.Message {
	direction := "increased"
	if pct < 0 {
		direction = "decreased"
	}
	change := math.Abs(pct)

	body := strings.Join([]string{
		fmt.Sprintf("The price of %s has %s by %.2f%%.", tc.Coin, direction, change),
		"",
		fmt.Sprintf("Initial price: %s USDT", helpers.FormatPriceUS(tc.BaselinePrice)),
		fmt.Sprintf("Current price: %s USDT", helpers.FormatPriceUS(price)),
		fmt.Sprintf("Threshold: %g%%", tc.Threshold),
	}, "\n")

	return notify.Message{
		Subject: fmt.Sprintf("Price Alert: %s has %s by %.2f%%", tc.Coin, direction, change),
		Body:    body,
	}
}

// CheckAll runs one pass over the tracked coins. Coins whose price cannot be
// fetched, or whose alert could not be delivered on any channel, stay
// tracked. Notified coins are removed and the reduced table is saved once.
func (m *Monitor) CheckAll(ctx context.Context) (Result, error) {
	trackedMutex.Lock()
	defer trackedMutex.Unlock()

	log.Debug("Checking tracked coins...")

	coins, err := m.table.Load()
	if err != nil {
		return Result{}, errors.Wrap(err, "could not load tracked coins")
	}
	if len(coins) == 0 {
		return Result{Skipped: "no tracked coins"}, nil
	}

	prefs, err := m.prefs.Load()
	if err != nil {
		return Result{}, errors.Wrap(err, "could not load notification preferences")
	}
	channels := m.channels(prefs)
	if len(channels) == 0 {
		return Result{Remaining: coins, Skipped: "no notification recipient configured"}, nil
	}

	var result Result
	for _, tc := range coins {
		if err := ctx.Err(); err != nil {
			result.Remaining = append(result.Remaining, tc)
			continue
		}

		price, err := m.prices.Price(ctx, tc.Coin)
		if err != nil {
			log.Warnf("Skipping %s: %v", tc.Coin, err)
			metrics.App.PriceFetchFailures.Inc()
			result.Remaining = append(result.Remaining, tc)
			continue
		}

		pct, triggered := Evaluate(tc, price)
		log.Debugf("%s: baseline %f current %f change %.2f%% threshold %.2f%%",
			tc.Coin, tc.BaselinePrice, price, pct, tc.Threshold)
		if !triggered {
			result.Remaining = append(result.Remaining, tc)
			continue
		}

		if !m.dispatch(ctx, channels, tc, price, pct) {
			result.Remaining = append(result.Remaining, tc)
			continue
		}
		result.Notified = append(result.Notified, Triggered{
			Coin: tc.Coin, Change: pct, CurrentPrice: price, Threshold: tc.Threshold,
		})
	}

	if len(result.Notified) > 0 {
		if err := m.table.Save(result.Remaining); err != nil {
			return result, errors.Wrap(err, "could not save tracked coins")
		}
	}
	metrics.App.TrackedCoins.Set(float64(len(result.Remaining)))

	log.Infof("Price check completed: %d notified, %d still tracked", len(result.Notified), len(result.Remaining))
	return result, nil
}

type channel struct {
	notifier  notify.Notifier
	recipient string
}

func (m *Monitor) channels(prefs types.NotificationPreferences) []channel {
	var out []channel
	for _, n := range m.notifiers {
		if r := n.RecipientFor(prefs); r != "" {
			out = append(out, channel{notifier: n, recipient: r})
		}
	}
	return out
}

// dispatch sends the alert on every channel and reports whether at least one
// delivery succeeded.
func (m *Monitor) dispatch(ctx context.Context, channels []channel, tc types.TrackedCoin, price, pct float64) bool {
	msg := BuildMessage(tc, price, pct)
	delivered := false

	for _, ch := range channels {
		msg.To = ch.recipient
		err := ch.notifier.Send(ctx, msg)

		record := types.NotificationRecord{
			Coin:      tc.Coin,
			Change:    pct,
			Channel:   ch.notifier.Channel(),
			Recipient: ch.recipient,
			SentAt:    m.now(),
		}
		if err != nil {
			log.Errorf("Failed to send alert for %s via %s: %v", tc.Coin, record.Channel, err)
			metrics.App.Notifications.WithLabelValues(record.Channel, "failed").Inc()
			record.Error = err.Error()
		} else {
			log.Infof("Alert for %s sent via %s to %s", tc.Coin, record.Channel, ch.recipient)
			metrics.App.Notifications.WithLabelValues(record.Channel, "sent").Inc()
			delivered = true
		}

		if m.recorder != nil {
			if _, err := m.recorder.InsertNotification(record); err != nil {
				log.Errorf("Failed to record notification: %v", err)
			}
		}
	}
	return delivered
}
