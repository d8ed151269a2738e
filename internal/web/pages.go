package web

import (
	"bytes"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"easy2trade/internal/alert"
	"easy2trade/internal/analysis"
	"easy2trade/internal/chart"
	"easy2trade/internal/feedback"
	"easy2trade/internal/market"
	"easy2trade/internal/ranker"
	"easy2trade/internal/types"
	"easy2trade/lib/translation"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const recentNotifications = 20

type page struct {
	Title  string
	Active string
	Flash  string
	Error  string
	Data   interface{}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, p page) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", p); err != nil {
		log.Errorf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fail fills p with the message for err and returns the matching status.
func fail(r *http.Request, p *page, err error) int {
	status, msg := classify(err)
	logError(r, status, err)
	p.Error = msg
	return status
}

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "landing.html", page{Title: "Easy2Trade", Active: "home", Data: s.landing})
}

type searchView struct {
	Tickers   []string
	Intervals []string
	Coin      string
	Interval  string
	Limit     int
	Threshold float64
}

func (s *Server) searchPage(w http.ResponseWriter, r *http.Request, status int, view searchView, err error) {
	p := page{Title: translation.Translate("Analyze a coin"), Active: "analyze"}
	if err != nil {
		status = fail(r, &p, err)
	}

	tickers, terr := s.svc.Tickers.Tickers(r.Context())
	if terr != nil {
		log.Warnf("Could not list tickers: %v", terr)
	}
	view.Tickers = tickers
	view.Intervals = market.Intervals
	if view.Interval == "" {
		view.Interval = "1d"
	}
	p.Data = view
	s.render(w, status, "analyze.html", p)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	view := searchView{Coin: types.NormalizeTicker(r.URL.Query().Get("coin"))}
	s.searchPage(w, r, http.StatusOK, view, nil)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := analysisRequestFromForm(r)
	view := searchView{Coin: req.Coin, Interval: req.Interval, Limit: req.Limit, Threshold: req.Threshold}
	if err != nil {
		s.searchPage(w, r, http.StatusBadRequest, view, err)
		return
	}

	report, err := s.analyze(r, req)
	if err != nil {
		s.searchPage(w, r, http.StatusBadRequest, view, err)
		return
	}
	http.Redirect(w, r, "/coin/"+url.PathEscape(report.Coin), http.StatusSeeOther)
}

func analysisRequestFromForm(r *http.Request) (analysis.Request, error) {
	if err := r.ParseForm(); err != nil {
		return analysis.Request{}, errors.Wrap(errBadInput, err.Error())
	}
	req := analysis.Request{
		Coin:     types.NormalizeTicker(r.PostForm.Get("coin")),
		Interval: strings.TrimSpace(r.PostForm.Get("interval")),
	}
	if v := strings.TrimSpace(r.PostForm.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.Wrapf(errBadInput, "limit %q", v)
		}
		req.Limit = limit
	}
	if v := strings.TrimSpace(r.PostForm.Get("threshold")); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.Wrapf(errBadInput, "threshold %q", v)
		}
		req.Threshold = threshold
	}
	return req, nil
}

type coinView struct {
	analysis.Report
	Name  string
	Score int
	Rated bool
}

func (s *Server) coinPage(w http.ResponseWriter, r *http.Request, coin string, status int, flash string, err error) {
	report, ok := s.lastReport(r, coin)
	if !ok {
		http.Redirect(w, r, "/analyze?coin="+url.QueryEscape(types.NormalizeTicker(coin)), http.StatusSeeOther)
		return
	}

	p := page{Title: report.Coin, Active: "analyze", Flash: flash}
	if err != nil {
		status = fail(r, &p, err)
	}

	view := coinView{Report: report, Name: s.coinName(report.Coin)}
	entry, found, serr := s.svc.Feedback.Get(report.Coin)
	if serr != nil {
		log.Warnf("Could not read score of %s: %v", report.Coin, serr)
	}
	view.Score, view.Rated = entry.Score, found
	p.Data = view
	s.render(w, status, "coin.html", p)
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	s.coinPage(w, r, chi.URLParam(r, "coin"), http.StatusOK, "", nil)
}

func (s *Server) handleCoinFeedback(w http.ResponseWriter, r *http.Request) {
	coin := chi.URLParam(r, "coin")
	action, ok := types.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		s.coinPage(w, r, coin, http.StatusBadRequest, "", errors.Wrap(errBadInput, "unknown action"))
		return
	}

	outcome, err := s.applyFeedback(r, coin, action)
	if err != nil {
		if _, analyzed := s.lastReport(r, coin); !analyzed {
			p := page{Title: translation.Translate("Error"), Active: "analyze"}
			status := fail(r, &p, err)
			s.render(w, status, "error.html", p)
			return
		}
		s.coinPage(w, r, coin, http.StatusOK, "", err)
		return
	}
	s.coinPage(w, r, coin, http.StatusOK, feedbackFlash(outcome), nil)
}

func feedbackFlash(o feedback.Outcome) string {
	if o.Already {
		if o.Action == types.ActionLike {
			return translation.Translate("You already liked %s.", o.Coin)
		}
		return translation.Translate("You already disliked %s.", o.Coin)
	}
	return translation.Translate("Saved. The score of %s is now %d.", o.Coin, o.Score)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	coin := types.NormalizeTicker(chi.URLParam(r, "coin"))

	report, ok := s.lastReport(r, coin)
	candles := report.Candles
	if !ok {
		interval := r.URL.Query().Get("interval")
		if interval == "" {
			interval = "1d"
		}
		if !market.ValidInterval(interval) {
			http.Error(w, "unsupported interval", http.StatusBadRequest)
			return
		}
		var err error
		candles, err = s.svc.Klines.Klines(r.Context(), coin, interval, 100)
		if err != nil {
			status, msg := classify(err)
			logError(r, status, err)
			http.Error(w, msg, status)
			return
		}
		report.Interval = interval
	}

	var buf bytes.Buffer
	title := coin + "/" + types.QuoteAsset + " " + report.Interval
	if err := chart.Render(&buf, title, candles, s.svc.ChartFont); err != nil {
		logError(r, http.StatusUnprocessableEntity, err)
		http.Error(w, translation.Translate("Not enough candles to draw a chart."), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) feedbackPage(w http.ResponseWriter, r *http.Request, status int, flash string, err error) {
	p := page{Title: translation.Translate("Your feedback"), Active: "feedback", Flash: flash}
	if err != nil {
		status = fail(r, &p, err)
	}
	entries, lerr := s.svc.Feedback.Load()
	if lerr != nil && err == nil {
		status = fail(r, &p, lerr)
	}
	p.Data = entries
	s.render(w, status, "feedback.html", p)
}

func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	s.feedbackPage(w, r, http.StatusOK, "", nil)
}

func (s *Server) handleFeedbackRemove(w http.ResponseWriter, r *http.Request) {
	coin := types.NormalizeTicker(chi.URLParam(r, "coin"))
	if err := s.svc.Feedback.Remove(coin); err != nil {
		s.feedbackPage(w, r, http.StatusOK, "", err)
		return
	}
	s.feedbackPage(w, r, http.StatusOK, translation.Translate("Removed %s from your feedback.", coin), nil)
}

type recommendationView struct {
	Coin        string
	Name        string
	Probability float64
}

type recommendationsView struct {
	Model           *ranker.Model
	Recommendations []recommendationView
}

func (s *Server) recommendationsPage(w http.ResponseWriter, r *http.Request, status int, flash string, err error) {
	p := page{Title: translation.Translate("Recommendations"), Active: "recommendations", Flash: flash}
	if err != nil {
		status = fail(r, &p, err)
	}

	var view recommendationsView
	recs, rerr := s.svc.Ranker.Recommend()
	switch {
	case rerr == nil:
		view.Model, _ = s.svc.Ranker.Model()
		for _, rec := range recs {
			view.Recommendations = append(view.Recommendations, recommendationView{
				Coin: rec.Coin, Name: s.coinName(rec.Coin), Probability: rec.Probability,
			})
		}
	case err == nil:
		// a missing model or feature table is a normal state for this page
		_, p.Error = classify(rerr)
		logError(r, http.StatusOK, rerr)
	}

	p.Data = view
	s.render(w, status, "recommendations.html", p)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.recommendationsPage(w, r, http.StatusOK, "", nil)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Synchronizer.Run()
	if err != nil {
		s.recommendationsPage(w, r, http.StatusOK, "", err)
		return
	}
	s.recommendationsPage(w, r, http.StatusOK,
		translation.Translate("Synchronized: %d rows updated, %d rows reset.", report.Updated, report.Reset), nil)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Ranker.Train()
	if err != nil {
		s.recommendationsPage(w, r, http.StatusOK, "", err)
		return
	}
	s.recommendationsPage(w, r, http.StatusOK,
		translation.Translate("Model trained. Test accuracy: %.1f%%.", m.Accuracy*100), nil)
}

type trackedView struct {
	Coins         []types.TrackedCoin
	Preferences   types.NotificationPreferences
	Notifications []types.NotificationRecord
	MinThreshold  float64
}

func (s *Server) trackedPage(w http.ResponseWriter, r *http.Request, status int, flash string, err error) {
	p := page{Title: translation.Translate("Tracked coins"), Active: "tracked", Flash: flash}
	if err != nil {
		status = fail(r, &p, err)
	}

	view := trackedView{MinThreshold: alert.MinThreshold}
	var lerr error
	if view.Coins, lerr = s.svc.Tracker.List(); lerr != nil {
		log.Errorf("Could not list tracked coins: %v", lerr)
	}
	if view.Preferences, lerr = s.svc.Preferences.Load(); lerr != nil {
		log.Errorf("Could not load preferences: %v", lerr)
	}
	if s.svc.Notifications != nil {
		if view.Notifications, lerr = s.svc.Notifications.GetNotifications(recentNotifications); lerr != nil {
			log.Errorf("Could not load notifications: %v", lerr)
		}
	}
	p.Data = view
	s.render(w, status, "tracked.html", p)
}

func (s *Server) handleTracked(w http.ResponseWriter, r *http.Request) {
	s.trackedPage(w, r, http.StatusOK, "", nil)
}

func thresholdFromForm(r *http.Request) (float64, error) {
	v := strings.TrimSpace(r.FormValue("threshold"))
	threshold, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(alert.ErrInvalidThreshold, "threshold %q", v)
	}
	return threshold, nil
}

func (s *Server) handleTrackAdd(w http.ResponseWriter, r *http.Request) {
	threshold, err := thresholdFromForm(r)
	if err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	tc, err := s.svc.Tracker.Register(r.Context(), r.FormValue("coin"), threshold)
	if err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	s.trackedPage(w, r, http.StatusOK,
		translation.Translate("Tracking %s from %s USDT.", tc.Coin, strconv.FormatFloat(tc.BaselinePrice, 'f', -1, 64)), nil)
}

func (s *Server) handleTrackThreshold(w http.ResponseWriter, r *http.Request) {
	coin := types.NormalizeTicker(chi.URLParam(r, "coin"))
	threshold, err := thresholdFromForm(r)
	if err == nil {
		err = s.svc.Tracker.UpdateThreshold(coin, threshold)
	}
	if err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	s.trackedPage(w, r, http.StatusOK, translation.Translate("Threshold of %s updated.", coin), nil)
}

func (s *Server) handleTrackRemove(w http.ResponseWriter, r *http.Request) {
	coin := types.NormalizeTicker(chi.URLParam(r, "coin"))
	if err := s.svc.Tracker.Remove(coin); err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	s.trackedPage(w, r, http.StatusOK, translation.Translate("Stopped tracking %s.", coin), nil)
}

func preferencesFromForm(r *http.Request) (types.NotificationPreferences, error) {
	prefs := types.NotificationPreferences{Email: strings.TrimSpace(r.FormValue("email"))}
	if v := strings.TrimSpace(r.FormValue("telegram_chat_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return prefs, errors.Wrapf(errBadInput, "telegram chat id %q", v)
		}
		prefs.TelegramChatID = id
	}
	return prefs, validatePreferences(prefs)
}

func validatePreferences(p types.NotificationPreferences) error {
	if p.Email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return errors.Wrapf(errBadInput, "email %q", p.Email)
	}
	return nil
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := preferencesFromForm(r)
	if err == nil {
		err = s.svc.Preferences.Save(prefs)
	}
	if err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	s.trackedPage(w, r, http.StatusOK, translation.Translate("Notification preferences saved."), nil)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Monitor.CheckAll(r.Context())
	if err != nil {
		s.trackedPage(w, r, http.StatusOK, "", err)
		return
	}
	s.trackedPage(w, r, http.StatusOK, checkFlash(result), nil)
}

func checkFlash(res alert.Result) string {
	if res.Skipped != "" {
		return translation.Translate("Nothing checked: %s.", res.Skipped)
	}
	if len(res.Notified) == 0 {
		return translation.Translate("No coin crossed its threshold.")
	}
	coins := make([]string, len(res.Notified))
	for i, n := range res.Notified {
		coins[i] = n.Coin
	}
	return translation.Translate("Alerts sent for %s.", strings.Join(coins, ", "))
}
