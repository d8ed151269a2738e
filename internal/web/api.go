package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"easy2trade/internal/analysis"
	"easy2trade/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadInput, err.Error())
	}
	return nil
}

func (s *Server) apiTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.svc.Tickers.Tickers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickers)
}

func (s *Server) apiAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.analyze(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) apiFeedback(w http.ResponseWriter, r *http.Request) {
	action, ok := types.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		writeError(w, r, errors.Wrap(errBadInput, "action must be like or dislike"))
		return
	}
	outcome, err := s.applyFeedback(r, chi.URLParam(r, "coin"), action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) apiFeedbackList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Feedback.Load()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.FeedbackEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) apiFeedbackRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Feedback.Remove(chi.URLParam(r, "coin")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Synchronizer.Run()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) apiTrain(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Ranker.Train()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) apiRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Ranker.Recommend()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) apiTrackedList(w http.ResponseWriter, r *http.Request) {
	coins, err := s.svc.Tracker.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if coins == nil {
		coins = []types.TrackedCoin{}
	}
	writeJSON(w, http.StatusOK, coins)
}

type trackRequest struct {
	Coin      string  `json:"coin"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) apiTrackAdd(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tc, err := s.svc.Tracker.Register(r.Context(), req.Coin, req.Threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}

func (s *Server) apiTrackThreshold(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Tracker.UpdateThreshold(chi.URLParam(r, "coin"), req.Threshold); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiTrackRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Tracker.Remove(chi.URLParam(r, "coin")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.svc.Preferences.Load()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) apiPreferencesSave(w http.ResponseWriter, r *http.Request) {
	var prefs types.NotificationPreferences
	if err := decode(r, &prefs); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validatePreferences(prefs); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Preferences.Save(prefs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) apiCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Monitor.CheckAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) apiNotifications(w http.ResponseWriter, r *http.Request) {
	if s.svc.Notifications == nil {
		writeJSON(w, http.StatusOK, []types.NotificationRecord{})
		return
	}
	limit := recentNotifications
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, errors.Wrapf(errBadInput, "limit %q", v))
			return
		}
		limit = n
	}
	records, err := s.svc.Notifications.GetNotifications(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []types.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
