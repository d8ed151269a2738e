package web

import (
	"encoding/json"
	"net/http"

	"easy2trade/internal/alert"
	"easy2trade/internal/analysis"
	"easy2trade/internal/feedback"
	"easy2trade/internal/market"
	"easy2trade/internal/notify"
	"easy2trade/internal/ranker"
	"easy2trade/internal/store"
	"easy2trade/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var errBadInput = errors.New("invalid input")

type errorClass struct {
	target error
	status int
	msgID  string
}

// errorClasses is checked in order; the first match wins.
var errorClasses = []errorClass{
	{feedback.ErrNotAnalyzed, http.StatusConflict, "Analyze this coin before rating it."},
	{alert.ErrAlreadyTracked, http.StatusConflict, "This coin is already tracked."},
	{alert.ErrUnknownTicker, http.StatusBadRequest, "This coin is not traded against USDT."},
	{alert.ErrInvalidThreshold, http.StatusBadRequest, "The threshold must be at least 0.1%."},
	{analysis.ErrInvalidRequest, http.StatusBadRequest, "The analysis request is not valid."},
	{errBadInput, http.StatusBadRequest, "The submitted form is not valid."},
	{ranker.ErrInsufficientData, http.StatusUnprocessableEntity, "Not enough rated data to train a model. Like or dislike more coins first."},
	{ranker.ErrModelNotFound, http.StatusNotFound, "No trained model yet. Train the model first."},
	{store.ErrNotFound, http.StatusNotFound, "Nothing found. Run the ingest command to build the market data."},
	{market.ErrDataUnavailable, http.StatusBadGateway, "Market data is unavailable right now. Please try again."},
	{notify.ErrDelivery, http.StatusBadGateway, "The notification could not be delivered."},
}

// classify maps err to an HTTP status and a translated message.
func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, translation.Translate(c.msgID)
		}
	}
	return http.StatusInternalServerError, translation.Translate("Something went wrong.")
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	logError(r, status, err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Message: msg})
}

func logError(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		return
	}
	log.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
}
