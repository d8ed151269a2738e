// Package web serves the browser UI and its JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"easy2trade/internal/alert"
	"easy2trade/internal/analysis"
	"easy2trade/internal/coininfo"
	"easy2trade/internal/feedback"
	"easy2trade/internal/ranker"
	"easy2trade/internal/session"
	"easy2trade/internal/store"
	"easy2trade/internal/types"
	"easy2trade/lib/helpers"
	"easy2trade/lib/translation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed content/landing.md
var landingMarkdown []byte

const sessionCookie = "easy2trade_session"

type TickerSource interface {
	Tickers(ctx context.Context) ([]string, error)
}

type CoinLookup interface {
	Find(ticker string) (coininfo.Info, error)
}

type NotificationLog interface {
	GetNotifications(limit int) ([]types.NotificationRecord, error)
}

// Services are the operations the handlers call. Coins, Notifications and
// ChartFont may be nil.
type Services struct {
	Sessions      *session.Manager
	Tickers       TickerSource
	Klines        analysis.KlineSource
	Analyzer      *analysis.Analyzer
	Reconciler    *feedback.Reconciler
	Feedback      *store.FeedbackStore
	Synchronizer  *feedback.Synchronizer
	Ranker        *ranker.Service
	Tracker       *alert.Tracker
	Monitor       *alert.Monitor
	Preferences   *store.PreferencesStore
	Notifications NotificationLog
	Coins         CoinLookup
	ChartFont     *truetype.Font
}

type Server struct {
	svc     Services
	router  *chi.Mux
	pages   map[string]*template.Template
	landing template.HTML

	// reports keeps the last analysis of each live session for the coin page.
	mu      sync.Mutex
	reports map[string]analysis.Report
}

func New(svc Services) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := goldmark.New().Convert(landingMarkdown, &buf); err != nil {
		return nil, errors.Wrap(err, "could not render landing page")
	}

	s := &Server{
		svc:     svc,
		router:  chi.NewRouter(),
		pages:   pages,
		landing: template.HTML(buf.String()), //nolint: gosec
		reports: make(map[string]analysis.Report),
	}
	if svc.Sessions != nil {
		svc.Sessions.OnEvict(s.forgetReport)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Web UI listening on :%d", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "web server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "web server shutdown")
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(s.sessionMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", handleHealth)

	s.router.Get("/", s.handleLanding)
	s.router.Get("/analyze", s.handleSearch)
	s.router.Post("/analyze", s.handleAnalyze)
	s.router.Get("/coin/{coin}", s.handleCoin)
	s.router.Post("/coin/{coin}/{action}", s.handleCoinFeedback)
	s.router.Get("/chart/{coin}.png", s.handleChart)

	s.router.Get("/feedback", s.handleFeedbackList)
	s.router.Post("/feedback/{coin}/remove", s.handleFeedbackRemove)

	s.router.Get("/recommendations", s.handleRecommendations)
	s.router.Post("/recommendations/sync", s.handleSync)
	s.router.Post("/recommendations/train", s.handleTrain)

	s.router.Get("/tracked", s.handleTracked)
	s.router.Post("/tracked", s.handleTrackAdd)
	s.router.Post("/tracked/check", s.handleCheck)
	s.router.Post("/tracked/{coin}/threshold", s.handleTrackThreshold)
	s.router.Post("/tracked/{coin}/remove", s.handleTrackRemove)
	s.router.Post("/preferences", s.handlePreferences)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tickers", s.apiTickers)
		r.Post("/analyze", s.apiAnalyze)
		r.Post("/feedback/{coin}/{action}", s.apiFeedback)
		r.Get("/feedback", s.apiFeedbackList)
		r.Delete("/feedback/{coin}", s.apiFeedbackRemove)
		r.Post("/sync", s.apiSync)
		r.Post("/train", s.apiTrain)
		r.Get("/recommendations", s.apiRecommendations)
		r.Get("/tracked", s.apiTrackedList)
		r.Post("/tracked", s.apiTrackAdd)
		r.Put("/tracked/{coin}", s.apiTrackThreshold)
		r.Delete("/tracked/{coin}", s.apiTrackRemove)
		r.Get("/preferences", s.apiPreferences)
		r.Put("/preferences", s.apiPreferencesSave)
		r.Post("/check", s.apiCheck)
		r.Get("/notifications", s.apiNotifications)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

type sessionKey struct{}

// sessionMiddleware gives every browser a session id cookie.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			id = c.Value
		} else {
			id = s.svc.Sessions.NewID()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

// analyze runs an analysis in the caller's session and remembers the report.
func (s *Server) analyze(r *http.Request, req analysis.Request) (analysis.Report, error) {
	id := sessionID(r)
	var report analysis.Report
	err := s.svc.Sessions.Do(id, func(st session.State) (session.State, error) {
		next, rep, err := s.svc.Analyzer.Analyze(r.Context(), st, req)
		if err != nil {
			return next, err
		}
		report = rep
		s.mu.Lock()
		s.reports[id] = rep
		s.mu.Unlock()
		return next, nil
	})
	if err != nil {
		return analysis.Report{}, err
	}
	return report, nil
}

func (s *Server) lastReport(r *http.Request, coin string) (analysis.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[sessionID(r)]
	return rep, ok && rep.Coin == types.NormalizeTicker(coin)
}

func (s *Server) forgetReport(id string) {
	s.mu.Lock()
	delete(s.reports, id)
	s.mu.Unlock()
}

// applyFeedback records a click in the caller's session.
func (s *Server) applyFeedback(r *http.Request, coin string, action types.Action) (feedback.Outcome, error) {
	var outcome feedback.Outcome
	err := s.svc.Sessions.Do(sessionID(r), func(st session.State) (session.State, error) {
		next, out, err := s.svc.Reconciler.ApplyFeedback(st, coin, action)
		outcome = out
		return next, err
	})
	return outcome, err
}

func (s *Server) coinName(ticker string) string {
	if s.svc.Coins == nil {
		return ticker
	}
	info, err := s.svc.Coins.Find(ticker)
	if err != nil || info.Name == "" {
		log.Debugf("No coin name for %s: %v", ticker, err)
		return ticker
	}
	return info.Name
}

var funcMap = template.FuncMap{
	"price":   helpers.FormatPriceUS,
	"percent": helpers.FormatPercent,
	"volume":  helpers.FormatVolume,
	"t":       translation.Translate,
	"pct": func(p float64) string {
		return fmt.Sprintf("%.1f%%", p*100)
	},
	"when": func(t time.Time) string {
		return t.Local().Format(time.DateTime)
	},
}

var pageNames = []string{
	"landing.html", "analyze.html", "coin.html", "feedback.html",
	"recommendations.html", "tracked.html", "error.html",
}

func parsePages() (map[string]*template.Template, error) {
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing base template")
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "cloning base for %s", name)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, errors.Wrapf(err, "parsing template %s", name)
		}
		pages[name] = clone
	}
	return pages, nil
}
