package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// DefaultMode applies to websocket sessions that do not ask for a mode.
	DefaultMode engine.Mode
	Logger      logrus.FieldLogger
}

// NewRouter wires the REST endpoints and the websocket entry point.
func NewRouter(service *app.AssessmentService, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	ws := NewWSHandler(service, logger)
	if opts.DefaultMode != "" {
		ws.defaultMode = opts.DefaultMode
	}
	r.Get("/ws", ws.ServeWS)

	api := &apiHandler{service: service}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/assessments/{scope}", api.getAssessment)
		r.Get("/learners/{learnerID}/history/{scope}", api.getHistory)
	})
	return r
}

type apiHandler struct {
	service *app.AssessmentService
}

func (h *apiHandler) getAssessment(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(chi.URLParam(r, "scope"))
	summary, err := h.service.Describe(r.Context(), scope)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *apiHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	learnerID := strings.TrimSpace(chi.URLParam(r, "learnerID"))
	scope := strings.TrimSpace(chi.URLParam(r, "scope"))
	history, err := h.service.History(r.Context(), learnerID, scope)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errResp struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrLoadFailed) {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, errResp{Error: err.Error()})
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
			}).Debug("http request")
		})
	}
}
