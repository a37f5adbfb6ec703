// Package api exposes the markers HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/marker"
	"github.com/nugulmap/markers/internal/model"
	"github.com/nugulmap/markers/internal/store"
)

const (
	detailNotFound = "Marker not found"
	detailInternal = "Internal Server Error"
)

// Markers is the marker service used by the handler.
type Markers interface {
	Create(ctx context.Context, m model.Marker) (string, error)
	Get(ctx context.Context, id string) (*model.Marker, error)
	List(ctx context.Context, filter store.ListFilter) ([]*model.Marker, error)
	Update(ctx context.Context, id string, u model.MarkerUpdate) error
	Delete(ctx context.Context, id string) error
}

// Handler serves marker endpoints.
type Handler struct {
	markers Markers
}

// NewHandler creates a marker handler.
func NewHandler(m Markers) *Handler {
	return &Handler{markers: m}
}

// Routes registers marker routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Route("/marker", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	return r
}

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter wraps the handler routes in the standard middleware stack.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		middleware.Recoverer,
		middleware.Timeout(opts.RequestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}),
	)
	router.Mount("/", h.Routes())
	return router
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var m model.Marker
	if !h.decode(w, r, &m) {
		return
	}

	id, err := h.markers.Create(r.Context(), m)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "saved", "id": id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := queryInt(q.Get("skip"), 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "skip "+err.Error())
		return
	}
	limit, err := queryInt(q.Get("limit"), store.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "limit "+err.Error())
		return
	}

	markers := []*model.Marker{}
	if limit > 0 {
		markers, err = h.markers.List(r.Context(), store.ListFilter{
			Skip:   skip,
			Limit:  limit,
			Region: q.Get("region"),
			Type:   q.Get("type"),
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": markers})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.markers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u model.MarkerUpdate
	if !h.decode(w, r, &u) {
		return
	}

	if err := h.markers.Update(r.Context(), id, u); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "id": id})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.markers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads the JSON body into dest, writing 400 or 422 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := decodeJSON(r, dest)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type.String()))
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request payload")
	return false
}

// fail maps service errors to responses. Internal causes are logged, never returned.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusUnprocessableEntity, strings.Join(vErr.Problems, "; "))
	case errors.Is(err, marker.ErrNotFound):
		writeError(w, http.StatusNotFound, detailNotFound)
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, detailInternal)
	}
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < 0 {
		return 0, errors.New("must be >= 0")
	}
	return n, nil
}
