// Package httpapi exposes the inventory service over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	"pantry/pkg/inventory"
	"pantry/pkg/logger"
	"pantry/pkg/metrics"
	"pantry/pkg/otel"
)

// Server routes HTTP requests to an inventory.Service.
type Server struct {
	svc     *inventory.Service
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	router  *mux.Router
}

// New builds the router. m and tracer may be nil.
func New(svc *inventory.Service, log *logger.Logger, m *metrics.Metrics, tracer trace.Tracer) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{svc: svc, log: log, metrics: m, tracer: tracer, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestIDMiddleware, s.traceMiddleware, s.metricsMiddleware)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := r.PathPrefix("/items").Subrouter()
	api.HandleFunc("", s.listItemsHandler).Methods(http.MethodGet)
	api.HandleFunc("/export.csv", s.exportHandler).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.refreshHandler).Methods(http.MethodPost)
	api.HandleFunc("/{name}/increment", s.incrementHandler).Methods(http.MethodPost)
	api.HandleFunc("/{name}/decrement", s.decrementHandler).Methods(http.MethodPost)
	api.HandleFunc("/{name}", s.setQuantityHandler).Methods(http.MethodPut)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// mutationResponse reports the state of one item after a mutation.
type mutationResponse struct {
	Item    inventory.Item `json:"item"`
	Removed bool           `json:"removed"`
}

// setQuantityRequest accepts the quantity as a JSON number or string.
type setQuantityRequest struct {
	Quantity json.RawMessage `json:"quantity" swaggertype:"string" example:"5"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// listItemsHandler lists items, optionally filtered.
// @Summary List items
// @Description Items whose name contains q, ignoring case. An empty q returns everything.
// @Produce json
// @Param q query string false "Name filter"
// @Success 200 {array} inventory.Item
// @Router /items [get]
func (s *Server) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.AddSpan(r.Context(), "listItemsHandler")
	defer span.End()

	writeJSON(w, http.StatusOK, s.svc.Filter(r.URL.Query().Get("q")))
}

// incrementHandler adds one to an item, creating it at 1.
// @Summary Increment item
// @Produce json
// @Param name path string true "Item name"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /items/{name}/increment [post]
func (s *Server) incrementHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "incrementHandler")
	defer span.End()

	item, err := s.svc.Increment(ctx, mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Item: item})
}

// decrementHandler subtracts one from an item, deleting it at zero.
// @Summary Decrement item
// @Produce json
// @Param name path string true "Item name"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /items/{name}/decrement [post]
func (s *Server) decrementHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "decrementHandler")
	defer span.End()

	item, removed, err := s.svc.Decrement(ctx, mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Item: item, Removed: removed})
}

// setQuantityHandler overwrites an item's quantity.
// @Summary Set item quantity
// @Accept json
// @Produce json
// @Param name path string true "Item name"
// @Param body body setQuantityRequest true "Quantity"
// @Success 200 {object} mutationResponse
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /items/{name} [put]
func (s *Server) setQuantityHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "setQuantityHandler")
	defer span.End()

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	q, err := inventory.ParseQuantity(rawQuantity(req.Quantity))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, removed, err := s.svc.SetQuantity(ctx, mux.Vars(r)["name"], q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Item: item, Removed: removed})
}

// refreshHandler reloads the list from the store.
// @Summary Refresh items
// @Produce json
// @Success 200 {array} inventory.Item
// @Failure 503 {object} errorResponse
// @Router /items/refresh [post]
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "refreshHandler")
	defer span.End()

	if err := s.svc.Refresh(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Items())
}

// exportHandler downloads the list as CSV.
// @Summary Export CSV
// @Produce text/csv
// @Success 200 {string} string "Item,Quantity rows"
// @Router /items/export.csv [get]
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.AddSpan(r.Context(), "exportHandler")
	defer span.End()

	w.Header().Set("Content-Type", "text/csv;charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inventory.CSVFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.svc.CSV()))
}

// healthHandler reports liveness.
// @Summary Liveness
// @Success 200
// @Router /healthz [get]
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyHandler reports whether the first refresh has succeeded.
// @Summary Readiness
// @Success 200
// @Failure 503 {object} errorResponse
// @Router /readyz [get]
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "inventory not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeError maps service errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, inventory.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, inventory.ErrConflict), errors.Is(err, inventory.ErrExists):
		code = http.StatusConflict
	case errors.Is(err, inventory.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// rawQuantity unquotes a JSON string; numbers pass through as written.
func rawQuantity(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
