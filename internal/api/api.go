package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/scope/internal/route"
	"github.com/angeloszaimis/scope/internal/tap"
)

// TapService is the subset of the tap manager the control plane drives.
type TapService interface {
	CreateTap(address string, port int, label string) (tap.Info, error)
	RemoveTap(ctx context.Context, id int) error
	ListTaps() []tap.Info
	GetTap(id int) (tap.Info, error)
	ListRoutes(id int) ([]route.Info, error)
	Pin(id int, method, path string, resp route.PinnedResponse) error
	Unpin(id int, method, path string) error
	Responses(id int, method, path string) ([]route.RecordedResponse, error)
	ClearResponses(id int, method, path string) error
	ClearAllResponses(id int) error
}

type API struct {
	taps   TapService
	logger *slog.Logger
}

func New(logger *slog.Logger, taps TapService) *API {
	return &API{
		taps:   taps,
		logger: logger,
	}
}

// Register mounts the control-plane routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /taps", a.handleListTaps)
	mux.HandleFunc("POST /tap", a.handleCreateTap)
	mux.HandleFunc("GET /tap/{id}", a.handleGetTap)
	mux.HandleFunc("DELETE /tap/{id}", a.handleRemoveTap)
	mux.HandleFunc("GET /tap/{id}/routes", a.handleListRoutes)
	mux.HandleFunc("POST /tap/{id}/pinned", a.handlePin)
	mux.HandleFunc("DELETE /tap/{id}/pinned", a.handleUnpin)
	mux.HandleFunc("GET /tap/{id}/responses", a.handleGetResponses)
	mux.HandleFunc("DELETE /tap/{id}/responses", a.handleClearResponses)
}

func (a *API) handleListTaps(w http.ResponseWriter, r *http.Request) {
	taps := a.taps.ListTaps()
	writeJSON(w, http.StatusOK, TapListResponse{Taps: taps, Count: len(taps)})
}

func (a *API) handleCreateTap(w http.ResponseWriter, r *http.Request) {
	var req CreateTapRequest
	if !a.decode(w, r, &req) {
		return
	}

	info, err := a.taps.CreateTap(req.Address, req.Port, req.Label)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (a *API) handleGetTap(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	info, err := a.taps.GetTap(id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleRemoveTap(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	if err := a.taps.RemoveTap(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	routes, err := a.taps.ListRoutes(id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RouteListResponse{Routes: routes, Count: len(routes)})
}

func (a *API) handlePin(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	var req PinRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.taps.Pin(id, req.Method, req.Path, req.Response); err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnpin(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	var req UnpinRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.taps.Unpin(id, req.Method, req.Path); err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	method := r.URL.Query().Get("method")
	path := r.URL.Query().Get("path")
	if method == "" || path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "method and path query parameters are required")
		return
	}

	responses, err := a.taps.Responses(id, method, path)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	key := route.NewKey(method, path)
	writeJSON(w, http.StatusOK, ResponseListResponse{
		Method:    key.Method,
		Path:      key.Path,
		Responses: responses,
	})
}

// handleClearResponses clears one route's history when method and path are
// given, otherwise every route of the tap.
func (a *API) handleClearResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := tapID(w, r)
	if !ok {
		return
	}

	method := r.URL.Query().Get("method")
	path := r.URL.Query().Get("path")

	var err error
	switch {
	case method == "" && path == "":
		err = a.taps.ClearAllResponses(id)
	case method == "" || path == "":
		writeError(w, http.StatusBadRequest, "validation_error", "method and path must be given together")
		return
	default:
		err = a.taps.ClearResponses(id, method, path)
	}

	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type validatable interface {
	Validate() error
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}

	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}

	return true
}

func tapID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_id", "tap id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("Control plane call failed", slog.Any("err", err))
	}
	writeError(w, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, tap.ErrTapNotFound):
		return http.StatusNotFound, "tap_not_found"
	case errors.Is(err, route.ErrRouteNotFound):
		return http.StatusNotFound, "route_not_found"
	case errors.Is(err, tap.ErrInvalidAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, tap.ErrPortInUse):
		return http.StatusConflict, "port_in_use"
	case errors.Is(err, tap.ErrBindFailure):
		return http.StatusInternalServerError, "bind_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}
