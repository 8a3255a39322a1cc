package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mbocsi/radiofleet/services"
)

func (s *Server) HandleHome(wr http.ResponseWriter, r *http.Request) {
	page, err := s.services.Row.ListRows(r.Context(), services.RowQuery{Limit: 20})
	if err != nil {
		page = &services.RowPage{}
	}
	s.templates.Render(wr, "layout", map[string]any{
		"Status": s.services.Target.Status(),
		"Rows":   page.Rows,
		"Total":  page.Total,
	})
}

func (s *Server) HandleStatus(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, s.services.Target.Status())
}

func (s *Server) HandleTransport(wr http.ResponseWriter, r *http.Request) {
	info, err := s.services.Transport.GetTransport()
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, info)
}

func (s *Server) HandleSensors(wr http.ResponseWriter, r *http.Request) {
	list, err := s.services.Sensor.ListSensors()
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, list)
}

func (s *Server) HandleSensorDetail(wr http.ResponseWriter, r *http.Request) {
	info, err := s.services.Sensor.GetSensor(chi.URLParam(r, "name"))
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, info)
}

func (s *Server) HandleTargets(wr http.ResponseWriter, r *http.Request) {
	ids, err := s.services.Target.ListTargets()
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, map[string]any{"targets": ids})
}

// HandleRefreshTargets runs one registry poll and blocks until it is done
func (s *Server) HandleRefreshTargets(wr http.ResponseWriter, r *http.Request) {
	ids, err := s.services.Target.RefreshTargets(r.Context())
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, map[string]any{"targets": ids})
}

// HandleRequestJob broadcasts a job to every target
func (s *Server) HandleRequestJob(wr http.ResponseWriter, r *http.Request) {
	var req services.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(wr, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Invalid job request",
			Cause:   err,
		})
		return
	}

	if err := s.services.Job.RequestJob(r.Context(), req); err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusAccepted, map[string]any{"sensors": len(req.Sensors)})
}

// HandleRows lists persisted rows. Query params: session, device, sensor, limit.
func (s *Server) HandleRows(wr http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.RowQuery{
		Session: q.Get("session"),
		Sensor:  q.Get("sensor"),
	}
	if v := q.Get("device"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			s.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid device id: " + v})
			return
		}
		query.DeviceID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid limit: " + v})
			return
		}
		query.Limit = n
	}
	if query.Sensor != "" {
		if info, err := s.services.Sensor.GetSensor(query.Sensor); err == nil {
			query.Sensor = info.Name
		}
	}

	page, err := s.services.Row.ListRows(r.Context(), query)
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, page)
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// handleError handles service errors with proper HTTP status codes
func (s *Server) handleError(wr http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Service error", "error", err)
		writeJSON(wr, http.StatusInternalServerError, services.ServiceError{
			Code:    services.ErrCodeInternal,
			Message: "Internal server error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeTimeout:
		status = http.StatusRequestTimeout
	case services.ErrCodeConflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("Service error", "error", err)
	} else {
		slog.Debug("Request rejected", "code", serviceErr.Code, "error", err)
	}

	writeJSON(wr, status, serviceErr)
}
