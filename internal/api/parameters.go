package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
	"github.com/nerrad567/gray-logic-ism7/internal/history"
)

// ParameterState is a parameter description with its latest value.
type ParameterState struct {
	ism7.ParameterInfo
	Value     *ism7.Value `json:"value,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// writeParameterRequest is the body of PUT .../parameters/{ptid}.
type writeParameterRequest struct {
	Value *string `json:"value"`
}

// writeParameterResponse is returned when a write was accepted.
type writeParameterResponse struct {
	CommandID string              `json:"command_id"`
	Status    ism7.AckStatus      `json:"status"`
	DeviceID  string              `json:"device_id"`
	PTID      int                 `json:"ptid"`
	Commands  []ism7.WriteCommand `json:"commands"`
}

// handleListDevices returns all configured devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	info, ok := s.bridge.Device(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListParameters returns every exposed parameter of a device with
// its last published value.
func (s *Server) handleListParameters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.bridge.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	last, err := s.bridge.LastReadings(id)
	if err != nil {
		writeInternalError(w, "failed to read values")
		return
	}

	params := make([]ParameterState, 0, len(info.Parameters))
	for _, p := range info.Parameters {
		params = append(params, newParameterState(p, last))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  id,
		"parameters": params,
		"count":      len(params),
	})
}

// handleGetParameter returns one parameter with its last value.
func (s *Server) handleGetParameter(w http.ResponseWriter, r *http.Request) {
	info, param, ok := s.resolveParameter(w, r)
	if !ok {
		return
	}
	last, err := s.bridge.LastReadings(info.ID)
	if err != nil {
		writeInternalError(w, "failed to read values")
		return
	}
	writeJSON(w, http.StatusOK, newParameterState(param, last))
}

// handleWriteParameter converts a value and sends it to the controller.
//
// Responses:
//   - 202: commands handed to the gateway
//   - 400: value does not parse or violates a constraint
//   - 404: device or parameter not configured
//   - 409: parameter is read-only or cannot be written at protocol level
//   - 503: bridge stopped
//   - 504: device worker did not answer in time
func (s *Server) handleWriteParameter(w http.ResponseWriter, r *http.Request) {
	info, param, ok := s.resolveParameter(w, r)
	if !ok {
		return
	}

	var req writeParameterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	res, err := s.bridge.SubmitWrite(r.Context(), ism7.WriteRequest{
		DeviceID: info.ID,
		PTID:     param.PTID,
		Value:    *req.Value,
		Source:   "api",
	})
	if err != nil {
		s.writeSubmitError(w, r, err)
		return
	}

	caller := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		caller = claims.Subject
	}
	s.logger.Info("parameter write accepted",
		"device_id", info.ID,
		"ptid", param.PTID,
		"command_id", res.CommandID,
		"user", caller,
	)
	writeJSON(w, http.StatusAccepted, writeParameterResponse{
		CommandID: res.CommandID,
		Status:    ism7.AckAccepted,
		DeviceID:  info.ID,
		PTID:      res.PTID,
		Commands:  res.Commands,
	})
}

// writeSubmitError maps bridge write errors to HTTP responses.
func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not answer in time")
		return
	case errors.Is(err, ism7.ErrBridgeStopped), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is not running")
		return
	}

	if mapped, ok := bridgeErrors[ism7.ErrorCode(err)]; ok {
		writeError(w, mapped.status, mapped.code, err.Error())
		return
	}
	s.logger.Error("parameter write failed",
		"error", err,
		"request_id", requestID(r),
	)
	writeInternalError(w, "write failed")
}

// handleReadingHistory returns stored readings of one parameter, newest first.
//
// Query parameters:
//   - limit: maximum number of entries (default 50, max 200)
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}
	info, param, ok := s.resolveParameter(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	readings, err := s.history.GetReadings(r.Context(), info.ID, param.PTID, limit)
	if err != nil {
		s.logger.Error("reading history query failed", "device_id", info.ID, "ptid", param.PTID, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": info.ID,
		"ptid":      param.PTID,
		"readings":  readings,
		"count":     len(readings),
	})
}

// handleWriteHistory returns the write audit trail of a device, newest first.
func (s *Server) handleWriteHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.bridge.Device(id); !ok {
		writeNotFound(w, "device not found")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	writes, err := s.history.GetWrites(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("write history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"writes":    writes,
		"count":     len(writes),
	})
}

// resolveParameter looks up the {id} device and {ptid} parameter, writing
// a 400 or 404 response when either is invalid.
func (s *Server) resolveParameter(w http.ResponseWriter, r *http.Request) (ism7.DeviceInfo, ism7.ParameterInfo, bool) {
	info, ok := s.bridge.Device(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return ism7.DeviceInfo{}, ism7.ParameterInfo{}, false
	}
	ptid, err := strconv.Atoi(chi.URLParam(r, "ptid"))
	if err != nil || ptid <= 0 {
		writeBadRequest(w, "ptid must be a positive integer")
		return ism7.DeviceInfo{}, ism7.ParameterInfo{}, false
	}
	for _, p := range info.Parameters {
		if p.PTID == ptid {
			return info, p, true
		}
	}
	writeNotFound(w, "parameter not found")
	return ism7.DeviceInfo{}, ism7.ParameterInfo{}, false
}

// parseLimit reads the optional limit query parameter.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return history.DefaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

func newParameterState(p ism7.ParameterInfo, last map[int]ism7.Reading) ParameterState {
	ps := ParameterState{ParameterInfo: p}
	if reading, ok := last[p.PTID]; ok {
		v := reading.Value
		ts := reading.Timestamp
		ps.Value = &v
		ps.Kind = v.Kind.String()
		ps.UpdatedAt = &ts
	}
	return ps
}
