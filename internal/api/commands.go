package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forgefleet/forge-core/internal/audit"
	"github.com/forgefleet/forge-core/internal/comms"
	"github.com/forgefleet/forge-core/internal/fleet"
)

// commandRequest is the body of a command POST.
//
// AwaitReply selects the request/reply send mode; the response then
// carries the device's reply payload instead of a bare acknowledgement.
type commandRequest struct {
	Command    string          `json:"command"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	AwaitReply bool            `json:"await_reply,omitempty"`
}

// editorRequest toggles a device's developer editor tunnel.
type editorRequest struct {
	Enabled bool            `json:"enabled"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleGetDevice returns one device, scoped to the team in the path.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.teamDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleDeviceCommand sends a command to one device.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	device, ok := s.teamDevice(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	dispatcher := s.comms.Dispatcher()

	if !req.AwaitReply {
		if err := dispatcher.SendCommand(r.Context(), device.TeamID, device.ID, req.Command, req.Payload); err != nil {
			s.logger.Error("command publish failed",
				"device_id", device.ID, "command", req.Command, "error", err)
			writeInternalError(w, "command publish failed")
			return
		}
		s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, req.Command, audit.OutcomeSent, nil)
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
		return
	}

	reply, err := dispatcher.SendCommandAwaitReply(r.Context(), device.TeamID, device.ID, req.Command, req.Payload)
	if err != nil {
		if errors.Is(err, comms.ErrCommandTimeout) {
			s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, req.Command, audit.OutcomeTimedOut, nil)
			writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not reply in time")
			return
		}
		s.logger.Error("command round-trip failed",
			"device_id", device.ID, "command", req.Command, "error", err)
		writeInternalError(w, "command failed")
		return
	}

	s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, req.Command, audit.OutcomeReplied, nil)
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// handleEditorMode enables or disables a device's editor tunnel.
func (s *Server) handleEditorMode(w http.ResponseWriter, r *http.Request) {
	device, ok := s.teamDevice(w, r)
	if !ok {
		return
	}

	var req editorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	dispatcher := s.comms.Dispatcher()

	if !req.Enabled {
		if err := dispatcher.DisableEditor(r.Context(), device.TeamID, device.ID); err != nil {
			writeInternalError(w, "editor stop failed")
			return
		}
		s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, "stopEditor", audit.OutcomeSent, nil)
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "stopping"})
		return
	}

	reply, err := dispatcher.EnableEditor(r.Context(), device.TeamID, device.ID, req.Payload)
	if err != nil {
		if errors.Is(err, comms.ErrCommandTimeout) {
			s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, "startEditor", audit.OutcomeTimedOut, nil)
			writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not acknowledge editor start")
			return
		}
		writeInternalError(w, "editor start failed")
		return
	}

	s.recordAudit(r, device.TeamID, audit.TargetDevice, device.ID, "startEditor", audit.OutcomeReplied, nil)
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// handleProjectCommand broadcasts a command to every device assigned to
// a project.
func (s *Server) handleProjectCommand(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	projectID := chi.URLParam(r, "projectID")

	project, err := s.repo.ProjectByID(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, fleet.ErrProjectNotFound) {
			writeNotFound(w, "project not found")
			return
		}
		writeInternalError(w, "project lookup failed")
		return
	}
	if project.TeamID != teamID {
		writeNotFound(w, "project not found")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	if err := s.comms.Dispatcher().SendCommandToProjectDevices(r.Context(), teamID, projectID, req.Command, req.Payload); err != nil {
		s.logger.Error("broadcast publish failed",
			"project_id", projectID, "command", req.Command, "error", err)
		writeInternalError(w, "broadcast publish failed")
		return
	}

	s.recordAudit(r, teamID, audit.TargetProject, projectID, req.Command, audit.OutcomeSent, nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

// teamDevice loads the device from the path and checks team scoping.
// Devices outside the caller's team read as not found.
func (s *Server) teamDevice(w http.ResponseWriter, r *http.Request) (*fleet.Device, bool) {
	teamID := chi.URLParam(r, "teamID")
	deviceID := chi.URLParam(r, "deviceID")

	device, err := s.repo.DeviceByID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, fleet.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "device lookup failed")
		return nil, false
	}
	if device.TeamID != teamID {
		writeNotFound(w, "device not found")
		return nil, false
	}
	return device, true
}
