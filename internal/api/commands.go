package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/alert"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// handleListPending returns commands still awaiting acknowledgment, oldest first.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	cmds, err := s.pending.Pending(r.Context())
	if err != nil {
		s.logger.Error("failed to list pending commands", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pending commands")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": cmds,
		"count":    len(cmds),
	})
}

// lockdownRequest is the body of POST /emergency/lockdown.
type lockdownRequest struct {
	Reason string `json:"reason"`
}

// handleEmergencyLockdown broadcasts an emergency lock to every controller.
func (s *Server) handleEmergencyLockdown(w http.ResponseWriter, r *http.Request) {
	var req lockdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	if err := s.lockdown.HandleEmergencyLockdown(r.Context(), req.Reason); err != nil {
		s.logger.Error("emergency lockdown failed", "error", err)
		writeError(w, http.StatusBadGateway, "lockdown could not be published")
		return
	}

	s.auditLog(r, audit.ActionLockdown, audit.EntitySite, "", map[string]any{"reason": req.Reason})
	s.raiseLockdownAlert(r, req.Reason)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "lockdown_sent", "reason": req.Reason})
}

// raiseLockdownAlert tells external consumers about an operator lockdown.
// Delivery failures are logged; the broadcast has already gone out.
func (s *Server) raiseLockdownAlert(r *http.Request, reason string) {
	if s.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()

	err := s.alerts.Send(ctx, alert.Alert{
		Kind:     alert.KindLockdown,
		Severity: protocol.SeverityCritical,
		Message:  "Emergency lockdown: " + reason,
		Details:  map[string]any{"reason": reason, "request_id": requestID(r)},
		Time:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("lockdown alert not delivered", "error", err)
	}
}

// transitionRequest is the body of POST /doors/{id}/transition.
type transitionRequest struct {
	Transition access.DoorTransition `json:"transition"`
}

// handleDoorTransition changes a door's status.
func (s *Server) handleDoorTransition(w http.ResponseWriter, r *http.Request) {
	if s.doors == nil {
		writeError(w, http.StatusInternalServerError, "door repository not configured")
		return
	}

	id := chi.URLParam(r, "id")
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	door, err := s.doors.Transition(r.Context(), id, req.Transition)
	switch {
	case errors.Is(err, access.ErrDoorNotFound):
		writeError(w, http.StatusNotFound, "door not found")
		return
	case errors.Is(err, access.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("door transition failed", "door_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update door")
		return
	}

	s.auditLog(r, audit.ActionDoorTransition, audit.EntityDoor, id, map[string]any{
		"transition": string(req.Transition),
		"status":     string(door.Status),
	})
	writeJSON(w, http.StatusOK, door)
}
