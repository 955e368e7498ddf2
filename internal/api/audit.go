package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgefleet/forge-core/internal/audit"
)

// handleListAudit returns a team's command audit trail.
//
// Query parameters: target, target_id, command, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")

	q := r.URL.Query()
	filter := audit.Filter{
		Target:   q.Get("target"),
		TargetID: q.Get("target_id"),
		Command:  q.Get("command"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), teamID, filter)
	if err != nil {
		s.logger.Error("audit query failed", "team_id", teamID, "error", err)
		writeInternalError(w, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordAudit writes one dispatch record. Audit failures are logged, never
// surfaced to the caller; the command already went out.
func (s *Server) recordAudit(r *http.Request, teamID, target, targetID, command, outcome string, details map[string]any) {
	actor, _ := r.Context().Value(ctxKeySubject).(string)

	entry := audit.Entry{
		TeamID:   teamID,
		Target:   target,
		TargetID: targetID,
		Actor:    actor,
		Command:  command,
		Outcome:  outcome,
		Details:  details,
	}
	if err := s.audit.Record(r.Context(), &entry); err != nil {
		s.logger.Error("audit record failed",
			"team_id", teamID, "target_id", targetID, "command", command, "error", err)
	}
}
