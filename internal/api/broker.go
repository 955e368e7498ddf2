package api

import (
	"encoding/json"
	"net/http"

	"github.com/forgefleet/forge-core/internal/acl"
)

// brokerACLRequest is the broker's authorization query for one operation.
//
// Action is "publish" or "subscribe"; Username carries the connecting
// client's credential string.
type brokerACLRequest struct {
	Username string `json:"username"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
}

// brokerACLResponse is the verdict returned to the broker.
type brokerACLResponse struct {
	Result string `json:"result"` // "allow" or "deny"
}

// handleBrokerACL answers the broker's per-operation authorization query.
//
// Malformed requests and unknown actions deny; the broker treats any
// non-allow answer as a rejection, so there is no error surface to leak
// identity details through.
func (s *Server) handleBrokerACL(w http.ResponseWriter, r *http.Request) {
	var req brokerACLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, brokerACLResponse{Result: "deny"})
		return
	}

	var direction acl.Direction
	switch req.Action {
	case "publish":
		direction = acl.DirectionPublish
	case "subscribe":
		direction = acl.DirectionSubscribe
	default:
		writeJSON(w, http.StatusOK, brokerACLResponse{Result: "deny"})
		return
	}

	result := "deny"
	if s.acl.Verify(r.Context(), req.Username, req.Topic, direction) {
		result = "allow"
	}

	s.logger.Debug("broker acl verdict",
		"username", req.Username, "topic", req.Topic,
		"action", req.Action, "result", result)
	writeJSON(w, http.StatusOK, brokerACLResponse{Result: result})
}
