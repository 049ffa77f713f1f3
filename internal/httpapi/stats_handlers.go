package httpapi

import (
	"net/http"
	"time"

	"accessdesk.org/internal/authz"
)

type statsResponse struct {
	Requests map[authz.RequestStatus]int `json:"requests"`
	Users    map[authz.UserStatus]int    `json:"users"`
	AsOf     time.Time                   `json:"as_of"`
}

// handleStats tallies requests and users inside the caller's visible scope.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	reqCounts, err := a.requests.CountByStatus(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	userCounts, err := a.users.CountByStatus(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Requests: reqCounts,
		Users:    userCounts,
		AsOf:     time.Now().UTC(),
	})
}
