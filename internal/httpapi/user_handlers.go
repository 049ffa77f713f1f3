package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/registry"
)

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	BranchID    string `json:"branch_id"`
	RoleID      string `json:"role_id"`
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name"`
	BranchID    *string `json:"branch_id"`
	RoleID      *string `json:"role_id"`
}

type reactivateUserRequest struct {
	BranchID *string `json:"branch_id"`
	RoleID   *string `json:"role_id"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.updateUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "revoke":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.revokeUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "reactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reactivateUser(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	var (
		items []registry.User
		err   error
	)
	switch status {
	case "", "active":
		items, err = a.users.ListActive(r.Context(), p)
	case "revoked":
		items, err = a.users.ListRevoked(r.Context(), p)
	default:
		writeError(w, r, http.StatusBadRequest, "status must be active or revoked")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Create(r.Context(), p, registry.NewUserParams{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		BranchID:    strings.TrimSpace(req.BranchID),
		RoleID:      strings.TrimSpace(req.RoleID),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
	})
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Update(r.Context(), p, id, registry.Patch{
		DisplayName: req.DisplayName,
		BranchID:    req.BranchID,
		RoleID:      req.RoleID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
		"user_id": u.ID,
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) revokeUser(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	u, err := a.users.Revoke(r.Context(), p, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.revoke", map[string]any{
		"user_id":    u.ID,
		"revoked_by": p.UserID,
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) reactivateUser(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	// Body is optional: a bare reactivate keeps branch and role as they were.
	var req reactivateUserRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Reactivate(r.Context(), p, id, registry.Patch{
		BranchID: req.BranchID,
		RoleID:   req.RoleID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.reactivate", map[string]any{
		"user_id":        u.ID,
		"reactivated_by": p.UserID,
	})
	writeJSON(w, http.StatusOK, u)
}
