package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/session"
	"accessdesk.org/internal/sso"
	"accessdesk.org/internal/stream"
)

const tokenTTL = 8 * time.Hour

type callbackRequest struct {
	Code string `json:"code"`
}

type callbackResponse struct {
	Outcome     string    `json:"outcome"`
	Token       string    `json:"token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	Privileges  []string  `json:"privileges,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}
	state := uuid.NewString()
	http.Redirect(w, r, a.provider.AuthURL(state), http.StatusFound)
}

// handleAuthCallback is the single entry point after the identity provider
// handshake. Every outcome of the resolution comes back as 200 with an
// outcome field; only a granted outcome carries a token.
func (a *API) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	if a.provider == nil || a.resolver == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" && r.Method == http.MethodPost {
		var req callbackRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		code = strings.TrimSpace(req.Code)
	}
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	profile, err := a.provider.Exchange(r.Context(), code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := a.resolver.Resolve(r.Context(), profile)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := callbackResponse{Outcome: string(res.Outcome)}
	if res.Request != nil {
		resp.RequestID = res.Request.ID
	}

	switch res.Outcome {
	case sso.OutcomeGranted:
		token, err := session.Generate(res.Principal, tokenTTL)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "token generation failed")
			return
		}
		resp.Token = token
		resp.ExpiresAt = time.Now().UTC().Add(tokenTTL)
		resp.UserID = res.Principal.UserID
		resp.Email = res.Principal.Email
		resp.DisplayName = res.Principal.DisplayName
		resp.Role = res.Principal.Role
		resp.Privileges = res.Principal.PrivilegeNames()
		_ = audit.LogEvent(r.Context(), "sso.session.granted", map[string]any{
			"user_id": res.Principal.UserID,
			"email":   res.Principal.Email,
		})
	default:
		fields := map[string]any{"email": profile.Email, "outcome": string(res.Outcome)}
		if res.Request != nil {
			fields["request_id"] = res.Request.ID
		}
		_ = audit.LogEvent(r.Context(), "sso.session.denied", fields)
	}

	if res.Filed && a.stream != nil && res.Request != nil {
		a.stream.Publish(stream.RequestEvent{
			Kind:      stream.KindFiled,
			RequestID: res.Request.ID,
			Email:     res.Request.Email,
			CompanyID: res.Request.CompanyID,
			BranchID:  res.Request.BranchID,
			Status:    string(res.Request.Status),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      p.UserID,
		"email":        p.Email,
		"display_name": p.DisplayName,
		"role":         p.Role,
		"company_id":   p.CompanyID,
		"branch_id":    p.BranchID,
		"privileges":   p.PrivilegeNames(),
	})
}

// handleAuthLogout only audits: tokens are stateless and expire on their own.
func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	_ = audit.LogEvent(r.Context(), "sso.session.logout", map[string]any{
		"user_id": p.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}
