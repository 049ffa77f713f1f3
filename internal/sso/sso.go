// Package sso turns an identity-provider callback into a local decision:
// either the visitor is a known user, or their petition for access is filed
// or re-read. All login paths funnel through Resolver.Resolve.
package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/ledger"
	"accessdesk.org/internal/obs"
	"accessdesk.org/internal/registry"
)

// Profile is the identity payload the provider vouches for. CompanyName and
// OfficeLocation are directory display names, not ids.
type Profile struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	CompanyName    string `json:"company_name"`
	OfficeLocation string `json:"office_location"`
}

// Validate checks the fields every downstream step depends on.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: email missing from provider profile", authz.ErrInvalidProfile)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: display name missing from provider profile", authz.ErrInvalidProfile)
	}
	return nil
}

// IdentityProvider abstracts the upstream SSO handshake.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// Outcome classifies a resolution for callers and metrics.
type Outcome string

const (
	OutcomeGranted  Outcome = "granted"
	OutcomePending  Outcome = "pending"
	OutcomeRejected Outcome = "rejected"
	OutcomeRevoked  Outcome = "revoked"
)

// Resolution is what a login attempt produced. Principal is populated only
// for OutcomeGranted; Request only when a ledger row was consulted or filed.
// Filed is true when this very call created the request.
type Resolution struct {
	Outcome   Outcome
	Principal authz.Principal
	Request   *ledger.PermissionRequest
	Filed     bool
}

// Resolver implements the login-time decision procedure.
type Resolver struct {
	users    *registry.Service
	requests *ledger.Service
	dir      *directory.Service
}

// NewResolver constructs the resolver.
func NewResolver(users *registry.Service, requests *ledger.Service, dir *directory.Service) (*Resolver, error) {
	if users == nil || requests == nil || dir == nil {
		return nil, errors.New("resolver requires registry, ledger and directory services")
	}
	return &Resolver{users: users, requests: requests, dir: dir}, nil
}

// Resolve runs the callback decision procedure:
//
//	known active user            -> granted
//	known revoked user           -> revoked
//	user in any other status     -> denied with ErrInvalidStatus
//	approved or processed request -> fold, then granted
//	rejected request             -> rejected
//	revoked request              -> revoked
//	pending request              -> pending
//	nothing on file              -> file a pending request
//
// Resolve is idempotent: replaying the same callback reaches the same
// outcome without duplicating rows.
func (r *Resolver) Resolve(ctx context.Context, profile Profile) (Resolution, error) {
	if err := profile.Validate(); err != nil {
		return Resolution{}, err
	}

	user, err := r.users.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return r.resolveUser(ctx, user)
	case errors.Is(err, authz.ErrNotFound):
	default:
		return Resolution{}, err
	}

	req, err := r.requests.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return r.resolveRequest(ctx, req)
	case errors.Is(err, authz.ErrNotFound):
	default:
		return Resolution{}, err
	}

	filed, err := r.requests.Create(ctx, ledger.CreateParams{
		Email:          profile.Email,
		DisplayName:    profile.DisplayName,
		CompanyName:    profile.CompanyName,
		OfficeLocation: profile.OfficeLocation,
	})
	if err != nil {
		return Resolution{}, err
	}
	obs.CountResolution(string(OutcomePending))
	return Resolution{Outcome: OutcomePending, Request: &filed, Filed: true}, nil
}

func (r *Resolver) resolveUser(ctx context.Context, user registry.User) (Resolution, error) {
	switch user.Status {
	case authz.UserActive:
		principal, err := r.buildPrincipal(ctx, user)
		if err != nil {
			return Resolution{}, err
		}
		obs.CountResolution(string(OutcomeGranted))
		return Resolution{Outcome: OutcomeGranted, Principal: principal}, nil
	case authz.UserRevoked:
		obs.CountResolution(string(OutcomeRevoked))
		return Resolution{Outcome: OutcomeRevoked}, nil
	default:
		// Only the two known states grant or deny; anything else on the row
		// denies the session outright.
		return Resolution{}, fmt.Errorf("%w: user %s has status %q", authz.ErrInvalidStatus, user.ID, user.Status)
	}
}

func (r *Resolver) resolveRequest(ctx context.Context, req ledger.PermissionRequest) (Resolution, error) {
	switch req.Status {
	case authz.RequestRejected:
		obs.CountResolution(string(OutcomeRejected))
		return Resolution{Outcome: OutcomeRejected, Request: &req}, nil
	case authz.RequestRevoked:
		obs.CountResolution(string(OutcomeRevoked))
		return Resolution{Outcome: OutcomeRevoked, Request: &req}, nil
	case authz.RequestPending:
		obs.CountResolution(string(OutcomePending))
		return Resolution{Outcome: OutcomePending, Request: &req}, nil
	case authz.RequestApproved, authz.RequestProcessed:
		if err := r.requests.Fold(ctx, req); err != nil {
			return Resolution{}, err
		}
		user, err := r.users.FindByEmail(ctx, req.Email)
		if err != nil {
			return Resolution{}, err
		}
		return r.resolveUser(ctx, user)
	default:
		return Resolution{}, fmt.Errorf("%w: request %s has status %q", authz.ErrInvalidStatus, req.ID, req.Status)
	}
}

func (r *Resolver) buildPrincipal(ctx context.Context, user registry.User) (authz.Principal, error) {
	var roleName string
	var privileges []string
	if user.RoleID != "" {
		role, err := r.dir.Role(ctx, user.RoleID)
		if err != nil && !errors.Is(err, authz.ErrNotFound) {
			return authz.Principal{}, err
		}
		if err == nil {
			roleName = role.Name
			privileges, err = r.dir.RolePrivileges(ctx, role.Name)
			if err != nil {
				return authz.Principal{}, err
			}
		}
	}
	return authz.NewPrincipal(user.ID, user.Email, user.DisplayName, roleName, user.CompanyID, user.BranchID, privileges), nil
}
