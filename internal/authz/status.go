package authz

import "fmt"

// UserStatus is the closed set of user record states.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserRevoked UserStatus = "revoked"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	return s == UserActive || s == UserRevoked
}

// RequestStatus is the closed set of permission request states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestRevoked  RequestStatus = "revoked"
	// RequestProcessed marks an approved request that has been folded into
	// the users table by the login flow.
	RequestProcessed RequestStatus = "processed"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestRevoked, RequestProcessed:
		return true
	}
	return false
}

// requestTransitions is the explicit transition table. rejected->approved is
// administrator reapproval; approved->processed is set only by the login fold.
// revoked and processed are terminal.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected, RequestRevoked},
	RequestRejected: {RequestApproved},
	RequestApproved: {RequestProcessed},
}

// CanTransition reports whether a request may move from -> to.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates a request status change against the table.
func CheckTransition(from, to RequestStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
	}
	return nil
}
