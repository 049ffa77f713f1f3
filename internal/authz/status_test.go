package authz

import (
	"errors"
	"testing"
)

func TestRequestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{RequestPending, RequestApproved},
		{RequestPending, RequestRejected},
		{RequestPending, RequestRevoked},
		{RequestRejected, RequestApproved},
		{RequestApproved, RequestProcessed},
	}
	for _, tc := range allowed {
		if err := CheckTransition(tc.from, tc.to); err != nil {
			t.Fatalf("%s -> %s should be allowed: %v", tc.from, tc.to, err)
		}
	}

	denied := []struct{ from, to RequestStatus }{
		{RequestApproved, RequestRejected},
		{RequestApproved, RequestPending},
		{RequestRevoked, RequestApproved},
		{RequestRevoked, RequestPending},
		{RequestProcessed, RequestApproved},
		{RequestRejected, RequestRejected},
		{RequestPending, RequestPending},
	}
	for _, tc := range denied {
		err := CheckTransition(tc.from, tc.to)
		if !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("%s -> %s should be ErrInvalidStatus, got %v", tc.from, tc.to, err)
		}
	}
}

func TestCheckTransitionUnknownStatus(t *testing.T) {
	err := CheckTransition(RequestPending, RequestStatus("cancelled"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unknown target status should be ErrInvalidStatus, got %v", err)
	}
}

func TestStatusValidity(t *testing.T) {
	if !UserActive.Valid() || !UserRevoked.Valid() {
		t.Fatal("known user statuses reported invalid")
	}
	if UserStatus("disabled").Valid() {
		t.Fatal("unknown user status reported valid")
	}
	if RequestStatus("open").Valid() {
		t.Fatal("unknown request status reported valid")
	}
}
