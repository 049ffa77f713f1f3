package session

import (
	"errors"
	"testing"
	"time"

	"accessdesk.org/internal/authz"
)

func setSecret(t *testing.T, value string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("ACCESSDESK_AUTH_SECRET", value)
	t.Cleanup(ResetSecretForTests)
}

func testPrincipal() authz.Principal {
	return authz.NewPrincipal("usr_1", "a@acme.test", "A", "Branch Manager", "com_1", "brn_1",
		[]string{authz.PrivListRequests, authz.PrivUpdateRequests})
}

func TestGenerateAndParseRoundTrip(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := Generate(testPrincipal(), time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "usr_1" || claims.CompanyID != "com_1" || claims.BranchID != "brn_1" {
		t.Fatalf("claims = %+v", claims)
	}

	p := claims.Principal()
	if !p.HasPrivilege(authz.PrivUpdateRequests) {
		t.Fatalf("privileges lost in round trip: %+v", p)
	}
	if p.IsAdmin() {
		t.Fatalf("branch manager parsed as administrator")
	}
}

func TestAdminRoleSurvivesRoundTrip(t *testing.T) {
	setSecret(t, "test-secret")

	admin := authz.NewPrincipal("usr_2", "root@acme.test", "Root", authz.RoleSystemAdministrator, "com_1", "brn_1", nil)
	token, err := Generate(admin, time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !claims.Principal().IsAdmin() {
		t.Fatalf("administrator role lost: %+v", claims)
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	setSecret(t, "")

	if _, err := Generate(testPrincipal(), time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	setSecret(t, "test-secret")

	if _, err := Generate(authz.Principal{}, time.Minute); err == nil {
		t.Fatal("expected error for empty principal")
	}
	if _, err := Generate(testPrincipal(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := Generate(testPrincipal(), time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	setSecret(t, "secret-one")
	token, err := Generate(testPrincipal(), time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	setSecret(t, "secret-two")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
