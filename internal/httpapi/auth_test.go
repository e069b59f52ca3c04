package httpapi

import (
	"strings"
	"testing"
	"time"

	"kasirinaja/backoffice/internal/domain"
)

func TestAuthManagerHashesPlainPasswords(t *testing.T) {
	manager, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Username: "Admin", Password: "admin123", Role: RoleAdmin},
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}

	stored := manager.users["admin"].password
	if !isPasswordHash(stored) {
		t.Fatalf("expected plain password to be hashed, got %q", stored)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: " admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != RoleAdmin || strings.TrimSpace(resp.AccessToken) == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin124"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
}

func TestAuthManagerAcceptsPrehashedPassword(t *testing.T) {
	hash := mustHashPassword(t, "cashier-pass")
	manager, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Username: "cashier", Password: hash, Role: RoleCashier},
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if manager.users["cashier"].password != hash {
		t.Fatalf("expected bcrypt hash to be kept as-is")
	}

	resp, err := manager.Login(domain.LoginRequest{Username: "cashier", Password: "cashier-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerRejectsUnknownRole(t *testing.T) {
	_, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Username: "auditor", Password: "auditor123", Role: "auditor"},
	})
	if err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestOperatorWithoutPasswordCannotLogin(t *testing.T) {
	manager, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Username: "cashier", Password: "", Role: RoleCashier},
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "cashier", Password: ""}); err == nil {
		t.Fatalf("expected login without password to fail")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	issuer, err := NewAuthManager("issuer-secret", time.Hour, []Operator{
		{Username: "admin", Password: mustHashPassword(t, "admin123"), Role: RoleAdmin},
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewAuthManager("verifier-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	manager, err := NewAuthManager("test-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	token, err := manager.sign("admin", RoleAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
