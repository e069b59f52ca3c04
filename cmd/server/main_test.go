package main

import (
	"testing"

	"kasirinaja/backoffice/internal/config"
	"kasirinaja/backoffice/internal/httpapi"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", AdminPassword: "t4ngerine-ledger"},
		{AuthSecret: strongSecret},
		{AuthSecret: strongSecret, AdminPassword: "admin123"},
		{AuthSecret: strongSecret, AdminPassword: "aaaaaaaaaa"},
		{AuthSecret: strongSecret, AdminPassword: "short"},
		{AuthSecret: strongSecret, AdminPassword: "t4ngerine-ledger", CashierPassword: "12345678"},
	}
	for i, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("case %d: expected weak security config to be rejected", i)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AdminPassword: "t4ngerine-ledger"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}

	err = validateSecurityConfig(config.Config{
		AuthSecret:      strongSecret,
		AdminPassword:   "$2a$10$abcdefghijklmnopqrstuu1234567890abcdefghijklmnopqrstu",
		CashierPassword: "m0rning-shift",
	})
	if err != nil {
		t.Fatalf("expected bcrypt admin password to pass, got %v", err)
	}
}

func TestOperatorsCarryConfiguredPasswords(t *testing.T) {
	ops := operators(config.Config{AdminPassword: "a", CashierPassword: "b"})
	if len(ops) != 2 {
		t.Fatalf("expected two operators, got %d", len(ops))
	}
	if ops[0].Role != httpapi.RoleAdmin || ops[0].Password != "a" {
		t.Fatalf("unexpected admin operator %+v", ops[0])
	}
	if ops[1].Role != httpapi.RoleCashier || ops[1].Password != "b" {
		t.Fatalf("unexpected cashier operator %+v", ops[1])
	}
}
