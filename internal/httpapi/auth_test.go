package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/store/memory"
)

func TestTokenRoundTrip(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("unit-test-secret", time.Hour, repo)

	resp, err := auth.Login(context.Background(), LoginRequest{
		Email:    "cashier@thechase.local",
		Password: "cashier123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != 2 {
		t.Fatalf("user id = %d, want 2", actor.UserID)
	}
	if actor.Role != domain.RoleCashier {
		t.Fatalf("role = %s, want cashier", actor.Role)
	}
	if actor.Email != "cashier@thechase.local" {
		t.Fatalf("email = %s", actor.Email)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("secret-one", time.Hour, repo)
	other := NewAuthManager("secret-two", time.Hour, repo)

	resp, err := auth.Login(context.Background(), LoginRequest{
		Email:    "admin@thechase.local",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	user, err := repo.GetUserByID(ctx, 2)
	if err != nil {
		t.Fatalf("seeded cashier: %v", err)
	}
	user.Active = false
	if _, err := repo.UpdateUser(ctx, *user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	auth := NewAuthManager("unit-test-secret", time.Hour, repo)
	if _, err := auth.Login(ctx, LoginRequest{
		Email:    "cashier@thechase.local",
		Password: "cashier123",
	}); err == nil {
		t.Fatal("expected inactive account to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, memory.New())
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatal("expected garbage token to be rejected")
	}
}
