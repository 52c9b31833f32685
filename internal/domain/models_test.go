package domain

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in      string
		want    Currency
		wantErr bool
	}{
		{"KSH", CurrencyKSH, false},
		{"ksh", CurrencyKSH, false},
		{"KES", CurrencyKSH, false},
		{" kes ", CurrencyKSH, false},
		{"UGX", CurrencyUGX, false},
		{"ugx", CurrencyUGX, false},
		{"USD", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseCurrency(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseCurrency(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseCurrency(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCurrency(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestProductUnitPricePerCurrency(t *testing.T) {
	p := Product{
		UnitPriceKSH: decimal.NewFromInt(300),
		UnitPriceUGX: decimal.NewFromInt(9000),
	}
	if got := p.UnitPrice(CurrencyKSH); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("KSH price = %s", got)
	}
	if got := p.UnitPrice(CurrencyUGX); !got.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("UGX price = %s", got)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{UserID: 7, Email: "x@y.z", Role: RoleManager})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatal("actor missing from context")
	}
	if actor.UserID != 7 || actor.Role != RoleManager {
		t.Fatalf("actor = %+v", actor)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatal("unexpected actor on fresh context")
	}
}
