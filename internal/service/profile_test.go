package service

import (
	"context"
	"errors"
	"testing"

	"github.com/zianad/facturepro-ai/internal/domain"
)

func TestGetProfileEmptyBeforeFirstSave(t *testing.T) {
	svc, _ := newTestService(t, "0.20")

	profile, err := svc.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile != (domain.Profile{}) {
		t.Fatalf("expected an empty profile, got %+v", profile)
	}
}

func TestUpdateProfileRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, "0.20")
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	saved, err := svc.UpdateProfile(ctx, domain.ProfileRequest{
		UserName:       " Nadia ",
		CompanyName:    "Papeterie Atlas SARL",
		CompanyICE:     "001234567000089",
		CompanyAddress: "12 rue Allal Ben Abdellah, Casablanca",
		CompanyPhone:   "+212 522 000 000",
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if saved.UserName != "Nadia" {
		t.Fatalf("expected trimmed user name, got %q", saved.UserName)
	}
	if !saved.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected updated_at %s, got %s", fixedNow, saved.UpdatedAt)
	}

	if _, err := svc.UpdateProfile(ctx, domain.ProfileRequest{CompanyName: "Atlas Bureautique"}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	got, err := svc.GetProfile(ctx)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.CompanyName != "Atlas Bureautique" || got.CompanyICE != "" {
		t.Fatalf("expected the second save to replace the profile, got %+v", got)
	}
}

func TestUpdateProfileRequiresCompanyName(t *testing.T) {
	svc, _ := newTestService(t, "0.20")

	_, err := svc.UpdateProfile(context.Background(), domain.ProfileRequest{UserName: "Nadia", CompanyName: "   "})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	profile, err := svc.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.CompanyName != "" {
		t.Fatalf("expected nothing saved, got %+v", profile)
	}
}
