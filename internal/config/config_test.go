package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TAX_RATE", "ALLOCATION_MIN_FRACTION", "ALLOCATION_PACK_SIZES", "ALLOCATION_MAX_CANDIDATES", "VALUATION_TTL_SECONDS", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected default tax rate 0.2, got %s", cfg.TaxRate)
	}
	if cfg.ValuationTTLSeconds != 60 {
		t.Fatalf("expected valuation ttl 60, got %d", cfg.ValuationTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}

	policy := cfg.AllocationPolicy()
	if len(policy.PackSizes) != 6 || policy.PackSizes[0] != 100 || policy.PackSizes[5] != 1 {
		t.Fatalf("unexpected default pack sizes %v", policy.PackSizes)
	}
	if !policy.MinFraction.Equal(decimal.RequireFromString("0.9")) || policy.MaxCandidates != 5000 {
		t.Fatalf("unexpected default policy %+v", policy)
	}
}

func TestLoadAllocationOverrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.055")
	t.Setenv("ALLOCATION_MIN_FRACTION", "0.75")
	t.Setenv("ALLOCATION_PACK_SIZES", "1, 10, 5")
	t.Setenv("ALLOCATION_MAX_CANDIDATES", "42")

	cfg := Load()
	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.055")) {
		t.Fatalf("expected tax rate 0.055, got %s", cfg.TaxRate)
	}
	policy := cfg.AllocationPolicy()
	if len(policy.PackSizes) != 3 || policy.PackSizes[0] != 10 || policy.PackSizes[1] != 5 || policy.PackSizes[2] != 1 {
		t.Fatalf("expected pack sizes [10 5 1], got %v", policy.PackSizes)
	}
	if !policy.MinFraction.Equal(decimal.RequireFromString("0.75")) || policy.MaxCandidates != 42 {
		t.Fatalf("unexpected policy %+v", policy)
	}
}

func TestLoadRejectsInvalidAllocationValues(t *testing.T) {
	t.Setenv("TAX_RATE", "-1")
	t.Setenv("ALLOCATION_MIN_FRACTION", "1.5")
	t.Setenv("ALLOCATION_PACK_SIZES", "12,abc")
	t.Setenv("ALLOCATION_MAX_CANDIDATES", "0")

	cfg := Load()
	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected fallback tax rate, got %s", cfg.TaxRate)
	}
	policy := cfg.AllocationPolicy()
	if len(policy.PackSizes) != 6 {
		t.Fatalf("expected default pack sizes, got %v", policy.PackSizes)
	}
	if !policy.MinFraction.Equal(decimal.RequireFromString("0.9")) || policy.MaxCandidates != 5000 {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
