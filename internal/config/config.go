package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zianad/facturepro-ai/internal/allocation"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	SQLitePath              string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	ValuationTTLSeconds     int
	TaxRate                 decimal.Decimal
	AllocationMinFraction   decimal.Decimal
	AllocationPackSizes     []int
	AllocationMaxCandidates int
	AuthSecret              string
	AccessTokenTTLMinutes   int
}

func Load() Config {
	defaults := allocation.DefaultPolicy()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("VALUATION_TTL_SECONDS", "60"))
	if err != nil || ttl < 1 {
		ttl = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", "0.20"))
	if err != nil || taxRate.IsNegative() {
		taxRate = decimal.RequireFromString("0.20")
	}
	minFraction, err := decimal.NewFromString(getEnv("ALLOCATION_MIN_FRACTION", defaults.MinFraction.String()))
	if err != nil || !minFraction.IsPositive() || minFraction.GreaterThan(decimal.NewFromInt(1)) {
		minFraction = defaults.MinFraction
	}
	maxCandidates, err := strconv.Atoi(getEnv("ALLOCATION_MAX_CANDIDATES", strconv.Itoa(defaults.MaxCandidates)))
	if err != nil || maxCandidates < 1 {
		maxCandidates = defaults.MaxCandidates
	}
	packSizes := parsePackSizes(os.Getenv("ALLOCATION_PACK_SIZES"))
	if len(packSizes) == 0 {
		packSizes = defaults.PackSizes
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		SQLitePath:              strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		ValuationTTLSeconds:     ttl,
		TaxRate:                 taxRate,
		AllocationMinFraction:   minFraction,
		AllocationPackSizes:     packSizes,
		AllocationMaxCandidates: maxCandidates,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ValuationTTL() time.Duration {
	return time.Duration(c.ValuationTTLSeconds) * time.Second
}

func (c Config) AllocationPolicy() allocation.Policy {
	policy := allocation.DefaultPolicy()
	policy.MinFraction = c.AllocationMinFraction
	policy.PackSizes = append([]int(nil), c.AllocationPackSizes...)
	policy.MaxCandidates = c.AllocationMaxCandidates
	return policy.Normalize()
}

// parsePackSizes reads a comma separated list such as "100,50,24,12,6,1".
// Any malformed entry discards the whole list.
func parsePackSizes(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil
		}
		sizes = append(sizes, n)
	}
	return sizes
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
